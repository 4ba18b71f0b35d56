package store

import "container/list"

// lruIndex is the map + recency list described in spec.md §4.2. It keeps
// the running byte total; the byte budget itself is enforced by Store. It
// is grounded on the map[string]*list.Element + container/list pairing
// used for TempusCache's Cache type, generalized here to operate on
// *entry and to expose the raw *list.Element so the Store can choose
// between "touch" (move to front) and "peek" (leave in place).
//
// lruIndex has no lock of its own; callers (Store) serialize access.
type lruIndex struct {
	ll    *list.List
	items map[string]*list.Element
	bytes int64
}

func newLRUIndex() *lruIndex {
	return &lruIndex{
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

func (l *lruIndex) len() int {
	return l.ll.Len()
}

func (l *lruIndex) currentBytes() int64 {
	return l.bytes
}

// peek returns the element for key without changing recency order.
func (l *lruIndex) peek(key string) (*list.Element, bool) {
	e, ok := l.items[key]
	return e, ok
}

// moveToFront marks e as most-recently-used.
func (l *lruIndex) moveToFront(e *list.Element) {
	l.ll.MoveToFront(e)
}

// insertFront adds a brand-new entry as most-recently-used. The caller
// must ensure no element for this key already exists (remove it first).
func (l *lruIndex) insertFront(en *entry) *list.Element {
	e := l.ll.PushFront(en)
	l.items[string(en.key)] = e
	l.bytes += en.size()
	return e
}

// removeElement evicts e from both the list and the map, reclaiming its
// bytes, and returns the entry that was stored there.
func (l *lruIndex) removeElement(e *list.Element) *entry {
	en := e.Value.(*entry)
	l.ll.Remove(e)
	delete(l.items, string(en.key))
	l.bytes -= en.size()
	return en
}

// removeKey is a convenience wrapper over peek+removeElement.
func (l *lruIndex) removeKey(key string) (*entry, bool) {
	e, ok := l.items[key]
	if !ok {
		return nil, false
	}
	return l.removeElement(e), true
}

// back returns the least-recently-used element (eviction candidate), or
// nil if the index is empty. Entries pushed at the same instant with no
// intervening access naturally resolve older-first here because
// container/list preserves insertion order among untouched elements.
func (l *lruIndex) back() (*list.Element, bool) {
	e := l.ll.Back()
	if e == nil {
		return nil, false
	}
	return e, true
}

// resize replaces an element's value in place and adjusts the running
// byte total by the caller-supplied delta. Used by append/prepend/incr/decr,
// which mutate an existing entry's value without going through the
// evict-to-fit path (spec.md §9: size limits are not re-checked there).
func (l *lruIndex) resize(e *list.Element, newValue []byte, deltaBytes int64) {
	en := e.Value.(*entry)
	en.setValue(newValue)
	l.bytes += deltaBytes
}
