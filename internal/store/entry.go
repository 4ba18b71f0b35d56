package store

// entryOverhead approximates the fixed per-entry bookkeeping cost (list
// node, map slot, struct headers) that the reference server charges
// against an item's slab class. It is a flat constant here rather than a
// slab-accurate figure since custom slab allocation is out of scope
// (spec.md §1 Non-goals); it only needs to make current_bytes accounting
// converge to something that evicts sensibly under pressure.
const entryOverhead = 48

// entry is one live-or-stale cache record. It is always accessed under
// Store.mu, so it carries no locking of its own.
type entry struct {
	key          []byte
	value        []byte
	flags        uint32
	expiry       int64 // 0 = never, else absolute unix seconds
	cas          uint64
	createdEpoch uint64 // flushEpoch snapshot at creation, for flush_all
}

func newEntry(key, value []byte, flags uint32, expiry int64, createdEpoch uint64) *entry {
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	return &entry{key: k, value: v, flags: flags, expiry: expiry, createdEpoch: createdEpoch}
}

func (e *entry) size() int64 {
	return int64(len(e.key)+len(e.value)) + entryOverhead
}

// setValue replaces the value in place, used by append/prepend/incr/decr
// which mutate an existing entry rather than creating a new one.
func (e *entry) setValue(v []byte) {
	e.value = v
}

// live reports whether e is visible to reads at the given time and flush
// generation (spec.md §3 invariant 1 and §4.1 flush_all semantics).
func (e *entry) live(now int64, flushEpoch uint64) bool {
	if e.createdEpoch < flushEpoch {
		return false
	}
	if e.expiry != 0 && e.expiry <= now {
		return false
	}
	return true
}
