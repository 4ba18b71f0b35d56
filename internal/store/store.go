// Package store implements the cache data structure and command
// semantics described in spec.md §3 and §4.1: an LRU-ordered,
// CAS-versioned, lazily-expiring map bounded by a configured byte budget,
// safe for concurrent use by many connection drivers sharing one
// instance (spec.md §4.5, §5).
package store

import (
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/ketralnis/gomemcached/internal/clock"
)

// Outcome is the command-result vocabulary from spec.md §6/§7 kind 3
// ("domain outcome") — not an error, just which reply token applies.
type Outcome int

const (
	Stored Outcome = iota
	NotStored
	Exists
	NotFound
	Deleted
	Touched
)

// Item is a read-command result row (spec.md §4.1 get/gets).
type Item struct {
	Key   []byte
	Value []byte
	Flags uint32
	Cas   uint64
}

// Store owns the LRU Index and the CAS counter. Every exported method
// executes atomically with respect to every other: spec.md §5 mandates
// that concurrent commands serialize around a single logical lock, and a
// single coarse sync.Mutex is the "natural implementation" that section
// names; striping by key hash is the documented alternative and is not
// needed at this scale.
type Store struct {
	mu sync.Mutex

	clock    clock.Clock
	maxBytes int64
	logger   *zap.SugaredLogger

	lru        *lruIndex
	casCounter uint64
	flushEpoch uint64
}

// New constructs a Store bounded at maxBytes. logger may be nil in tests.
func New(c clock.Clock, maxBytes int64, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		clock:    c,
		maxBytes: maxBytes,
		logger:   logger,
		lru:      newLRUIndex(),
	}
}

// MaxBytes returns the configured capacity.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// CurrentBytes returns the live byte total (spec.md §3 current_bytes).
func (s *Store) CurrentBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.currentBytes()
}

// Len returns the number of entries physically present, including any
// not-yet-swept lazily-expired ones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.len()
}

// liveElementLocked looks up key and, if it is present but logically
// expired or flushed, reaps it immediately (spec.md §4.1 "Lazy
// expiration"). Must be called with s.mu held.
func (s *Store) liveElementLocked(key string) (*entry, bool) {
	e, ok := s.lru.peek(key)
	if !ok {
		return nil, false
	}
	en := e.Value.(*entry)
	if !en.live(s.clock.Now(), s.flushEpoch) {
		s.lru.removeElement(e)
		return nil, false
	}
	return en, true
}

// dropIfPresentLocked removes any entry (live or stale) for key, e.g.
// before an unconditional overwrite. Must be called with s.mu held.
func (s *Store) dropIfPresentLocked(key string) {
	s.lru.removeKey(key)
}

// fitsLocked reports whether en could ever fit under maxBytes, checked
// before any existing entry for its key is removed so a rejected write
// never destroys prior data (spec.md §5 per-command atomicity). Must be
// called with s.mu held.
func (s *Store) fitsLocked(en *entry) bool {
	return en.size() <= s.maxBytes
}

// commitLocked evicts LRU-tail entries until en fits under maxBytes, then
// assigns the next CAS token and inserts en as most-recently-used.
// Callers must have already confirmed fitsLocked(en) and removed any
// existing entry for en's key. Must be called with s.mu held.
func (s *Store) commitLocked(en *entry) {
	needed := en.size()
	for s.lru.currentBytes()+needed > s.maxBytes {
		tail, ok := s.lru.back()
		if !ok {
			break
		}
		s.lru.removeElement(tail)
	}
	s.casCounter++
	en.cas = s.casCounter
	s.lru.insertFront(en)
}

// Set unconditionally stores value under key (spec.md §4.1 `set`).
func (s *Store) Set(key []byte, flags uint32, rawExptime int32, value []byte) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	expiry := encodeExpiry(rawExptime, now)
	if alreadyExpired(expiry, now) {
		s.dropIfPresentLocked(string(key))
		return Stored, nil
	}

	en := newEntry(key, value, flags, expiry, s.flushEpoch)
	if !s.fitsLocked(en) {
		s.logger.Warnw("set rejected: out of memory", "key", string(key), "size", en.size())
		return 0, ErrOutOfMemory
	}
	s.dropIfPresentLocked(string(key))
	s.commitLocked(en)
	return Stored, nil
}

// Add stores value under key only if no live entry exists for it
// (spec.md §4.1 `add`).
func (s *Store) Add(key []byte, flags uint32, rawExptime int32, value []byte) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveElementLocked(string(key)); ok {
		return NotStored, nil
	}
	now := s.clock.Now()
	expiry := encodeExpiry(rawExptime, now)
	if alreadyExpired(expiry, now) {
		return Stored, nil
	}
	en := newEntry(key, value, flags, expiry, s.flushEpoch)
	if !s.fitsLocked(en) {
		return 0, ErrOutOfMemory
	}
	s.commitLocked(en)
	return Stored, nil
}

// Replace stores value under key only if a live entry already exists
// (spec.md §4.1 `replace`). A rejection (NotStored or ErrOutOfMemory)
// must leave the existing entry untouched, so it is only removed once
// the replacement is confirmed to fit.
func (s *Store) Replace(key []byte, flags uint32, rawExptime int32, value []byte) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveElementLocked(string(key)); !ok {
		return NotStored, nil
	}

	now := s.clock.Now()
	expiry := encodeExpiry(rawExptime, now)
	if alreadyExpired(expiry, now) {
		s.dropIfPresentLocked(string(key))
		return Stored, nil
	}
	en := newEntry(key, value, flags, expiry, s.flushEpoch)
	if !s.fitsLocked(en) {
		return 0, ErrOutOfMemory
	}
	s.dropIfPresentLocked(string(key))
	s.commitLocked(en)
	return Stored, nil
}

// Cas stores value under key only if a live entry exists and its cas
// token matches casUnique exactly (spec.md §4.1 `cas`). A failed CAS
// (Exists, NotFound, or ErrOutOfMemory) must leave the guarded entry
// untouched, so it is only removed once the replacement is confirmed to
// fit.
func (s *Store) Cas(key []byte, flags uint32, rawExptime int32, casUnique uint64, value []byte) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	en, ok := s.liveElementLocked(string(key))
	if !ok {
		return NotFound, nil
	}
	if en.cas != casUnique {
		return Exists, nil
	}

	now := s.clock.Now()
	expiry := encodeExpiry(rawExptime, now)
	if alreadyExpired(expiry, now) {
		s.dropIfPresentLocked(string(key))
		return Stored, nil
	}
	newEn := newEntry(key, value, flags, expiry, s.flushEpoch)
	if !s.fitsLocked(newEn) {
		return 0, ErrOutOfMemory
	}
	s.dropIfPresentLocked(string(key))
	s.commitLocked(newEn)
	return Stored, nil
}

// concat mutates an existing entry's value by append/prepend, preserving
// its flags and expiry (spec.md §9 open question, resolved toward
// inheritance) and its existing CAS precondition window is closed by
// issuing a fresh token. Its size is NOT re-checked against maxBytes —
// spec.md §9 records this as a known, preserved deviation rather than a
// bug to silently fix.
func (s *Store) concat(key []byte, value []byte, prepend bool) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	en, ok := s.liveElementLocked(string(key))
	if !ok {
		return NotStored, nil
	}
	elem, _ := s.lru.peek(string(key))

	var merged []byte
	if prepend {
		merged = make([]byte, 0, len(value)+len(en.value))
		merged = append(merged, value...)
		merged = append(merged, en.value...)
	} else {
		merged = make([]byte, 0, len(en.value)+len(value))
		merged = append(merged, en.value...)
		merged = append(merged, value...)
	}
	delta := int64(len(merged) - len(en.value))
	s.lru.resize(elem, merged, delta)
	s.casCounter++
	en.cas = s.casCounter
	s.lru.moveToFront(elem)
	return Stored, nil
}

// Append implements spec.md §4.1 `append`.
func (s *Store) Append(key []byte, value []byte) (Outcome, error) {
	return s.concat(key, value, false)
}

// Prepend implements spec.md §4.1 `prepend`.
func (s *Store) Prepend(key []byte, value []byte) (Outcome, error) {
	return s.concat(key, value, true)
}

// Get fetches the listed keys, skipping absent or expired ones, and
// marks each hit most-recently-used (spec.md §4.1 `get`).
func (s *Store) Get(keys [][]byte) []Item {
	return s.get(keys, false)
}

// Gets is Get but each Item carries its CAS token (spec.md §4.1 `gets`).
func (s *Store) Gets(keys [][]byte) []Item {
	return s.get(keys, true)
}

func (s *Store) get(keys [][]byte, withCas bool) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		ks := string(k)
		en, ok := s.liveElementLocked(ks)
		if !ok {
			continue
		}
		elem, _ := s.lru.peek(ks)
		s.lru.moveToFront(elem)

		item := Item{Key: append([]byte(nil), en.key...), Value: append([]byte(nil), en.value...), Flags: en.flags}
		if withCas {
			item.Cas = en.cas
		}
		items = append(items, item)
	}
	return items
}

// Delete removes the live entry for key, if any (spec.md §4.1 `delete`).
// Per spec.md §9, a delete with an expiry argument is a parser-level
// rejection, not something this method sees.
func (s *Store) Delete(key []byte) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveElementLocked(string(key)); !ok {
		return NotFound
	}
	s.dropIfPresentLocked(string(key))
	return Deleted
}

// arithmetic implements the shared body of incr/decr (spec.md §4.1).
func (s *Store) arithmetic(key []byte, delta uint64, incr bool) (uint64, Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	en, ok := s.liveElementLocked(string(key))
	if !ok {
		return 0, NotFound, nil
	}

	cur, err := strconv.ParseUint(string(en.value), 10, 64)
	if err != nil {
		return 0, 0, ErrNotNumeric
	}

	var next uint64
	if incr {
		next = cur + delta // wraps at 2^64, per spec.md §4.1
	} else if delta > cur {
		next = 0 // saturates at zero, per spec.md §4.1
	} else {
		next = cur - delta
	}

	newValue := []byte(strconv.FormatUint(next, 10))
	elem, _ := s.lru.peek(string(key))
	s.lru.resize(elem, newValue, int64(len(newValue)-len(en.value)))
	s.casCounter++
	en.cas = s.casCounter
	s.lru.moveToFront(elem)

	return next, Stored, nil
}

// Incr implements spec.md §4.1 `incr`.
func (s *Store) Incr(key []byte, delta uint64) (uint64, Outcome, error) {
	return s.arithmetic(key, delta, true)
}

// Decr implements spec.md §4.1 `decr`.
func (s *Store) Decr(key []byte, delta uint64) (uint64, Outcome, error) {
	return s.arithmetic(key, delta, false)
}

// Touch updates a live entry's expiry without disturbing LRU recency
// (spec.md §4.1 `touch`, §4.2).
func (s *Store) Touch(key []byte, rawExptime int32) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	en, ok := s.liveElementLocked(string(key))
	if !ok {
		return NotFound
	}
	now := s.clock.Now()
	en.expiry = encodeExpiry(rawExptime, now)
	if alreadyExpired(en.expiry, now) {
		s.dropIfPresentLocked(string(key))
	}
	return Touched
}

// FlushAll invalidates every entry present before the call (spec.md §4.1
// `flush_all`). The delay argument is parsed by the protocol layer but
// has no effect, per spec.md §9.
func (s *Store) FlushAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushEpoch++
}
