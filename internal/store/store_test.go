package store

import (
	"testing"

	"github.com/ketralnis/gomemcached/internal/clock"
)

func newTestStore(maxBytes int64) (*Store, *clock.Mock) {
	c := clock.NewMock(1000)
	return New(c, maxBytes, nil), c
}

func TestSetThenGet(t *testing.T) {
	s, _ := newTestStore(1 << 20)

	if out, err := s.Set([]byte("foo"), 7, 0, []byte("bar")); err != nil || out != Stored {
		t.Fatalf("Set: out=%v err=%v", out, err)
	}

	items := s.Get([][]byte{[]byte("foo")})
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if string(items[0].Value) != "bar" || items[0].Flags != 7 {
		t.Fatalf("unexpected item: %+v", items[0])
	}
}

func TestAddFailsWhenPresent(t *testing.T) {
	s, _ := newTestStore(1 << 20)

	if _, err := s.Set([]byte("k"), 0, 0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	out, err := s.Add([]byte("k"), 0, 0, []byte("b"))
	if err != nil || out != NotStored {
		t.Fatalf("Add: out=%v err=%v", out, err)
	}
	items := s.Get([][]byte{[]byte("k")})
	if len(items) != 1 || string(items[0].Value) != "a" {
		t.Fatalf("expected original value retained, got %+v", items)
	}
}

func TestReplaceRequiresExisting(t *testing.T) {
	s, _ := newTestStore(1 << 20)

	out, err := s.Replace([]byte("missing"), 0, 0, []byte("x"))
	if err != nil || out != NotStored {
		t.Fatalf("Replace on missing key: out=%v err=%v", out, err)
	}

	if _, err := s.Set([]byte("k"), 0, 0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	out, err = s.Replace([]byte("k"), 0, 0, []byte("b"))
	if err != nil || out != Stored {
		t.Fatalf("Replace on existing key: out=%v err=%v", out, err)
	}
}

func TestCasMismatchThenSuccess(t *testing.T) {
	s, _ := newTestStore(1 << 20)

	if _, err := s.Set([]byte("k"), 0, 0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	gets := s.Gets([][]byte{[]byte("k")})
	if len(gets) != 1 {
		t.Fatalf("expected 1 item")
	}
	token := gets[0].Cas

	// Someone else writes in between.
	if _, err := s.Set([]byte("k"), 0, 0, []byte("b")); err != nil {
		t.Fatal(err)
	}

	out, err := s.Cas([]byte("k"), 0, 0, token, []byte("c"))
	if err != nil || out != Exists {
		t.Fatalf("stale cas should report Exists: out=%v err=%v", out, err)
	}

	items := s.Get([][]byte{[]byte("k")})
	if string(items[0].Value) != "b" {
		t.Fatalf("value should remain 'b', got %q", items[0].Value)
	}

	freshGets := s.Gets([][]byte{[]byte("k")})
	out, err = s.Cas([]byte("k"), 0, 0, freshGets[0].Cas, []byte("d"))
	if err != nil || out != Stored {
		t.Fatalf("fresh cas should succeed: out=%v err=%v", out, err)
	}
}

func TestIncrOnNonNumericIsClientError(t *testing.T) {
	s, _ := newTestStore(1 << 20)

	if _, err := s.Set([]byte("k"), 0, 0, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	_, _, err := s.Incr([]byte("k"), 1)
	if err != ErrNotNumeric {
		t.Fatalf("expected ErrNotNumeric, got %v", err)
	}
}

func TestIncrWrapsDecrSaturates(t *testing.T) {
	s, _ := newTestStore(1 << 20)

	if _, err := s.Set([]byte("k"), 0, 0, []byte("5")); err != nil {
		t.Fatal(err)
	}
	next, out, err := s.Incr([]byte("k"), 3)
	if err != nil || out != Stored || next != 8 {
		t.Fatalf("Incr: next=%d out=%v err=%v", next, out, err)
	}
	next, out, err = s.Decr([]byte("k"), 100)
	if err != nil || out != Stored || next != 0 {
		t.Fatalf("Decr should saturate at 0: next=%d out=%v err=%v", next, out, err)
	}

	if _, err := s.Set([]byte("max"), 0, 0, []byte("18446744073709551615")); err != nil {
		t.Fatal(err)
	}
	next, out, err = s.Incr([]byte("max"), 2)
	if err != nil || out != Stored || next != 1 {
		t.Fatalf("Incr should wrap at 2^64: next=%d out=%v err=%v", next, out, err)
	}
}

func TestExpiryRelative(t *testing.T) {
	s, c := newTestStore(1 << 20)

	if _, err := s.Set([]byte("k"), 0, 5, []byte("x")); err != nil {
		t.Fatal(err)
	}

	c.Set(1004)
	if items := s.Get([][]byte{[]byte("k")}); len(items) != 1 {
		t.Fatalf("expected key still live at now=1004")
	}

	c.Set(1006)
	if items := s.Get([][]byte{[]byte("k")}); len(items) != 0 {
		t.Fatalf("expected key expired at now=1006, got %+v", items)
	}
}

func TestExpiryAlreadyPassedStillReportsStored(t *testing.T) {
	s, _ := newTestStore(1 << 20)

	out, err := s.Set([]byte("k"), 0, -1, []byte("x"))
	if err != nil || out != Stored {
		t.Fatalf("Set with already-expired exptime: out=%v err=%v", out, err)
	}
	if items := s.Get([][]byte{[]byte("k")}); len(items) != 0 {
		t.Fatalf("expected nothing stored, got %+v", items)
	}
}

func TestEvictionUnderPressure(t *testing.T) {
	const entrySize = 500 * 1024
	// Room for exactly two ~500KiB entries plus overhead.
	s, _ := newTestStore(2*(entrySize+entryOverhead+8) - 1)

	v := make([]byte, entrySize)
	if _, err := s.Set([]byte("k1"), 0, 0, v); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Set([]byte("k2"), 0, 0, v); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Set([]byte("k3"), 0, 0, v); err != nil {
		t.Fatal(err)
	}

	if items := s.Get([][]byte{[]byte("k1")}); len(items) != 0 {
		t.Fatalf("k1 should have been evicted")
	}
	if items := s.Get([][]byte{[]byte("k2")}); len(items) != 1 {
		t.Fatalf("k2 should still be present")
	}
	if items := s.Get([][]byte{[]byte("k3")}); len(items) != 1 {
		t.Fatalf("k3 should still be present")
	}
}

func TestValueLargerThanCacheIsOutOfMemory(t *testing.T) {
	s, _ := newTestStore(10)

	_, err := s.Set([]byte("k"), 0, 0, make([]byte, 1024))
	if err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
}

// TestFailedOverwriteLeavesPriorEntryIntact guards the atomicity invariant
// that a rejected Store command must not disturb prior state: Set, Replace,
// and Cas all drop the existing entry for a key before attempting to commit
// the replacement, so a commit failure must not have already destroyed it.
func TestFailedOverwriteLeavesPriorEntryIntact(t *testing.T) {
	// Room for exactly one small entry; anything bigger can never fit.
	s, _ := newTestStore(int64(len("k")+len("original")) + entryOverhead)

	out, err := s.Set([]byte("k"), 1, 0, []byte("original"))
	if err != nil || out != Stored {
		t.Fatalf("seed Set: out=%v err=%v", out, err)
	}
	items := s.Gets([][]byte{[]byte("k")})
	if len(items) != 1 {
		t.Fatalf("expected seeded entry to be present")
	}
	originalCas := items[0].Cas

	oversized := make([]byte, 1024)

	if _, err := s.Set([]byte("k"), 1, 0, oversized); err != ErrOutOfMemory {
		t.Fatalf("Set: expected ErrOutOfMemory, got %v", err)
	}
	assertEntryUnchanged(t, s, originalCas)

	if _, err := s.Replace([]byte("k"), 1, 0, oversized); err != ErrOutOfMemory {
		t.Fatalf("Replace: expected ErrOutOfMemory, got %v", err)
	}
	assertEntryUnchanged(t, s, originalCas)

	if _, err := s.Cas([]byte("k"), 1, 0, originalCas, oversized); err != ErrOutOfMemory {
		t.Fatalf("Cas: expected ErrOutOfMemory, got %v", err)
	}
	assertEntryUnchanged(t, s, originalCas)
}

func assertEntryUnchanged(t *testing.T, s *Store, originalCas uint64) {
	t.Helper()
	items := s.Gets([][]byte{[]byte("k")})
	if len(items) != 1 {
		t.Fatalf("expected prior entry to survive a rejected overwrite, got %+v", items)
	}
	if string(items[0].Value) != "original" {
		t.Fatalf("expected prior value to survive a rejected overwrite, got %q", items[0].Value)
	}
	if items[0].Cas != originalCas {
		t.Fatalf("expected cas token to be untouched by a rejected overwrite, got %d want %d", items[0].Cas, originalCas)
	}
}

func TestFlushAllHidesPriorEntries(t *testing.T) {
	s, _ := newTestStore(1 << 20)

	if _, err := s.Set([]byte("k"), 0, 0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	s.FlushAll()
	if items := s.Get([][]byte{[]byte("k")}); len(items) != 0 {
		t.Fatalf("expected flush_all to hide prior entries, got %+v", items)
	}

	if _, err := s.Set([]byte("k2"), 0, 0, []byte("b")); err != nil {
		t.Fatal(err)
	}
	if items := s.Get([][]byte{[]byte("k2")}); len(items) != 1 {
		t.Fatalf("writes after flush_all should be visible")
	}
}

func TestAppendPrependInheritFlagsAndExpiry(t *testing.T) {
	s, c := newTestStore(1 << 20)

	if _, err := s.Set([]byte("k"), 42, 100, []byte("bar")); err != nil {
		t.Fatal(err)
	}
	if out, err := s.Append([]byte("k"), []byte("baz")); err != nil || out != Stored {
		t.Fatalf("Append: out=%v err=%v", out, err)
	}
	if out, err := s.Prepend([]byte("k"), []byte("foo")); err != nil || out != Stored {
		t.Fatalf("Prepend: out=%v err=%v", out, err)
	}

	items := s.Get([][]byte{[]byte("k")})
	if len(items) != 1 {
		t.Fatalf("expected 1 item")
	}
	if string(items[0].Value) != "foobarbaz" {
		t.Fatalf("expected concatenation 'foobarbaz', got %q", items[0].Value)
	}
	if items[0].Flags != 42 {
		t.Fatalf("expected flags inherited from original entry, got %d", items[0].Flags)
	}

	c.Set(1101)
	if items := s.Get([][]byte{[]byte("k")}); len(items) != 0 {
		t.Fatalf("expected expiry inherited from original entry, got %+v", items)
	}
}

func TestDeleteReportsOutcome(t *testing.T) {
	s, _ := newTestStore(1 << 20)

	if out := s.Delete([]byte("missing")); out != NotFound {
		t.Fatalf("expected NotFound, got %v", out)
	}
	if _, err := s.Set([]byte("k"), 0, 0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if out := s.Delete([]byte("k")); out != Deleted {
		t.Fatalf("expected Deleted, got %v", out)
	}
	if out := s.Delete([]byte("k")); out != NotFound {
		t.Fatalf("second delete should report NotFound, got %v", out)
	}
}

func TestTouchDoesNotDisturbRecency(t *testing.T) {
	const valueSize = 100
	// Sized so "old"+"new" (key len 3 each) just fit, but adding "third"
	// (key len 5) forces exactly one eviction.
	s, _ := newTestStore(2 * (5 + valueSize + entryOverhead))

	v := make([]byte, valueSize)
	if _, err := s.Set([]byte("old"), 0, 0, v); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Set([]byte("new"), 0, 0, v); err != nil {
		t.Fatal(err)
	}
	// old is now LRU tail. Touching it must not promote it.
	if out := s.Touch([]byte("old"), 0); out != Touched {
		t.Fatalf("Touch: out=%v", out)
	}
	if _, err := s.Set([]byte("third"), 0, 0, v); err != nil {
		t.Fatal(err)
	}
	if items := s.Get([][]byte{[]byte("old")}); len(items) != 0 {
		t.Fatalf("expected 'old' evicted despite touch, got %+v", items)
	}
}

func TestCasMonotonicAcrossCommands(t *testing.T) {
	s, _ := newTestStore(1 << 20)
	var last uint64
	for i := 0; i < 50; i++ {
		if _, err := s.Set([]byte("k"), 0, 0, []byte("v")); err != nil {
			t.Fatal(err)
		}
		gets := s.Gets([][]byte{[]byte("k")})
		if gets[0].Cas <= last {
			t.Fatalf("cas_unique not strictly increasing: prev=%d cur=%d", last, gets[0].Cas)
		}
		last = gets[0].Cas
	}
}
