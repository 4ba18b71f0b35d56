// Package clock provides the wall-clock source (whole Unix seconds) used by the
// store for expiration math. Production uses the OS clock; tests inject
// a Mock so expiry scenarios are deterministic.
package clock

import "time"

// Clock returns whole seconds since the Unix epoch. The store never reads
// the system clock directly so that time can be driven explicitly in tests.
type Clock interface {
	Now() int64
}

// System is the production Clock, backed by time.Now().
type System struct{}

func (System) Now() int64 {
	return time.Now().Unix()
}

// Mock is a settable Clock for tests that need to assert exact expiry
// behavior around a known "now".
type Mock struct {
	now int64
}

// NewMock returns a Mock seeded at the given unix-seconds timestamp.
func NewMock(seed int64) *Mock {
	return &Mock{now: seed}
}

func (m *Mock) Now() int64 {
	return m.now
}

// Set pins the clock to an exact value.
func (m *Mock) Set(now int64) {
	m.now = now
}

// Advance moves the clock forward by delta seconds and returns the new value.
func (m *Mock) Advance(delta int64) int64 {
	m.now += delta
	return m.now
}
