package server

import "sync"

// stats tracks process-lifetime operation counters purely for the
// shutdown log line ListenAndServe emits. This is deliberately not the wire-exposed `stats`
// command spec.md §1 scopes out — nothing on the connection driver's
// dispatch path reads it back to a client.
type stats struct {
	mu sync.Mutex

	totalOps    uint64
	getOps      uint64
	setOps      uint64
	delOps      uint64
	connections uint64
}

func newStats() *stats {
	return &stats{}
}

func (s *stats) connectionOpened() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections++
}

func (s *stats) recordGet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++
	s.getOps++
}

func (s *stats) recordSet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++
	s.setOps++
}

func (s *stats) recordDelete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++
	s.delOps++
}

type statsSnapshot struct {
	TotalOps    uint64
	GetOps      uint64
	SetOps      uint64
	DelOps      uint64
	Connections uint64
}

func (s *stats) snapshot() statsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statsSnapshot{
		TotalOps:    s.totalOps,
		GetOps:      s.getOps,
		SetOps:      s.setOps,
		DelOps:      s.delOps,
		Connections: s.connections,
	}
}
