// Package stats holds the aggregation core: the counter store updated by the
// ingestion path, the bounded snapshot timeline written by the reporter, and
// the sliding-window rate calculation derived from both.
package stats

import (
	"sync"
	"sync/atomic"
)

// Store tracks message counters and the distinct instruments seen per class.
//
// # Thread Safety
//
// Store is safe for concurrent use. Counters use atomic operations and the
// instrument sets share a single RWMutex. ReadAll returns each field
// consistently on its own; it does not promise a cross-field atomic view.
type Store struct {
	// Atomic counters for lock-free updates
	totalMessages    atomic.Uint64
	liveMessages     atomic.Uint64
	snapshotMessages atomic.Uint64

	// Insert-only instrument sets
	setsMu              sync.RWMutex
	liveInstruments     map[string]struct{}
	snapshotInstruments map[string]struct{}
	allInstruments      map[string]struct{} // union of the two sets above
}

// Counts is a point-in-time read of the Store.
type Counts struct {
	TotalMessages       uint64 `json:"totalMessages"`
	LiveMessages        uint64 `json:"liveMessages"`
	SnapshotMessages    uint64 `json:"snapshotMessages"`
	LiveInstruments     int    `json:"liveInstruments"`
	SnapshotInstruments int    `json:"snapshotInstruments"`
	UnionInstruments    int    `json:"unionInstruments"`
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		liveInstruments:     make(map[string]struct{}),
		snapshotInstruments: make(map[string]struct{}),
		allInstruments:      make(map[string]struct{}),
	}
}

// IncrementTotal counts one raw inbound line.
func (s *Store) IncrementTotal() {
	s.totalMessages.Add(1)
}

// IncrementLive counts one live message and records its instrument.
func (s *Store) IncrementLive(instrument string) {
	s.liveMessages.Add(1)
	s.insert(s.liveInstruments, instrument)
}

// IncrementSnapshot counts one snapshot message and records its instrument.
func (s *Store) IncrementSnapshot(instrument string) {
	s.snapshotMessages.Add(1)
	s.insert(s.snapshotInstruments, instrument)
}

// CountLive bumps the live counter without touching the instrument sets.
// Used for live messages that carry no instrument id.
func (s *Store) CountLive() {
	s.liveMessages.Add(1)
}

// CountSnapshot is the snapshot counterpart of CountLive.
func (s *Store) CountSnapshot() {
	s.snapshotMessages.Add(1)
}

func (s *Store) insert(set map[string]struct{}, instrument string) {
	// Fast path: most messages are for instruments we have already seen.
	s.setsMu.RLock()
	_, seen := set[instrument]
	s.setsMu.RUnlock()
	if seen {
		return
	}

	s.setsMu.Lock()
	set[instrument] = struct{}{}
	s.allInstruments[instrument] = struct{}{}
	s.setsMu.Unlock()
}

// ReadAll returns the current counters and set sizes.
func (s *Store) ReadAll() Counts {
	c := Counts{
		TotalMessages:    s.totalMessages.Load(),
		LiveMessages:     s.liveMessages.Load(),
		SnapshotMessages: s.snapshotMessages.Load(),
	}

	s.setsMu.RLock()
	c.LiveInstruments = len(s.liveInstruments)
	c.SnapshotInstruments = len(s.snapshotInstruments)
	c.UnionInstruments = len(s.allInstruments)
	s.setsMu.RUnlock()

	return c
}

// LiveSet returns a copy of the live instrument set.
func (s *Store) LiveSet() map[string]struct{} {
	return s.copySet(s.liveInstruments)
}

// SnapshotSet returns a copy of the snapshot instrument set.
func (s *Store) SnapshotSet() map[string]struct{} {
	return s.copySet(s.snapshotInstruments)
}

func (s *Store) copySet(set map[string]struct{}) map[string]struct{} {
	s.setsMu.RLock()
	defer s.setsMu.RUnlock()

	out := make(map[string]struct{}, len(set))
	for k := range set {
		out[k] = struct{}{}
	}
	return out
}
