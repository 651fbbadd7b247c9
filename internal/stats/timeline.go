package stats

import (
	"sync"
	"time"
)

// DefaultRetention is how far back the timeline keeps snapshots. It matches
// the largest tracked window; with a 5s tick the timeline holds 13 entries.
const DefaultRetention = 60 * time.Second

// Snapshot is one immutable point-in-time read of the Store.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Counts
}

// NewSnapshot stamps a Counts read with the time it was taken.
func NewSnapshot(at time.Time, c Counts) Snapshot {
	return Snapshot{Timestamp: at, Counts: c}
}

// Timeline is an ordered, bounded history of snapshots, oldest first.
//
// Entries are only ever appended at the back and evicted from the front once
// they are older than the retention horizon relative to the newest entry.
// Ages are compared in whole seconds, so a tick that fires a few milliseconds
// late still finds the entry one retention span back.
// Timeline is safe for concurrent use; Entries returns a copy so readers never
// observe an eviction in progress.
type Timeline struct {
	mu        sync.RWMutex
	entries   []Snapshot
	retention time.Duration
}

// NewTimeline creates a timeline. A non-positive retention falls back to
// DefaultRetention.
func NewTimeline(retention time.Duration) *Timeline {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Timeline{
		entries:   make([]Snapshot, 0, 16),
		retention: retention,
	}
}

// Append adds s as the newest entry and prunes stale entries.
//
// A timestamp earlier than the current newest entry is clamped to it, so the
// ordering invariant holds even if the clock source misbehaves.
func (t *Timeline) Append(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.entries); n > 0 {
		if last := t.entries[n-1].Timestamp; s.Timestamp.Before(last) {
			s.Timestamp = last
		}
	}
	t.entries = append(t.entries, s)

	drop := 0
	for drop < len(t.entries) && t.stale(s.Timestamp, t.entries[drop].Timestamp) {
		drop++
	}
	if drop > 0 {
		// Shift rather than reslice so the backing array does not grow forever.
		n := copy(t.entries, t.entries[drop:])
		t.entries = t.entries[:n]
	}
}

// stale reports whether an entry taken at ts has aged out relative to newest.
func (t *Timeline) stale(newest, ts time.Time) bool {
	return newest.Sub(ts).Truncate(time.Second) > t.retention
}

// Entries returns a copy of the timeline in oldest-to-newest order.
func (t *Timeline) Entries() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Snapshot, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of retained snapshots.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Latest returns the newest snapshot, if any.
func (t *Timeline) Latest() (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.entries) == 0 {
		return Snapshot{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// Rates computes the window rates for now against the retained history
// without copying it.
func (t *Timeline) Rates(now Snapshot, window time.Duration) Rates {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return CalculateRates(now, t.entries, window)
}
