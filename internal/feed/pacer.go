package feed

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces events at a fixed rate using a leaky bucket.
//
// The bucket keeps a virtual drip time that advances at the configured rate.
// Next returns when the next event is due; if the caller has fallen behind
// schedule the returned time is now and the event goes out immediately.
// At most one event is ever owed, so a stalled consumer does not cause a
// burst when it resumes.
//
// Pacer is safe for concurrent use.
type Pacer struct {
	mu          sync.Mutex
	rate        float64 // events per second
	lastDrip    time.Time
	accumulated float64
	now         func() time.Time
}

// NewPacer creates a pacer emitting rate events per second. Non-positive
// rates fall back to one per second.
func NewPacer(rate float64) *Pacer {
	return newPacerWithClock(rate, time.Now)
}

func newPacerWithClock(rate float64, now func() time.Time) *Pacer {
	if rate <= 0 {
		rate = 1.0
	}
	return &Pacer{
		rate:     rate,
		lastDrip: now(),
		now:      now,
	}
}

// Next reserves the next slot and returns when it starts.
func (p *Pacer) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	elapsed := now.Sub(p.lastDrip).Seconds()
	// lastDrip can be in the future when a slot was reserved ahead
	if elapsed < 0 {
		elapsed = 0
	}

	p.accumulated += elapsed * p.rate
	if p.accumulated > 1.0 {
		p.accumulated = 1.0
	}

	if p.accumulated >= 1.0 {
		p.accumulated -= 1.0
		p.lastDrip = now
		return now
	}

	// Slots already reserved ahead of now queue behind each other.
	base := now
	if p.lastDrip.After(now) {
		base = p.lastDrip
	}
	deficit := 1.0 - p.accumulated
	next := base.Add(time.Duration(deficit / p.rate * float64(time.Second)))
	p.accumulated = 0
	// Advancing lastDrip to the reserved slot keeps the wake-up at next
	// from counting the same interval twice.
	p.lastDrip = next
	return next
}

// Wait blocks until the next slot or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	wait := time.Until(p.Next())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
