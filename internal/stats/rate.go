package stats

import "time"

// Windows are the trailing spans every report is computed over. They are
// fixed design parameters, not configuration.
var Windows = [3]time.Duration{
	time.Second,
	10 * time.Second,
	60 * time.Second,
}

// Rates holds one per-second rate for each tracked quantity.
type Rates struct {
	TotalMessages       float64 `json:"totalMessages"`
	LiveMessages        float64 `json:"liveMessages"`
	SnapshotMessages    float64 `json:"snapshotMessages"`
	LiveInstruments     float64 `json:"liveInstruments"`
	SnapshotInstruments float64 `json:"snapshotInstruments"`
	UnionInstruments    float64 `json:"unionInstruments"`
}

// CalculateRates derives per-second rates for now over the given window.
//
// The base entry is the newest one at least window old; when history is
// shorter than the window the oldest entry is used instead. An empty history
// yields all-zero rates. The elapsed time is floored at one second so a base
// equal to now does not blow up the division.
//
// entries must be ordered oldest to newest.
func CalculateRates(now Snapshot, entries []Snapshot, window time.Duration) Rates {
	if len(entries) == 0 {
		return Rates{}
	}

	base := entries[0]
	for i := len(entries) - 1; i >= 0; i-- {
		if now.Timestamp.Sub(entries[i].Timestamp) >= window {
			base = entries[i]
			break
		}
	}

	dt := now.Timestamp.Sub(base.Timestamp).Seconds()
	if dt < 1 {
		dt = 1
	}

	return Rates{
		TotalMessages:       float64(deltaU(now.TotalMessages, base.TotalMessages)) / dt,
		LiveMessages:        float64(deltaU(now.LiveMessages, base.LiveMessages)) / dt,
		SnapshotMessages:    float64(deltaU(now.SnapshotMessages, base.SnapshotMessages)) / dt,
		LiveInstruments:     float64(deltaI(now.LiveInstruments, base.LiveInstruments)) / dt,
		SnapshotInstruments: float64(deltaI(now.SnapshotInstruments, base.SnapshotInstruments)) / dt,
		UnionInstruments:    float64(deltaI(now.UnionInstruments, base.UnionInstruments)) / dt,
	}
}

// deltaU and deltaI clamp at zero: quantities are monotone, so a negative
// difference can only be an anomaly and is not worth surfacing.
func deltaU(cur, base uint64) uint64 {
	if cur < base {
		return 0
	}
	return cur - base
}

func deltaI(cur, base int) int {
	if cur < base {
		return 0
	}
	return cur - base
}
