package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram range for inter-message gaps, in microseconds.
const (
	gapHistMin     = 1
	gapHistMax     = 3600000000 // 1 hour
	gapHistSigFigs = 3
)

// GapPercentiles summarises the time between consecutive inbound lines.
type GapPercentiles struct {
	P50   time.Duration `json:"p50"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// GapRecorder records the gap between consecutive inbound lines in an HDR
// histogram.
//
// HDR histogram RecordValue is not thread-safe, so every access holds mu.
type GapRecorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
	last time.Time
}

// NewGapRecorder creates an empty recorder.
func NewGapRecorder() *GapRecorder {
	return &GapRecorder{
		hist: hdrhistogram.New(gapHistMin, gapHistMax, gapHistSigFigs),
	}
}

// Record notes a line arriving at now. The first call only sets the
// reference point.
func (g *GapRecorder) Record(now time.Time) {
	if g == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.last.IsZero() {
		micros := now.Sub(g.last).Microseconds()
		// Clamp to valid range
		if micros < gapHistMin {
			micros = gapHistMin
		}
		if micros > gapHistMax {
			micros = gapHistMax
		}
		_ = g.hist.RecordValue(micros)
	}
	g.last = now
}

// Percentiles returns the current gap distribution.
func (g *GapRecorder) Percentiles() GapPercentiles {
	if g == nil {
		return GapPercentiles{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return GapPercentiles{
		P50:   time.Duration(g.hist.ValueAtQuantile(50)) * time.Microsecond,
		P99:   time.Duration(g.hist.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(g.hist.Max()) * time.Microsecond,
		Count: g.hist.TotalCount(),
	}
}
