// Package report builds the periodic statistics report: it snapshots the
// counter store on a fixed tick, derives sliding-window rates from the
// timeline, and renders the result as a text block for the output sink.
package report

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/feedstats/internal/stats"
)

// WindowRates are the rates over one trailing window.
type WindowRates struct {
	Window string `json:"window"`
	stats.Rates
}

// Coverage is the share of the instrument universe seen so far, in percent.
type Coverage struct {
	Live     float64 `json:"live"`
	Snapshot float64 `json:"snapshot"`
	Union    float64 `json:"union"`
}

// Report is the outcome of one tick.
type Report struct {
	Timestamp      time.Time            `json:"timestamp"`
	Elapsed        time.Duration        `json:"-"`
	ElapsedSeconds float64              `json:"elapsedSeconds"`
	Counts         stats.Counts         `json:"counts"`
	Universe       int                  `json:"universe"`
	Rates          [3]WindowRates       `json:"rates"`
	Coverage       Coverage             `json:"coverage"`
	SinkRemaining  int                  `json:"sinkRemaining"`
	SinkCapacity   int                  `json:"sinkCapacity"`
	SinkDropped    uint64               `json:"sinkDropped"`
	Gaps           stats.GapPercentiles `json:"gaps"`
}

// Pct returns n as a percentage of d, or 0 when d is 0.
func Pct(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) * 100 / float64(d)
}

// WindowLabel formats a window duration as used in report columns and
// metric labels, e.g. "10s".
func WindowLabel(w time.Duration) string {
	return fmt.Sprintf("%ds", int64(w/time.Second))
}

// newCoverage computes coverage of counts against universe.
func newCoverage(c stats.Counts, universe int) Coverage {
	return Coverage{
		Live:     Pct(c.LiveInstruments, universe),
		Snapshot: Pct(c.SnapshotInstruments, universe),
		Union:    Pct(c.UnionInstruments, universe),
	}
}
