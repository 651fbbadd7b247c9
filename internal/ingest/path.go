// Package ingest turns classified feed events into counter updates and,
// in verbose mode, raw-line output.
package ingest

import (
	"time"

	"github.com/wesleyorama2/feedstats/internal/feed"
	"github.com/wesleyorama2/feedstats/internal/stats"
	"github.com/wesleyorama2/feedstats/internal/telemetry"
)

// RawPrefix is prepended to every forwarded raw line.
const RawPrefix = "WS: "

// LineSink accepts output lines without blocking.
type LineSink interface {
	TryEnqueue(line string) bool
}

// Option configures a Path.
type Option func(*Path)

// WithGapRecorder records the time between consecutive lines.
func WithGapRecorder(g *stats.GapRecorder) Option {
	return func(p *Path) {
		p.gaps = g
	}
}

// WithTelemetry mirrors message counts into Prometheus collectors.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(p *Path) {
		p.metrics = m
	}
}

// WithClock overrides time.Now for gap recording.
func WithClock(now func() time.Time) Option {
	return func(p *Path) {
		if now != nil {
			p.now = now
		}
	}
}

// Path is the ingestion-side handler for feed events. It never blocks on
// output and never fails.
type Path struct {
	store   *stats.Store
	sink    LineSink
	verbose bool

	gaps    *stats.GapRecorder
	metrics *telemetry.Metrics
	now     func() time.Time
}

var _ feed.Handler = (*Path)(nil)

// New creates a Path updating store. Raw lines go to sink only when verbose
// is set; sink may be nil when verbose is off.
func New(store *stats.Store, sink LineSink, verbose bool, opts ...Option) *Path {
	p := &Path{
		store:   store,
		sink:    sink,
		verbose: verbose,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnTotalMessage counts one inbound line of any kind.
func (p *Path) OnTotalMessage() {
	p.store.IncrementTotal()
	p.gaps.Record(p.now())
	p.metrics.RecordMessage(telemetry.ClassTotal)
}

// OnLiveMessage counts one live update. An empty instrument id counts the
// message without touching the instrument sets.
func (p *Path) OnLiveMessage(instrument string) {
	if instrument == "" {
		p.store.CountLive()
	} else {
		p.store.IncrementLive(instrument)
	}
	p.metrics.RecordMessage(telemetry.ClassLive)
}

// OnSnapshotMessage counts one initial snapshot.
func (p *Path) OnSnapshotMessage(instrument string) {
	if instrument == "" {
		p.store.CountSnapshot()
	} else {
		p.store.IncrementSnapshot(instrument)
	}
	p.metrics.RecordMessage(telemetry.ClassSnapshot)
}

// OnRawLine forwards the line to the sink in verbose mode. A full sink
// drops it.
func (p *Path) OnRawLine(line string) {
	if !p.verbose || p.sink == nil {
		return
	}
	p.sink.TryEnqueue(RawPrefix + line)
}
