package report

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/feedstats/internal/logging"
	"github.com/wesleyorama2/feedstats/internal/sink"
	"github.com/wesleyorama2/feedstats/internal/stats"
	"github.com/wesleyorama2/feedstats/internal/telemetry"
)

// DefaultInterval is the reporting tick.
const DefaultInterval = 5 * time.Second

// Output is where rendered reports go. It must not block.
type Output interface {
	TryEnqueue(line string) bool
	Remaining() int
	Cap() int
	Stats() sink.Statistics
}

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	// Interval between ticks; defaults to DefaultInterval.
	Interval time.Duration

	// Start is the reference for elapsed time; defaults to Now() at
	// construction.
	Start time.Time

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithTelemetry publishes each tick's figures as Prometheus gauges.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(r *Reporter) {
		r.metrics = m
	}
}

// WithGapRecorder includes inter-message gap percentiles in every report.
func WithGapRecorder(g *stats.GapRecorder) Option {
	return func(r *Reporter) {
		r.gaps = g
	}
}

// WithLogger sets the reporter's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reporter) {
		r.logger = logging.OrNop(l)
	}
}

// Reporter runs the periodic snapshot, rate calculation and rendering.
//
// Each tick reads the store, appends the reading to the timeline, computes
// rates for every window in stats.Windows and offers the rendered block to
// the output. A full output drops the report; the next tick will produce a
// fresh one.
type Reporter struct {
	interval time.Duration
	start    time.Time
	now      func() time.Time

	store    *stats.Store
	timeline *stats.Timeline
	out      Output
	renderer *Renderer

	gaps    *stats.GapRecorder
	metrics *telemetry.Metrics
	logger  *zap.Logger

	universe atomic.Int64
	latest   atomic.Pointer[Report]
}

// NewReporter creates a reporter. A nil renderer computes reports without
// emitting them, which is how raw-line-only mode runs.
func NewReporter(cfg ReporterConfig, store *stats.Store, timeline *stats.Timeline, out Output, renderer *Renderer, opts ...Option) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Start.IsZero() {
		cfg.Start = cfg.Now()
	}

	r := &Reporter{
		interval: cfg.Interval,
		start:    cfg.Start,
		now:      cfg.Now,
		store:    store,
		timeline: timeline,
		out:      out,
		renderer: renderer,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetUniverse sets the instrument universe used for coverage.
func (r *Reporter) SetUniverse(n int) {
	if n < 0 {
		n = 0
	}
	r.universe.Store(int64(n))
}

// Universe returns the current instrument universe.
func (r *Reporter) Universe() int {
	return int(r.universe.Load())
}

// Tick runs one reporting cycle as of now and returns the report.
func (r *Reporter) Tick(now time.Time) *Report {
	r.timeline.Append(stats.NewSnapshot(now, r.store.ReadAll()))
	// Latest carries the timestamp after any clamping.
	current, _ := r.timeline.Latest()

	rep := &Report{
		Timestamp: current.Timestamp,
		Elapsed:   current.Timestamp.Sub(r.start),
		Counts:    current.Counts,
		Universe:  r.Universe(),
		Gaps:      r.gaps.Percentiles(),
	}
	rep.ElapsedSeconds = rep.Elapsed.Seconds()
	rep.Coverage = newCoverage(rep.Counts, rep.Universe)

	for i, w := range stats.Windows {
		rep.Rates[i] = WindowRates{
			Window: WindowLabel(w),
			Rates:  r.timeline.Rates(current, w),
		}
	}

	if r.out != nil {
		rep.SinkRemaining = r.out.Remaining()
		rep.SinkCapacity = r.out.Cap()
		rep.SinkDropped = r.out.Stats().Dropped
	}

	r.latest.Store(rep)
	r.publish(rep)

	if r.renderer != nil && r.out != nil {
		if !r.out.TryEnqueue(r.renderer.Render(rep)) {
			r.logger.Debug("report dropped, output full")
		}
	}
	return rep
}

// Latest returns the most recent report, or nil before the first tick.
func (r *Reporter) Latest() *Report {
	return r.latest.Load()
}

// Run ticks every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("reporter started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("reporter stopped")
			return
		case <-ticker.C:
			r.Tick(r.now())
		}
	}
}

func (r *Reporter) publish(rep *Report) {
	if r.metrics == nil {
		return
	}

	r.metrics.RecordTick()
	r.metrics.SetInstruments(telemetry.ClassLive, rep.Counts.LiveInstruments)
	r.metrics.SetInstruments(telemetry.ClassSnapshot, rep.Counts.SnapshotInstruments)
	r.metrics.SetInstruments(telemetry.ClassUnion, rep.Counts.UnionInstruments)

	for _, w := range rep.Rates {
		r.metrics.SetWindowRate(w.Window, "messages_total", w.TotalMessages)
		r.metrics.SetWindowRate(w.Window, "messages_live", w.LiveMessages)
		r.metrics.SetWindowRate(w.Window, "messages_snapshot", w.SnapshotMessages)
		r.metrics.SetWindowRate(w.Window, "instruments_live", w.LiveInstruments)
		r.metrics.SetWindowRate(w.Window, "instruments_snapshot", w.SnapshotInstruments)
		r.metrics.SetWindowRate(w.Window, "instruments_union", w.UnionInstruments)
	}
}
