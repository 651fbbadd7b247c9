// Package app wires the feed, the aggregation core, the output sink and the
// optional HTTP surface into one run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/wesleyorama2/feedstats/internal/config"
	"github.com/wesleyorama2/feedstats/internal/feed"
	"github.com/wesleyorama2/feedstats/internal/ingest"
	"github.com/wesleyorama2/feedstats/internal/logging"
	"github.com/wesleyorama2/feedstats/internal/report"
	"github.com/wesleyorama2/feedstats/internal/server"
	"github.com/wesleyorama2/feedstats/internal/sink"
	"github.com/wesleyorama2/feedstats/internal/stats"
	"github.com/wesleyorama2/feedstats/internal/telemetry"
)

// Option configures an App.
type Option func(*App)

// WithOutput replaces stdout as the destination of the output stream.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		a.out = w
	}
}

// WithClock replaces time.Now for the reporter and gap recording.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// App is one configured feedstats process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
	now    func() time.Time

	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	store    *stats.Store
	timeline *stats.Timeline
	gaps     *stats.GapRecorder
	sink     *sink.Sink
	reporter *report.Reporter
	path     *ingest.Path

	dropWarned atomic.Bool
}

// New builds every component from cfg. cfg must already be validated.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logging.OrNop(logger),
		out:    os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.registry = prometheus.NewRegistry()
	if err := a.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("registering go collector: %w", err)
	}
	metrics, err := telemetry.New(a.registry)
	if err != nil {
		return nil, err
	}
	a.metrics = metrics

	colorMode, err := report.ParseColorMode(cfg.Report.Color)
	if err != nil {
		return nil, err
	}

	interval := cfg.Report.Interval.Std()
	a.store = stats.NewStore()
	a.timeline = stats.NewTimeline(stats.DefaultRetention)
	a.gaps = stats.NewGapRecorder()
	a.sink = sink.New(cfg.Sink.Capacity, a.out,
		sink.WithTelemetry(a.metrics),
		sink.WithLogger(a.logger.Named("sink")),
		sink.WithDropCallback(a.warnOnDrop),
	)

	var renderer *report.Renderer
	if cfg.Mode.ReportEnabled() {
		renderer = report.NewRenderer(report.UseColor(colorMode, a.out))
	}
	a.reporter = report.NewReporter(
		report.ReporterConfig{Interval: interval, Start: a.now(), Now: a.now},
		a.store, a.timeline, a.sink, renderer,
		report.WithTelemetry(a.metrics),
		report.WithGapRecorder(a.gaps),
		report.WithLogger(a.logger.Named("reporter")),
	)

	a.path = ingest.New(a.store, a.sink, cfg.Mode.Verbose(),
		ingest.WithGapRecorder(a.gaps),
		ingest.WithTelemetry(a.metrics),
		ingest.WithClock(a.now),
	)

	return a, nil
}

// warnOnDrop logs the first line lost to a full sink; later drops are only
// counted.
func (a *App) warnOnDrop(string) {
	if a.dropWarned.CompareAndSwap(false, true) {
		a.logger.Warn("output full, dropping lines", zap.Int("capacity", a.sink.Cap()))
	}
}

// Store returns the counter store.
func (a *App) Store() *stats.Store { return a.store }

// Reporter returns the periodic reporter.
func (a *App) Reporter() *report.Reporter { return a.reporter }

// Registry returns the Prometheus registry holding the app's collectors.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Run opens src and ingests it until the feed ends, fails, or ctx is
// canceled. Queued output is drained before Run returns, bounded by the
// configured drain timeout.
//
// The feed ending (io.EOF) and cancellation are clean exits and return nil.
func (a *App) Run(ctx context.Context, src feed.Source) error {
	go a.sink.Run()

	var closeOnce sync.Once
	closeSource := func() {
		closeOnce.Do(func() {
			if err := src.Close(); err != nil {
				a.logger.Debug("closing feed", zap.Error(err))
			}
		})
	}

	sub, subscribes := src.(feed.Subscriber)
	if subscribes {
		sub.SetPreambleHandler(a.path.OnRawLine)
	}

	universe, err := src.Open(ctx)
	if err != nil {
		closeSource()
		a.drain()
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("opening feed: %w", err)
	}
	a.reporter.SetUniverse(universe)
	a.logger.Info("feed open", zap.Int("instruments", universe))
	a.sink.TryEnqueue(fmt.Sprintf("Got %d instruments.", universe))
	if subscribes && sub.Subscribed() {
		a.sink.TryEnqueue("Sent subscribe for all instruments.")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.reporter.Run(runCtx)
	}()

	if a.cfg.Server.Addr != "" {
		srv := server.NewServer(a.cfg.Server.Addr,
			server.NewRouter(a.reporter, a.store, a.registry, a.logger.Named("http")))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(runCtx, srv, a.logger.Named("http")); err != nil {
				a.logger.Error("http server failed", zap.Error(err))
			}
		}()
	}

	// Next may be blocked in a read that ignores ctx; closing the source
	// unblocks it.
	go func() {
		<-runCtx.Done()
		closeSource()
	}()

	feedErr := a.ingest(runCtx, src)

	cancel()
	wg.Wait()
	closeSource()

	// A final report so short replays still produce one.
	if a.cfg.Mode.ReportEnabled() {
		a.reporter.Tick(a.now())
	}
	a.drain()

	sinkStats := a.sink.Stats()
	a.logger.Info("run finished",
		zap.Uint64("messages", a.store.ReadAll().TotalMessages),
		zap.Uint64("written", sinkStats.Written),
		zap.Uint64("dropped", sinkStats.Dropped))

	return feedErr
}

func (a *App) ingest(ctx context.Context, src feed.Source) error {
	for {
		line, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				a.logger.Info("feed ended")
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("reading feed: %w", err)
			}
		}
		feed.Dispatch(line, a.path)
	}
}

func (a *App) drain() {
	timeout := a.cfg.Sink.DrainTimeout.Std()
	if timeout <= 0 {
		timeout = config.DefaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.sink.Shutdown(ctx); err != nil {
		a.logger.Warn("output not fully drained", zap.Int("abandoned", a.sink.Len()), zap.Error(err))
	}
}

// SourceFromConfig builds the feed source selected by cfg: a replay when
// feed.input is set, otherwise the websocket stream, fetching a token first
// when credentials are configured.
func SourceFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (feed.Source, error) {
	logger = logging.OrNop(logger)

	if cfg.Feed.Input != "" {
		logger.Info("replaying feed",
			zap.String("input", cfg.Feed.Input),
			zap.Float64("rate", cfg.Feed.ReplayRate))
		return feed.OpenFile(cfg.Feed.Input, cfg.Universe, feed.WithPacing(cfg.Feed.ReplayRate))
	}

	var token string
	if cfg.Feed.HasCredentials() {
		client := &http.Client{Timeout: cfg.Feed.HandshakeTimeout.Std()}
		t, err := feed.FetchToken(ctx, client, cfg.Feed.AuthURL, cfg.Feed.APIKey, cfg.Feed.ClientID)
		if err != nil {
			return nil, fmt.Errorf("fetching token: %w", err)
		}
		token = t
		logger.Info("got token", zap.String("prefix", tokenPrefix(token)))
	}

	return feed.NewWebSocketSource(feed.WebSocketConfig{
		URL:              cfg.Feed.URL,
		Token:            token,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout.Std(),
		Logger:           logger.Named("feed"),
	}), nil
}

func tokenPrefix(token string) string {
	if len(token) > 20 {
		return token[:20]
	}
	return token
}
