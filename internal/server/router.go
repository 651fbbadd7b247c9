// Package server exposes the latest report and the Prometheus registry over
// HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wesleyorama2/feedstats/internal/logging"
	"github.com/wesleyorama2/feedstats/internal/report"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// ReportSource provides the most recent report, or nil before the first.
type ReportSource interface {
	Latest() *report.Report
}

// InstrumentSource exposes the distinct instruments seen so far.
type InstrumentSource interface {
	LiveSet() map[string]struct{}
	SnapshotSet() map[string]struct{}
}

// InstrumentList is the /instruments payload, sorted by name.
type InstrumentList struct {
	Live     []string `json:"live"`
	Snapshot []string `json:"snapshot"`
}

// NewRouter wires the HTTP endpoints.
func NewRouter(reports ReportSource, instruments InstrumentSource, gatherer prometheus.Gatherer, logger *zap.Logger) *mux.Router {
	logger = logging.OrNop(logger)
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/stats", statsHandler(reports)).Methods(http.MethodGet)
	r.HandleFunc("/instruments", instrumentsHandler(instruments)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)

	r.Use(loggingMiddleware(logger))

	return r
}

func statsHandler(reports ReportSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest := reports.Latest()
		if latest == nil {
			writeError(w, ErrNoReport, http.StatusNotFound)
			return
		}
		writeResult(w, latest)
	}
}

func instrumentsHandler(src InstrumentSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, InstrumentList{
			Live:     sortedKeys(src.LiveSet()),
			Snapshot: sortedKeys(src.SnapshotSet()),
		})
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeResult(w, map[string]string{"status": "ok"})
}

func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// NewServer creates an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Run listens on server.Addr and serves until ctx is done.
func Run(ctx context.Context, server *http.Server, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	return Serve(ctx, server, ln, logger)
}

// Serve serves on ln until ctx is done, then shuts down gracefully within
// DefaultShutdownTimeout.
func Serve(ctx context.Context, server *http.Server, ln net.Listener, logger *zap.Logger) error {
	logger = logging.OrNop(logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	if err := gracefulShutdown(server, DefaultShutdownTimeout); err != nil {
		logger.Warn("http server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("http server stopped gracefully")
	return nil
}

func gracefulShutdown(server *http.Server, maximumTime time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), maximumTime)
	defer cancel()

	return server.Shutdown(ctx)
}
