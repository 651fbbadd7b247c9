// Package telemetry exposes the aggregation core's state as Prometheus
// collectors. Every method is safe on a nil *Metrics, so components run the
// same way whether or not telemetry is attached.
package telemetry

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feedstats"

// Message classes used as label values.
const (
	ClassTotal    = "total"
	ClassLive     = "live"
	ClassSnapshot = "snapshot"
	ClassUnion    = "union"
)

// Metrics holds the Prometheus collectors for one process.
type Metrics struct {
	// Pre-resolved children so the ingestion hot path skips label lookups
	messagesTotal    prometheus.Counter
	messagesLive     prometheus.Counter
	messagesSnapshot prometheus.Counter

	instruments *prometheus.GaugeVec
	windowRate  *prometheus.GaugeVec

	sinkDropped prometheus.Counter
	sinkWritten prometheus.Counter
	sinkDepth   prometheus.GaugeFunc
	depthFn     atomic.Pointer[func() int]

	ticks prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Inbound feed messages by class",
	}, []string{"class"})

	m := &Metrics{
		messagesTotal:    messages.WithLabelValues(ClassTotal),
		messagesLive:     messages.WithLabelValues(ClassLive),
		messagesSnapshot: messages.WithLabelValues(ClassSnapshot),
		instruments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instruments",
			Help:      "Distinct instruments seen by class",
		}, []string{"class"}),
		windowRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_rate",
			Help:      "Per-second rate over a trailing window, as of the last report",
		}, []string{"window", "quantity"}),
		sinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "dropped_total",
			Help:      "Output lines dropped because the sink was full",
		}),
		sinkWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "written_total",
			Help:      "Output lines written by the sink consumer",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_ticks_total",
			Help:      "Periodic report ticks executed",
		}),
	}

	// Read at scrape time so the gauge never lags the queue.
	m.sinkDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "depth",
		Help:      "Output lines currently queued in the sink",
	}, m.sinkQueueLen)

	collectors := []prometheus.Collector{
		messages, m.instruments, m.windowRate,
		m.sinkDropped, m.sinkWritten, m.sinkDepth, m.ticks,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering telemetry collector: %w", err)
		}
	}

	return m, nil
}

// RecordMessage counts one message of the given class.
func (m *Metrics) RecordMessage(class string) {
	if m == nil {
		return
	}
	switch class {
	case ClassTotal:
		m.messagesTotal.Inc()
	case ClassLive:
		m.messagesLive.Inc()
	case ClassSnapshot:
		m.messagesSnapshot.Inc()
	}
}

// SetInstruments publishes a distinct-instrument count.
func (m *Metrics) SetInstruments(class string, n int) {
	if m == nil {
		return
	}
	m.instruments.WithLabelValues(class).Set(float64(n))
}

// SetWindowRate publishes one rate from the rate table.
func (m *Metrics) SetWindowRate(window, quantity string, v float64) {
	if m == nil {
		return
	}
	m.windowRate.WithLabelValues(window, quantity).Set(v)
}

// RecordTick counts one reporter tick.
func (m *Metrics) RecordTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

// RecordSinkDrop counts one line rejected by a full sink.
func (m *Metrics) RecordSinkDrop() {
	if m == nil {
		return
	}
	m.sinkDropped.Inc()
}

// RecordSinkWrite counts one line written by the sink consumer.
func (m *Metrics) RecordSinkWrite() {
	if m == nil {
		return
	}
	m.sinkWritten.Inc()
}

// ObserveSinkDepth makes the depth gauge report fn. The last registered
// function wins.
func (m *Metrics) ObserveSinkDepth(fn func() int) {
	if m == nil || fn == nil {
		return
	}
	m.depthFn.Store(&fn)
}

func (m *Metrics) sinkQueueLen() float64 {
	fn := m.depthFn.Load()
	if fn == nil {
		return 0
	}
	return float64((*fn)())
}
