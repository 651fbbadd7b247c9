// Package sink provides the bounded asynchronous output queue that decouples
// report and raw-line producers from the goroutine writing them to stdout.
//
// Producers never block: TryEnqueue on a full sink drops the line being
// offered and leaves everything already queued untouched (drop-newest).
// Exactly one consumer, Run, writes queued lines in FIFO order.
package sink

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wesleyorama2/feedstats/internal/logging"
	"github.com/wesleyorama2/feedstats/internal/telemetry"
)

// DefaultCapacity is the reference queue size in lines.
const DefaultCapacity = 10000

// DropCallback is called with every line rejected by a full sink.
type DropCallback func(line string)

// Statistics is a snapshot of the sink counters.
type Statistics struct {
	Enqueued    uint64 `json:"enqueued"`
	Dropped     uint64 `json:"dropped"`
	Written     uint64 `json:"written"`
	WriteErrors uint64 `json:"writeErrors"`
}

// Option configures a Sink.
type Option func(*Sink)

// WithDropCallback registers a callback for dropped lines.
func WithDropCallback(cb DropCallback) Option {
	return func(s *Sink) {
		s.onDrop = cb
	}
}

// WithTelemetry mirrors sink counters into Prometheus collectors.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

// WithLogger sets the logger used for write errors.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sink) {
		s.logger = logging.OrNop(l)
	}
}

// Sink is a fixed-capacity FIFO of text lines with a single consumer.
type Sink struct {
	queue chan string
	out   *bufio.Writer

	// closeMu guards closing the queue against concurrent sends
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}

	enqueued    atomic.Uint64
	dropped     atomic.Uint64
	written     atomic.Uint64
	writeErrors atomic.Uint64

	onDrop  DropCallback
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// New creates a sink that writes to w. Non-positive capacity falls back to
// DefaultCapacity.
func New(capacity int, w io.Writer, opts ...Option) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	s := &Sink{
		queue:  make(chan string, capacity),
		out:    bufio.NewWriter(w),
		done:   make(chan struct{}),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.metrics.ObserveSinkDepth(s.Len)
	return s
}

// TryEnqueue offers line to the queue without blocking. It reports whether
// the line was accepted; false means the sink was full or closed and the
// line was discarded.
func (s *Sink) TryEnqueue(line string) bool {
	if s.offer(line) {
		return true
	}
	// Outside closeMu so the drop callback may call Close.
	s.drop(line)
	return false
}

func (s *Sink) offer(line string) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.queue <- line:
		s.enqueued.Add(1)
		return true
	default:
		return false
	}
}

func (s *Sink) drop(line string) {
	s.dropped.Add(1)
	s.metrics.RecordSinkDrop()
	if s.onDrop != nil {
		s.onDrop(line)
	}
}

// Run is the consumer loop. It writes every queued line followed by a
// newline and returns once the sink is closed and drained. Call it from
// exactly one goroutine.
func (s *Sink) Run() {
	defer close(s.done)

	for line := range s.queue {
		s.write(line)

		// Flush whenever the queue runs dry so output is never held back
		// while bursts still batch into few syscalls.
		if len(s.queue) == 0 {
			s.flush()
		}
	}
	s.flush()
}

func (s *Sink) write(line string) {
	if _, err := s.out.WriteString(line); err != nil {
		s.writeFailed(err)
		return
	}
	if err := s.out.WriteByte('\n'); err != nil {
		s.writeFailed(err)
		return
	}
	s.written.Add(1)
	s.metrics.RecordSinkWrite()
}

func (s *Sink) flush() {
	if err := s.out.Flush(); err != nil {
		s.writeFailed(err)
	}
}

func (s *Sink) writeFailed(err error) {
	// Only the first failure is logged; a broken stdout would otherwise
	// flood stderr once per line.
	if s.writeErrors.Add(1) == 1 {
		s.logger.Error("sink write failed", zap.Error(err))
	}
}

// Close stops accepting lines. Already queued lines are still written by
// Run. Close is idempotent.
func (s *Sink) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// Done is closed when Run has returned.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Shutdown closes the sink and waits for the consumer to drain. If ctx ends
// first the remaining lines are abandoned and ctx.Err() is returned.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.Close()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued lines.
func (s *Sink) Len() int {
	return len(s.queue)
}

// Cap returns the queue capacity.
func (s *Sink) Cap() int {
	return cap(s.queue)
}

// Remaining returns the free slots left in the queue.
func (s *Sink) Remaining() int {
	return cap(s.queue) - len(s.queue)
}

// Stats returns the current counters.
func (s *Sink) Stats() Statistics {
	return Statistics{
		Enqueued:    s.enqueued.Load(),
		Dropped:     s.dropped.Load(),
		Written:     s.written.Load(),
		WriteErrors: s.writeErrors.Load(),
	}
}
