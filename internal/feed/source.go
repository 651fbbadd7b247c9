package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrNoInstruments = errors.New("feed returned no instruments")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrNotOpen       = errors.New("feed source is not open")
)

// maxLineSize bounds a single replayed line. Book messages for wide
// subscriptions can be large, so allow well beyond bufio's 64KiB default.
const maxLineSize = 4 * 1024 * 1024

// Source produces raw lines for the ingestion path.
type Source interface {
	// Open connects and subscribes. It returns the size of the instrument
	// universe used for coverage percentages.
	Open(ctx context.Context) (universe int, err error)

	// Next blocks until the next raw line is available. It returns io.EOF
	// when the feed ends.
	Next(ctx context.Context) (string, error)

	// Close releases the underlying connection or file.
	Close() error
}

// Subscriber is implemented by sources that negotiate a subscription in
// Open rather than replaying an existing stream.
type Subscriber interface {
	// SetPreambleHandler registers fn for text frames that arrive before the
	// instrument list. It must be called before Open.
	SetPreambleHandler(fn func(line string))

	// Subscribed reports whether Open sent the subscription.
	Subscribed() bool
}

// ReaderSource replays newline-delimited messages from a reader, e.g. a
// capture file or stdin.
type ReaderSource struct {
	r        io.Reader
	closer   io.Closer
	universe int
	scanner  *bufio.Scanner
	pacer    *Pacer
}

// ReaderOption configures a ReaderSource.
type ReaderOption func(*ReaderSource)

// WithPacing replays at most rate lines per second. Without it lines are
// returned as fast as they can be read, so a capture finishes long before
// the first report.
func WithPacing(rate float64) ReaderOption {
	return func(rs *ReaderSource) {
		if rate > 0 {
			rs.pacer = NewPacer(rate)
		}
	}
}

// NewReaderSource wraps r. Since a replay carries no availability reply the
// universe size has to be supplied by the caller.
func NewReaderSource(r io.Reader, universe int, opts ...ReaderOption) *ReaderSource {
	rs := &ReaderSource{r: r, universe: universe}
	if c, ok := r.(io.Closer); ok {
		rs.closer = c
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

// OpenFile opens path for replay; "-" means stdin.
func OpenFile(path string, universe int, opts ...ReaderOption) (*ReaderSource, error) {
	if path == "-" {
		rs := NewReaderSource(os.Stdin, universe, opts...)
		// stdin is not ours to close
		rs.closer = nil
		return rs, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feed input: %w", err)
	}
	return NewReaderSource(f, universe, opts...), nil
}

// Open implements Source.
func (rs *ReaderSource) Open(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rs.scanner = bufio.NewScanner(rs.r)
	rs.scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return rs.universe, nil
}

// Next implements Source. Blank lines are skipped.
func (rs *ReaderSource) Next(ctx context.Context) (string, error) {
	if rs.scanner == nil {
		return "", ErrNotOpen
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !rs.scanner.Scan() {
			if err := rs.scanner.Err(); err != nil {
				return "", fmt.Errorf("reading feed input: %w", err)
			}
			return "", io.EOF
		}
		line := rs.scanner.Text()
		if line == "" {
			continue
		}
		if rs.pacer != nil {
			if err := rs.pacer.Wait(ctx); err != nil {
				return "", err
			}
		}
		return line, nil
	}
}

// Close implements Source.
func (rs *ReaderSource) Close() error {
	if rs.closer != nil {
		return rs.closer.Close()
	}
	return nil
}
