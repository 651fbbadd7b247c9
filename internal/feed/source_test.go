package feed

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, src Source) []string {
	t.Helper()

	var lines []string
	for {
		line, err := src.Next(context.Background())
		if err == io.EOF {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestReaderSource_Replay(t *testing.T) {
	input := strings.Join([]string{
		`{"ev":"book","symb":"A"}`,
		``,
		`{"ev":"book","symb":"B"}`,
		`{"ev":"pong"}`,
	}, "\n")

	src := NewReaderSource(strings.NewReader(input), 42)
	universe, err := src.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, universe)

	lines := drain(t, src)
	assert.Equal(t, []string{
		`{"ev":"book","symb":"A"}`,
		`{"ev":"book","symb":"B"}`,
		`{"ev":"pong"}`,
	}, lines)
	assert.NoError(t, src.Close())
}

func TestReaderSource_NextBeforeOpen(t *testing.T) {
	src := NewReaderSource(strings.NewReader("x"), 0)
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestReaderSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewReaderSource(strings.NewReader("x\ny\n"), 0)
	_, err := src.Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = src.Open(context.Background())
	require.NoError(t, err)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaderSource_LongLine(t *testing.T) {
	long := strings.Repeat("x", 256*1024)
	src := NewReaderSource(strings.NewReader(long+"\n"), 0)
	_, err := src.Open(context.Background())
	require.NoError(t, err)

	line, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, line, len(long))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o600))

	src, err := OpenFile(path, 7)
	require.NoError(t, err)
	universe, err := src.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, universe)

	assert.Equal(t, []string{"a", "b"}, drain(t, src))
	assert.NoError(t, src.Close())
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.jsonl"), 0)
	assert.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReaderSource_Pacing(t *testing.T) {
	input := strings.Repeat(`{"ev":"book","symb":"A"}`+"\n", 5)
	src := NewReaderSource(strings.NewReader(input), 1, WithPacing(50))
	_, err := src.Open(context.Background())
	require.NoError(t, err)

	start := time.Now()
	assert.Len(t, drain(t, src), 5)
	// Five slots at 50/s span at least 80ms after the first.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestReaderSource_PacingCanceled(t *testing.T) {
	src := NewReaderSource(strings.NewReader("a\nb\n"), 1, WithPacing(0.001))
	_, err := src.Open(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
