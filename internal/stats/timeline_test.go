package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func snapAt(offset time.Duration, total uint64) Snapshot {
	return NewSnapshot(t0.Add(offset), Counts{TotalMessages: total})
}

func TestNewTimeline_Defaults(t *testing.T) {
	tl := NewTimeline(0)

	assert.Equal(t, 0, tl.Len())
	_, ok := tl.Latest()
	assert.False(t, ok, "empty timeline has no latest entry")

	tl.Append(snapAt(0, 1))
	tl.Append(snapAt(DefaultRetention, 2))
	tl.Append(snapAt(DefaultRetention+time.Second, 3))

	entries := tl.Entries()
	require.Len(t, entries, 2, "default retention applies")
	assert.Equal(t, uint64(2), entries[0].TotalMessages)
}

func TestTimeline_AppendOrdered(t *testing.T) {
	tl := NewTimeline(DefaultRetention)

	tl.Append(snapAt(0, 1))
	tl.Append(snapAt(5*time.Second, 2))
	tl.Append(snapAt(10*time.Second, 3))

	entries := tl.Entries()
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp), "entry %d out of order", i)
	}

	latest, ok := tl.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(3), latest.TotalMessages)
}

func TestTimeline_ClampsBackwardsTimestamp(t *testing.T) {
	tl := NewTimeline(DefaultRetention)

	tl.Append(snapAt(10*time.Second, 1))
	tl.Append(snapAt(5*time.Second, 2))

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].Timestamp, entries[1].Timestamp, "earlier timestamp clamped to newest")
}

func TestTimeline_RetentionBound(t *testing.T) {
	tl := NewTimeline(DefaultRetention)

	// 30 ticks 5s apart spans 145s, well past the 60s horizon.
	for i := 0; i < 30; i++ {
		tl.Append(snapAt(time.Duration(i)*5*time.Second, uint64(i)))

		entries := tl.Entries()
		newest := entries[len(entries)-1].Timestamp
		for _, e := range entries {
			assert.LessOrEqual(t, newest.Sub(e.Timestamp).Truncate(time.Second), 60*time.Second,
				"tick %d retained a stale entry", i)
		}
	}

	// An entry exactly 60s old is kept: eviction is strictly "older than".
	entries := tl.Entries()
	assert.Len(t, entries, 13)
	assert.Equal(t, 60*time.Second, entries[len(entries)-1].Timestamp.Sub(entries[0].Timestamp))
}

func TestTimeline_LateTicksKeepWindowBase(t *testing.T) {
	tests := []struct {
		name string
		lag  time.Duration
	}{
		{"on time", 0},
		{"1ms late per tick", time.Millisecond},
		{"40ms late per tick", 40 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := NewTimeline(DefaultRetention)

			// Tick i fires at i*5s plus an accumulated lag; 10 messages per tick.
			var now Snapshot
			for i := 0; i < 25; i++ {
				now = snapAt(time.Duration(i)*(5*time.Second+tt.lag), uint64(i*10))
				tl.Append(now)
			}

			entries := tl.Entries()
			require.Len(t, entries, 13)
			oldestAge := now.Timestamp.Sub(entries[0].Timestamp)
			assert.GreaterOrEqual(t, oldestAge, 60*time.Second)

			// The base for the 60s window is the entry twelve ticks back.
			r := tl.Rates(now, 60*time.Second)
			assert.InDelta(t, 120/oldestAge.Seconds(), r.TotalMessages, 1e-9)
		})
	}
}

func TestTimeline_ShortTickKeepsFullHorizon(t *testing.T) {
	tl := NewTimeline(DefaultRetention)

	for i := 0; i <= 700; i++ {
		tl.Append(snapAt(time.Duration(i)*100*time.Millisecond, uint64(i)))
	}

	entries := tl.Entries()
	newest := entries[len(entries)-1].Timestamp
	age := newest.Sub(entries[0].Timestamp)
	assert.GreaterOrEqual(t, age, 60*time.Second, "no size cap cuts into the horizon")
	assert.Less(t, age, 61*time.Second)
}

func TestTimeline_EntriesIsACopy(t *testing.T) {
	tl := NewTimeline(DefaultRetention)
	tl.Append(snapAt(0, 1))

	entries := tl.Entries()
	entries[0].TotalMessages = 99

	again := tl.Entries()
	assert.Equal(t, uint64(1), again[0].TotalMessages)
}

func TestTimeline_ConcurrentReadDuringAppend(t *testing.T) {
	tl := NewTimeline(DefaultRetention)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			tl.Append(snapAt(time.Duration(i)*time.Second, uint64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			entries := tl.Entries()
			for j := 1; j < len(entries); j++ {
				if entries[j].Timestamp.Before(entries[j-1].Timestamp) {
					t.Errorf("entries out of order at %d", j)
					return
				}
			}
			_ = tl.Rates(snapAt(time.Duration(i)*time.Second, uint64(i)), 10*time.Second)
		}
	}()
	wg.Wait()
}
