package clocksync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseEnd = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

func fixedFetch(end, serverNow time.Time) FetchFunc {
	return func(context.Context) (time.Time, time.Time, error) {
		return end, serverNow, nil
	}
}

func TestInitialize_RemainingMatchesServerClock(t *testing.T) {
	tests := []struct {
		name      string
		end       time.Time
		serverNow time.Time
		localNow  time.Time
		want      int
	}{
		{"zero skew", baseEnd, baseEnd.Add(-10 * time.Second), baseEnd.Add(-10 * time.Second), 10},
		{"local clock ahead", baseEnd, baseEnd.Add(-60 * time.Second), baseEnd.Add(-5 * time.Second), 60},
		{"local clock behind", baseEnd, baseEnd.Add(-30 * time.Second), baseEnd.Add(-2 * time.Hour), 30},
		{"fractional floors", baseEnd, baseEnd.Add(-9500 * time.Millisecond), baseEnd.Add(-9500 * time.Millisecond), 9},
		{"end in the past", baseEnd, baseEnd.Add(45 * time.Second), baseEnd.Add(-time.Minute), 0},
		{"end equals now", baseEnd, baseEnd, baseEnd, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(tt.localNow)
			s := New(clock)
			s.Initialize(tt.end, tt.serverNow)

			assert.Equal(t, tt.want, s.Tick())
			remaining, ok := s.Remaining()
			assert.True(t, ok)
			assert.Equal(t, tt.want, remaining)
			assert.GreaterOrEqual(t, remaining, 0)
		})
	}
}

func TestInitialize_MissingServerTimeUsesLocalClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-42 * time.Second))
	s := New(clock)
	s.Initialize(baseEnd, time.Time{})

	assert.Zero(t, s.Offset())
	assert.Equal(t, 42, s.Tick())
}

func TestTick_BeforeInitialize(t *testing.T) {
	s := New(clockwork.NewFakeClock())
	assert.Equal(t, 0, s.Tick())
	_, ok := s.Remaining()
	assert.False(t, ok)
}

func TestTick_CountsDownAndStopsAtZero(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-3 * time.Second))
	s := New(clock)
	s.Initialize(baseEnd, clock.Now())

	var seen []int
	for i := 0; i < 5; i++ {
		seen = append(seen, s.Tick())
		clock.Advance(time.Second)
	}
	assert.Equal(t, []int{3, 2, 1, 0, 0}, seen)
}

func TestOnPushExtension_ReflectedOnNextTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-10 * time.Second))
	s := New(clock)
	s.Initialize(baseEnd, clock.Now())
	require.Equal(t, 10, s.Tick())

	ext, ok := s.OnPushExtension(baseEnd.Add(120 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 120, ext.Seconds)
	assert.Equal(t, SourcePush, ext.Source)
	assert.Equal(t, 130, s.Tick())

	state := s.State()
	assert.Equal(t, baseEnd, state.LastKnownEnd)
	assert.Equal(t, baseEnd.Add(120*time.Second), state.AuthoritativeEnd)
}

func TestOnPushExtension_ReportsExactSeconds(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-30 * time.Second))
	s := New(clock)
	s.Initialize(baseEnd, clock.Now())

	ext, ok := s.OnPushExtension(baseEnd.Add(125 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 125, ext.Seconds)
	assert.Equal(t, 155, s.Tick())
}

func TestOnPushExtension_IgnoresEqualAndEarlier(t *testing.T) {
	tests := []struct {
		name   string
		newEnd time.Time
	}{
		{"duplicate frame", baseEnd},
		{"reordered older frame", baseEnd.Add(-30 * time.Second)},
		{"sub-second jitter", baseEnd.Add(300 * time.Millisecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(baseEnd.Add(-time.Minute))
			s := New(clock)
			s.Initialize(baseEnd, clock.Now())

			_, ok := s.OnPushExtension(tt.newEnd)
			assert.False(t, ok)
			_, showing := s.Extension()
			assert.False(t, showing)
			assert.False(t, s.EndTime().Before(baseEnd))
			assert.Equal(t, 60, s.Tick())
		})
	}
}

func TestExtensionBanner_ClearsAfterWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-time.Minute))
	s := New(clock)
	s.Initialize(baseEnd, clock.Now())
	_, ok := s.OnPushExtension(baseEnd.Add(2 * time.Minute))
	require.True(t, ok)

	clock.Advance(DefaultBannerWindow - time.Millisecond)
	ext, showing := s.Extension()
	require.True(t, showing)
	assert.Equal(t, 120, ext.Seconds)

	clock.Advance(time.Millisecond)
	_, showing = s.Extension()
	assert.False(t, showing)
}

func TestResync_BelowThresholdUpdatesWithoutNotice(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-time.Minute))
	s := New(clock)
	s.Initialize(baseEnd, clock.Now())

	serverNow := clock.Now().Add(2 * time.Second)
	ext, reported, err := s.Resync(context.Background(), fixedFetch(baseEnd.Add(3*time.Second), serverNow))
	require.NoError(t, err)
	assert.False(t, reported)
	assert.Zero(t, ext)

	assert.Equal(t, baseEnd.Add(3*time.Second), s.EndTime())
	assert.Equal(t, 2*time.Second, s.Offset())
	assert.Equal(t, 61, s.Tick())
	_, showing := s.Extension()
	assert.False(t, showing)
}

func TestResync_MaterialExtensionNotifies(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-time.Minute))
	s := New(clock)
	s.Initialize(baseEnd, clock.Now())

	ext, reported, err := s.Resync(context.Background(), fixedFetch(baseEnd.Add(120*time.Second), clock.Now()))
	require.NoError(t, err)
	require.True(t, reported)
	assert.Equal(t, 120, ext.Seconds)
	assert.Equal(t, SourceResync, ext.Source)
	assert.Equal(t, 180, s.Tick())
}

func TestResync_FailureKeepsState(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-time.Minute))
	s := New(clock)
	s.Initialize(baseEnd, clock.Now().Add(time.Second))
	before := s.State()

	boom := errors.New("gateway timeout")
	_, _, err := s.Resync(context.Background(), func(context.Context) (time.Time, time.Time, error) {
		return time.Time{}, time.Time{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, s.State())
}

func TestResync_NeverMovesEndBackward(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-time.Minute))
	s := New(clock)
	s.Initialize(baseEnd, clock.Now())
	_, ok := s.OnPushExtension(baseEnd.Add(2 * time.Minute))
	require.True(t, ok)

	// A response issued before the push landed still carries the old end.
	_, reported, err := s.Resync(context.Background(), fixedFetch(baseEnd, clock.Now()))
	require.NoError(t, err)
	assert.False(t, reported)
	assert.Equal(t, baseEnd.Add(2*time.Minute), s.EndTime())
	assert.Equal(t, 180, s.Tick())
}

func TestResync_StaleResponseDiscarded(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseEnd.Add(-time.Minute))
	s := New(clock)
	s.Initialize(baseEnd, clock.Now())

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, _, err := s.Resync(context.Background(), func(context.Context) (time.Time, time.Time, error) {
			close(started)
			<-release
			return baseEnd.Add(10 * time.Second), clock.Now().Add(-5 * time.Second), nil
		})
		done <- err
	}()
	<-started

	_, _, err := s.Resync(context.Background(), fixedFetch(baseEnd.Add(10*time.Second), clock.Now().Add(3*time.Second)))
	require.NoError(t, err)

	close(release)
	assert.ErrorIs(t, <-done, ErrStaleResync)
	assert.Equal(t, 3*time.Second, s.Offset())
}

func TestResync_RequiresInitialize(t *testing.T) {
	s := New(clockwork.NewFakeClock())
	_, _, err := s.Resync(context.Background(), fixedFetch(baseEnd, baseEnd))
	assert.ErrorIs(t, err, ErrNotInitialized)
}
