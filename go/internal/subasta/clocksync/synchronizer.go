package clocksync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaterialExtension is how much later a resynced end time must be
	// before it is reported as an extension.
	DefaultMaterialExtension = 5 * time.Second
	// DefaultBannerWindow is how long an extension stays visible.
	DefaultBannerWindow = 8 * time.Second
)

var (
	// ErrNotInitialized is returned by Resync before Initialize was called.
	ErrNotInitialized = errors.New("clock synchronizer not initialized")
	// ErrStaleResync is returned when a resync response arrived after a newer one was applied.
	ErrStaleResync = errors.New("stale resync response discarded")
)

// Source tells which path detected an extension.
type Source int

const (
	SourcePush Source = iota
	SourceResync
)

func (s Source) String() string {
	if s == SourceResync {
		return "resync"
	}
	return "push"
}

// Extension is a detected move of the end time.
type Extension struct {
	Seconds     int       `json:"segundos"`
	Source      Source    `json:"-"`
	PreviousEnd time.Time `json:"fin_anterior"`
	NewEnd      time.Time `json:"fin_nuevo"`
	DetectedAt  time.Time `json:"detectada"`
}

// ClockState is a point-in-time copy of the countdown state.
type ClockState struct {
	Initialized      bool          `json:"inicializado"`
	ServerOffset     time.Duration `json:"offset_servidor"`
	AuthoritativeEnd time.Time     `json:"fin_autoritativo"`
	LastKnownEnd     time.Time     `json:"fin_anterior"`
	Remaining        int           `json:"segundos_restantes"`
}

// FetchFunc loads the authoritative end time and server wall clock.
// A zero serverNow means the backend did not report one.
type FetchFunc func(ctx context.Context) (end time.Time, serverNow time.Time, err error)

// Synchronizer keeps the countdown of one auction aligned with the server clock.
// The end time only moves forward.
type Synchronizer struct {
	clock             clockwork.Clock
	materialExtension time.Duration
	bannerWindow      time.Duration

	mu          sync.Mutex
	initialized bool
	offset      time.Duration
	end         time.Time
	lastEnd     time.Time
	remaining   int
	banner      *Extension

	// resync ordering
	issued  uint64
	applied uint64
}

// New creates a Synchronizer reading time from clock.
func New(clock clockwork.Clock) *Synchronizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Synchronizer{
		clock:             clock,
		materialExtension: DefaultMaterialExtension,
		bannerWindow:      DefaultBannerWindow,
	}
}

// Initialize sets the end time and measures the server offset.
// Calling it again replaces the previous state.
func (s *Synchronizer) Initialize(end, serverNow time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offset = 0
	if !serverNow.IsZero() {
		s.offset = serverNow.Sub(s.clock.Now())
	}
	s.end = end
	s.lastEnd = end
	s.banner = nil
	s.applied = s.issued
	s.initialized = true
	s.recomputeLocked()

	log.Debug().
		Time("end", end).
		Dur("offset", s.offset).
		Int("remaining", s.remaining).
		Msg("clock synchronizer initialized")
}

// Tick recomputes the remaining seconds from the current end time.
func (s *Synchronizer) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0
	}
	return s.recomputeLocked()
}

// Remaining returns the last computed remaining seconds.
func (s *Synchronizer) Remaining() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining, s.initialized
}

// ServerNow returns the local clock corrected by the server offset.
func (s *Synchronizer) ServerNow() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now().Add(s.offset)
}

// Offset returns the measured server minus local clock delta.
func (s *Synchronizer) Offset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// EndTime returns the authoritative end time.
func (s *Synchronizer) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// State returns a copy of the clock state.
func (s *Synchronizer) State() ClockState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ClockState{
		Initialized:      s.initialized,
		ServerOffset:     s.offset,
		AuthoritativeEnd: s.end,
		LastKnownEnd:     s.lastEnd,
		Remaining:        s.remaining,
	}
}

// Extension returns the extension banner while it is still on display.
func (s *Synchronizer) Extension() (Extension, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.banner == nil {
		return Extension{}, false
	}
	if !s.clock.Now().Before(s.banner.DetectedAt.Add(s.bannerWindow)) {
		s.banner = nil
		return Extension{}, false
	}
	return *s.banner, true
}

// OnPushExtension applies an end time delivered by the push channel.
// It reports an extension only when the end moved later by a positive
// number of whole seconds. Earlier or equal end times are ignored.
func (s *Synchronizer) OnPushExtension(newEnd time.Time) (Extension, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return Extension{}, false
	}
	if !newEnd.After(s.end) {
		if newEnd.Before(s.end) {
			log.Debug().
				Time("held", s.end).
				Time("received", newEnd).
				Msg("ignoring earlier end time from push")
		}
		return Extension{}, false
	}

	seconds := roundSeconds(newEnd.Sub(s.end))
	ext := s.applyLocked(newEnd, seconds, SourcePush)
	if seconds <= 0 {
		return Extension{}, false
	}
	return ext, true
}

// Resync fetches the authoritative state and refreshes offset and end time.
// An extension is reported when the fetched end is more than the material
// threshold later than the held one. Failures leave the state untouched.
func (s *Synchronizer) Resync(ctx context.Context, fetch FetchFunc) (Extension, bool, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return Extension{}, false, ErrNotInitialized
	}
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	end, serverNow, err := fetch(ctx)
	if err != nil {
		return Extension{}, false, fmt.Errorf("resync: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		return Extension{}, false, ErrStaleResync
	}
	s.applied = seq

	if !serverNow.IsZero() {
		s.offset = serverNow.Sub(s.clock.Now())
	}

	var (
		ext      Extension
		reported bool
	)
	if delta := end.Sub(s.end); delta > 0 {
		seconds := 0
		if delta > s.materialExtension {
			seconds = roundSeconds(delta)
		}
		ext = s.applyLocked(end, seconds, SourceResync)
		reported = seconds > 0
	} else if delta < 0 {
		log.Debug().
			Time("held", s.end).
			Time("received", end).
			Msg("ignoring earlier end time from resync")
	}
	s.recomputeLocked()

	if !reported {
		return Extension{}, false, nil
	}
	return ext, true, nil
}

// applyLocked moves the end forward and raises the banner when seconds > 0.
func (s *Synchronizer) applyLocked(newEnd time.Time, seconds int, source Source) Extension {
	ext := Extension{
		Seconds:     seconds,
		Source:      source,
		PreviousEnd: s.end,
		NewEnd:      newEnd,
		DetectedAt:  s.clock.Now(),
	}
	s.lastEnd = s.end
	s.end = newEnd
	s.recomputeLocked()

	if seconds > 0 {
		s.banner = &ext
		log.Info().
			Int("seconds", seconds).
			Str("source", source.String()).
			Time("end", newEnd).
			Msg("auction end time extended")
	}
	return ext
}

func (s *Synchronizer) recomputeLocked() int {
	s.remaining = remainingSeconds(s.end, s.clock.Now().Add(s.offset))
	return s.remaining
}

// remainingSeconds floors the whole seconds between now and end, never below zero.
func remainingSeconds(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func roundSeconds(d time.Duration) int {
	return int(math.Round(d.Seconds()))
}
