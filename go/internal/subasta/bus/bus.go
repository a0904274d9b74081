// Package bus subscribes once to the global auction feed and fans classified
// events out to in-process subscribers.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/subastafrutas/console/go/internal/models"
	"github.com/subastafrutas/console/go/internal/pubsub"
	"github.com/subastafrutas/console/go/internal/subasta/events"
	"github.com/subastafrutas/console/go/internal/subasta/pushchannel"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("event bus already started")

// Reconciler asks the backend to advance auction states by the current time.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// ReconcileFunc adapts a function to Reconciler.
type ReconcileFunc func(ctx context.Context) error

func (f ReconcileFunc) Reconcile(ctx context.Context) error {
	return f(ctx)
}

// Relay receives every accepted event, e.g. to forward it to NATS.
type Relay interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Config holds bus configuration
type Config struct {
	URL                 string
	Token               string
	ReconnectInterval   time.Duration
	PingInterval        time.Duration
	ReconcileInterval   time.Duration
	MaxReconcileBackoff time.Duration
	// DisplayWindows bounds how long Latest keeps an event of a given type.
	// Types without an entry are kept until replaced.
	DisplayWindows map[events.Type]time.Duration

	Clock  clockwork.Clock
	Dialer *websocket.Dialer
	Relay  Relay
}

// DefaultConfig returns default bus configuration
func DefaultConfig() Config {
	return Config{
		ReconnectInterval:   3 * time.Second,
		PingInterval:        25 * time.Second,
		ReconcileInterval:   30 * time.Second,
		MaxReconcileBackoff: 5 * time.Minute,
		DisplayWindows: map[events.Type]time.Duration{
			events.TypeAuctionCreated:   10 * time.Second,
			events.TypeAuctionCancelled: 10 * time.Second,
			events.TypeAuctionDeleted:   10 * time.Second,
		},
	}
}

// Bus classifies global feed frames and keeps the latest event per type.
type Bus struct {
	config     Config
	reconciler Reconciler
	clock      clockwork.Clock
	topic      *pubsub.Topic[events.Event]

	mu       sync.RWMutex
	channel  *pushchannel.Client
	latest   map[events.Type]events.Event
	statuses map[int64]models.AuctionStatus
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool

	changes   atomic.Uint64
	connected atomic.Bool
	wg        sync.WaitGroup
}

// New creates a bus. reconciler may be nil to disable reconciliation.
func New(config Config, reconciler Reconciler) *Bus {
	defaults := DefaultConfig()
	if config.ReconcileInterval <= 0 {
		config.ReconcileInterval = defaults.ReconcileInterval
	}
	if config.MaxReconcileBackoff < config.ReconcileInterval {
		config.MaxReconcileBackoff = max(defaults.MaxReconcileBackoff, config.ReconcileInterval)
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = defaults.ReconnectInterval
	}
	if config.DisplayWindows == nil {
		config.DisplayWindows = defaults.DisplayWindows
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	return &Bus{
		config:     config,
		reconciler: reconciler,
		clock:      config.Clock,
		topic:      pubsub.NewTopic[events.Event]("auction-events"),
		latest:     make(map[events.Type]events.Event),
		statuses:   make(map[int64]models.AuctionStatus),
	}
}

// Start opens the global feed and the reconciliation loop.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}

	opts := pushchannel.DefaultOptions()
	opts.ReconnectInterval = b.config.ReconnectInterval
	opts.PingInterval = b.config.PingInterval
	opts.Token = b.config.Token
	opts.Clock = b.clock
	opts.Dialer = b.config.Dialer
	opts.OnOpen = b.onOpen
	opts.OnClose = b.onClose
	opts.OnMessage = b.handleFrame
	opts.OnError = func(err error) {
		log.Warn().Err(err).Msg("global auction feed error")
	}

	channel, err := pushchannel.Open(b.config.URL, opts)
	if err != nil {
		return fmt.Errorf("open global auction feed: %w", err)
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	b.channel = channel
	b.started = true

	if b.reconciler != nil {
		b.wg.Add(1)
		go b.reconcileLoop(b.ctx)
	}

	log.Info().Str("url", b.config.URL).Msg("event bus started")
	return nil
}

// Close stops the feed and the reconciliation loop.
func (b *Bus) Close() {
	b.mu.Lock()
	channel, cancel := b.channel, b.cancel
	b.channel, b.cancel = nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if channel != nil {
		channel.Close()
	}
	b.connected.Store(false)
	b.wg.Wait()
}

// Subscribe registers fn for every accepted event and returns an unsubscribe func.
func (b *Bus) Subscribe(fn func(ev events.Event)) func() {
	return b.topic.Subscribe(fn)
}

// Latest returns the most recent event of type t, honoring display windows.
func (b *Bus) Latest(t events.Type) (events.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev, ok := b.latest[t]
	if !ok {
		return events.Event{}, false
	}
	if window, bounded := b.config.DisplayWindows[t]; bounded {
		if !b.clock.Now().Before(ev.ReceivedAt.Add(window)) {
			delete(b.latest, t)
			return events.Event{}, false
		}
	}
	return ev, true
}

// Changes returns a counter bumped once per accepted event.
func (b *Bus) Changes() uint64 {
	return b.changes.Load()
}

// Connected reports whether the global feed is open.
func (b *Bus) Connected() bool {
	return b.connected.Load()
}

// Status returns the last status the bus accepted for an auction.
func (b *Bus) Status(auctionID int64) (models.AuctionStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.statuses[auctionID]
	return s, ok
}

func (b *Bus) onOpen() {
	b.connected.Store(true)
	log.Info().Msg("global auction feed connected")
}

func (b *Bus) onClose(code int) {
	b.connected.Store(false)
	log.Warn().Int("code", code).Msg("global auction feed disconnected")
}

// handleFrame classifies one raw frame. Malformed and unknown frames are dropped.
func (b *Bus) handleFrame(raw json.RawMessage) {
	ev, err := events.Parse(raw, b.clock.Now())
	if err != nil {
		log.Warn().Err(err).Msg("dropping global feed frame")
		return
	}
	if !ev.Type.IsGlobal() {
		return
	}
	if !b.accept(ev) {
		return
	}

	b.changes.Add(1)
	b.topic.Publish(ev)

	if b.config.Relay != nil {
		ctx := b.context()
		if err := b.config.Relay.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("type", ev.Type.String()).Msg("failed to relay auction event")
		}
	}
}

// accept records ev unless it implies an illegal status transition.
func (b *Bus) accept(ev events.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Type == events.TypeAuctionDeleted {
		delete(b.statuses, ev.AuctionID)
		b.latest[ev.Type] = ev
		return true
	}

	next, ok := impliedStatus(ev)
	if ok && ev.AuctionID != 0 {
		if prev, known := b.statuses[ev.AuctionID]; known && !prev.CanTransition(next) {
			log.Warn().
				Int64("auction_id", ev.AuctionID).
				Str("from", string(prev)).
				Str("to", string(next)).
				Str("type", ev.Type.String()).
				Msg("dropping event with illegal status transition")
			return false
		}
		b.statuses[ev.AuctionID] = next
	}
	b.latest[ev.Type] = ev
	return true
}

func (b *Bus) context() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// impliedStatus returns the status an event moves its auction to.
func impliedStatus(ev events.Event) (models.AuctionStatus, bool) {
	switch p := ev.Payload.(type) {
	case events.AuctionStartedPayload:
		return models.AuctionStatusActive, true
	case events.AuctionFinishedPayload:
		return models.AuctionStatusFinished, true
	case events.AuctionCancelledPayload:
		return models.AuctionStatusCancelled, true
	case events.AuctionCreatedPayload:
		if s := p.Auction.Status(); s.IsValid() {
			return s, true
		}
		return models.AuctionStatusScheduled, true
	case events.AuctionUpdatedPayload:
		if s := p.Auction.Status(); s.IsValid() {
			return s, true
		}
	}
	return "", false
}
