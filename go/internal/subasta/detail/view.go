// Package detail is the live view of one auction: it owns the per-auction
// push channel and the clock synchronizer for that auction.
package detail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/subastafrutas/console/go/internal/models"
	"github.com/subastafrutas/console/go/internal/pubsub"
	"github.com/subastafrutas/console/go/internal/subasta/clocksync"
	"github.com/subastafrutas/console/go/internal/subasta/pushchannel"
)

// ErrInitialLoad wraps a failure to load the auction when the view opens.
var ErrInitialLoad = errors.New("failed to load auction")

// API is the REST collaborator used for the initial load and resyncs.
type API interface {
	GetAuction(ctx context.Context, id int64) (*models.Auction, error)
}

// Config holds detail view configuration
type Config struct {
	AuctionID int64
	// WSBaseURL is the push host, e.g. ws://localhost:8000. Empty disables
	// the push channel and the view relies on resyncs only.
	WSBaseURL string
	Token     string
	// UserID is the current client, used to detect outbid frames.
	UserID int64

	TickInterval        time.Duration
	ResyncInterval      time.Duration
	ReconnectInterval   time.Duration
	PingInterval        time.Duration
	TimeUpdateTolerance time.Duration

	Clock        clockwork.Clock
	Dialer       *websocket.Dialer
	EditRequests *pubsub.Topic[EditRequest]
	// Notices receives user-facing notices. Subscribers attached before Open
	// see notices raised by the first frames. Nil creates a private topic.
	Notices *pubsub.Topic[Notice]
}

// DefaultConfig returns default detail view configuration
func DefaultConfig() Config {
	return Config{
		TickInterval:        time.Second,
		ResyncInterval:      30 * time.Second,
		ReconnectInterval:   3 * time.Second,
		PingInterval:        25 * time.Second,
		TimeUpdateTolerance: time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = def.ResyncInterval
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = def.ReconnectInterval
	}
	if c.TimeUpdateTolerance <= 0 {
		c.TimeUpdateTolerance = def.TimeUpdateTolerance
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Notices == nil {
		c.Notices = pubsub.NewTopic[Notice](fmt.Sprintf("auction-%d-notices", c.AuctionID))
	}
	return c
}

// FeedURL returns the per-auction push feed for the configured auction.
func (c Config) FeedURL() string {
	return fmt.Sprintf("%s/ws/subastas/%d/", strings.TrimRight(c.WSBaseURL, "/"), c.AuctionID)
}

// Snapshot is the render model of the view.
type Snapshot struct {
	Auction      models.Auction       `json:"subasta"`
	Status       models.AuctionStatus `json:"estado"`
	Remaining    int                  `json:"segundos_restantes"`
	HasRemaining bool                 `json:"tiene_tiempo"`
	TotalBids    int                  `json:"total_pujas"`
	LastBid      *models.Bid          `json:"ultima_puja,omitempty"`
	Connected    bool                 `json:"conectado"`
	Extension    *clocksync.Extension `json:"extension,omitempty"`
	Clock        clocksync.ClockState `json:"reloj"`
	LastError    string               `json:"ultimo_error,omitempty"`
}

// View is one open auction detail.
type View struct {
	config  Config
	api     API
	clock   clockwork.Clock
	sync    *clocksync.Synchronizer
	notices *pubsub.Topic[Notice]
	channel *pushchannel.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	auction     models.Auction
	totalBids   int
	lastBid     *models.Bid
	lastErr     error
	closed      bool
	zeroHandled bool
	announced   map[NoticeKind]bool
}

// Open loads the auction, starts the countdown and connects the push feed.
// A failed load returns ErrInitialLoad and nothing is started.
func Open(ctx context.Context, config Config, api API) (*View, error) {
	config = config.withDefaults()

	auction, err := api.GetAuction(ctx, config.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("%w %d: %w", ErrInitialLoad, config.AuctionID, err)
	}

	v := &View{
		config:    config,
		api:       api,
		clock:     config.Clock,
		sync:      clocksync.New(config.Clock),
		notices:   config.Notices,
		auction:   *auction,
		totalBids: auction.TotalBids,
		announced: make(map[NoticeKind]bool),
	}
	v.sync.Initialize(auction.EndTime.Time, auction.ServerTime.Time)
	v.ctx, v.cancel = context.WithCancel(ctx)

	if config.WSBaseURL != "" {
		opts := pushchannel.DefaultOptions()
		opts.ReconnectInterval = config.ReconnectInterval
		opts.PingInterval = config.PingInterval
		opts.Token = config.Token
		opts.Clock = config.Clock
		opts.Dialer = config.Dialer
		opts.OnOpen = v.onOpen
		opts.OnMessage = v.handleFrame
		opts.OnClose = v.onClose
		opts.OnError = func(err error) {
			log.Warn().Err(err).Int64("auction_id", config.AuctionID).Msg("auction feed error")
		}

		channel, err := pushchannel.Open(config.FeedURL(), opts)
		if err != nil {
			v.cancel()
			return nil, fmt.Errorf("open auction feed: %w", err)
		}
		v.channel = channel
	}

	v.wg.Add(2)
	go v.tickLoop()
	go v.resyncLoop()

	log.Info().
		Int64("auction_id", config.AuctionID).
		Str("status", string(auction.Status())).
		Time("end", auction.EndTime.Time).
		Msg("auction view opened")

	return v, nil
}

// Close stops the countdown, the resyncs and the push channel. Responses
// that arrive afterwards are discarded. Close does not wait; use Wait.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.cancel()
	if v.channel != nil {
		v.channel.Close()
	}
	log.Info().Int64("auction_id", v.config.AuctionID).Msg("auction view closed")
}

// Wait blocks until every goroutine started by the view has returned.
func (v *View) Wait() {
	v.wg.Wait()
	if v.channel != nil {
		v.channel.Wait()
	}
}

// Notices returns the topic of user-facing notices.
func (v *View) Notices() *pubsub.Topic[Notice] {
	return v.notices
}

// Clock returns the view's synchronizer.
func (v *View) Clock() *clocksync.Synchronizer {
	return v.sync
}

// Snapshot returns the current render model.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	snap := Snapshot{
		Auction:   v.auction,
		Status:    v.auction.Status(),
		TotalBids: v.totalBids,
	}
	if v.lastBid != nil {
		bid := *v.lastBid
		snap.LastBid = &bid
	}
	if v.lastErr != nil {
		snap.LastError = v.lastErr.Error()
	}
	v.mu.Unlock()

	snap.Remaining, snap.HasRemaining = v.sync.Remaining()
	snap.Clock = v.sync.State()
	if ext, ok := v.sync.Extension(); ok {
		snap.Extension = &ext
	}
	snap.Connected = v.channel != nil && v.channel.Connected()
	return snap
}

// RequestState asks the backend to resend the auction snapshot.
func (v *View) RequestState() bool {
	if v.channel == nil {
		return false
	}
	return v.channel.Send(map[string]string{"tipo": "solicitar_estado"})
}

// RequestEdit publishes an edit request for this auction.
func (v *View) RequestEdit() bool {
	if v.config.EditRequests == nil {
		return false
	}
	v.config.EditRequests.Publish(EditRequest{
		AuctionID:   v.config.AuctionID,
		RequestedAt: v.clock.Now(),
	})
	return true
}

func (v *View) onOpen() {
	log.Info().Int64("auction_id", v.config.AuctionID).Msg("auction feed connected")
}

func (v *View) onClose(code int) {
	log.Warn().Int64("auction_id", v.config.AuctionID).Int("code", code).Msg("auction feed disconnected")
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *View) status() models.AuctionStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.auction.Status()
}

func (v *View) publish(n Notice) {
	if v.isClosed() {
		return
	}
	n.AuctionID = v.config.AuctionID
	if n.At.IsZero() {
		n.At = v.clock.Now()
	}
	v.notices.Publish(n)
}
