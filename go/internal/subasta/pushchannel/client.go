// Package pushchannel keeps one reconnecting websocket per feed URL and hides
// connect, reconnect, token attachment, send and receive behind a small API.
package pushchannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidURL is returned for URLs that cannot be dialed as websockets.
	ErrInvalidURL = errors.New("invalid push channel url")
	// ErrClosed is returned when opening a client that was already closed.
	ErrClosed = errors.New("push channel closed")
)

// State is the lifecycle state of a channel connection.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures a Client.
// The zero value is usable: it reconnects every 3s and sends no pings.
type Options struct {
	// DisableReconnect stops the client from redialing after an unexpected close.
	DisableReconnect  bool
	ReconnectInterval time.Duration
	// PingInterval sends {"tipo":"ping"} while open. Zero disables keep-alive.
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Token is appended as the "token" query parameter when non-empty.
	// It is read once; rotate it by closing and opening a new client.
	Token string

	Clock  clockwork.Clock
	Dialer *websocket.Dialer

	OnOpen    func()
	OnMessage func(payload json.RawMessage)
	OnClose   func(code int)
	OnError   func(err error)
}

// DefaultOptions returns the options used by the console feeds.
func DefaultOptions() Options {
	return Options{
		ReconnectInterval: 3 * time.Second,
		PingInterval:      25 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = def.ReconnectInterval
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = o.HandshakeTimeout
		o.Dialer = &d
	}
	return o
}

var pingFrame = map[string]string{"tipo": "ping"}

// Client is one logical bidirectional channel.
type Client struct {
	ID   string
	url  string
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	generation     uint64
	closed         bool
	reconnectTimer clockwork.Timer
	attempts       int

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// New validates rawURL and returns an idle client.
func New(rawURL string, opts Options) (*Client, error) {
	target, err := buildURL(rawURL, opts.Token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:     uuid.New().String(),
		url:    target,
		opts:   opts.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
	}, nil
}

// Open creates a client and starts connecting in the background.
func Open(rawURL string, opts Options) (*Client, error) {
	c, err := New(rawURL, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Open(); err != nil {
		return nil, err
	}
	return c, nil
}

// Open starts connecting. Calling it on a client that is already
// connecting or open does nothing.
func (c *Client) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return nil
	}

	c.generation++
	gen := c.generation
	c.state = StateConnecting
	c.spawnLocked(func() { c.connect(gen) })
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the channel is open.
func (c *Client) Connected() bool {
	return c.State() == StateOpen
}

// Attempts returns how many dials have been started.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// URL returns the dialed URL, token included.
func (c *Client) URL() string {
	return c.url
}

// Send serializes payload and writes it if the channel is open.
// It never panics and reports whether the frame was written.
func (c *Client) Send(payload any) bool {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen && !c.closed
	c.mu.Unlock()

	if !open || conn == nil {
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("channel_id", c.ID).Msg("failed to encode push frame")
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("channel_id", c.ID).Msg("failed to write push frame")
		return false
	}
	return true
}

// Close tears the channel down deliberately. Pending reconnects are
// cancelled, the socket is closed with a normal-closure code and no
// callback fires afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	if c.reconnectTimer != nil {
		stopAndDrainTimer(c.reconnectTimer)
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()

	c.cancel()

	if conn != nil {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
		c.writeMu.Unlock()
		conn.Close()
	}

	log.Debug().Str("channel_id", c.ID).Msg("push channel closed")
}

// Wait blocks until every background goroutine has exited.
// It must not be called from inside a callback.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) spawnLocked(f func()) {
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		f()
	}()
}

// current reports whether events from connection generation gen may still act.
func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.generation
}

func (c *Client) connect(gen uint64) {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.HandshakeTimeout)
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, nil)
	cancel()

	if err != nil {
		if !c.current(gen) {
			return
		}
		log.Warn().
			Err(err).
			Str("channel_id", c.ID).
			Int("attempt", attempt).
			Msg("push channel connect failed")
		if cb := c.opts.OnError; cb != nil {
			cb(err)
		}
		c.handleDisconnect(gen, websocket.CloseAbnormalClosure)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	if c.opts.PingInterval > 0 {
		c.spawnLocked(func() { c.pingLoop(gen) })
	}
	c.mu.Unlock()

	log.Info().
		Str("channel_id", c.ID).
		Int("attempt", attempt).
		Msg("push channel open")

	if cb := c.opts.OnOpen; cb != nil && c.current(gen) {
		cb()
	}

	c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.current(gen) {
				return
			}
			code := closeCode(err)
			if code != websocket.CloseNormalClosure {
				log.Warn().
					Err(err).
					Str("channel_id", c.ID).
					Int("code", code).
					Msg("push channel dropped")
			}
			c.handleDisconnect(gen, code)
			return
		}

		if !json.Valid(data) {
			log.Warn().
				Str("channel_id", c.ID).
				Int("bytes", len(data)).
				Msg("dropping malformed push frame")
			continue
		}

		if !c.current(gen) {
			return
		}
		if cb := c.opts.OnMessage; cb != nil {
			cb(json.RawMessage(data))
		}
	}
}

// handleDisconnect moves the client to Closed and applies the reconnect policy.
// Repeated notifications for the same connection schedule at most one reconnect.
func (c *Client) handleDisconnect(gen uint64, code int) {
	c.mu.Lock()
	if c.closed || gen != c.generation || c.state == StateClosed {
		c.mu.Unlock()
		return
	}

	conn := c.conn
	c.conn = nil
	c.state = StateClosed

	if !c.opts.DisableReconnect && code != websocket.CloseNormalClosure && c.reconnectTimer == nil {
		c.scheduleReconnectLocked(gen)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if cb := c.opts.OnClose; cb != nil && c.current(gen) {
		cb(code)
	}
}

func (c *Client) scheduleReconnectLocked(gen uint64) {
	timer := c.opts.Clock.NewTimer(c.opts.ReconnectInterval)
	c.reconnectTimer = timer

	log.Debug().
		Str("channel_id", c.ID).
		Dur("interval", c.opts.ReconnectInterval).
		Msg("scheduled push channel reconnect")

	c.spawnLocked(func() {
		select {
		case <-timer.Chan():
			c.mu.Lock()
			defer c.mu.Unlock()

			if c.reconnectTimer != timer {
				return
			}
			c.reconnectTimer = nil
			if c.closed || gen != c.generation {
				return
			}
			c.generation++
			next := c.generation
			c.state = StateConnecting
			c.spawnLocked(func() { c.connect(next) })
		case <-c.ctx.Done():
			stopAndDrainTimer(timer)
		}
	})
}

func (c *Client) pingLoop(gen uint64) {
	ticker := c.opts.Clock.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.Chan():
			if !c.current(gen) || c.State() != StateOpen {
				return
			}
			c.Send(pingFrame)
		}
	}
}

// stopAndDrainTimer stops a timer and empties its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

func buildURL(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
