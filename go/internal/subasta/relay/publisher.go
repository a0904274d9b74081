// Package relay forwards accepted auction events to NATS JetStream so other
// services can consume the live feed.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/subastafrutas/console/go/internal/subasta/events"
)

// eventNamespace derives stable event ids from raw frames, so a frame
// replayed after a reconnect is deduplicated by the stream.
var eventNamespace = uuid.MustParse("6f1c1c52-3f1e-4b8e-9a57-0d7c8f3b2a10")

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int           // Number of replicas for the stream
	DuplicateWindow time.Duration // Window for duplicate detection
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "SUBASTA_EVENTS",
		SubjectPrefix:   "subastas.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1, // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// msgPublisher is the part of jetstream.JetStream the publisher needs.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Envelope is the message body published for every event.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	AuctionID int64           `json:"auctionId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type JetStreamPublisher struct {
	nc     *nats.Conn
	js     msgPublisher
	config JetStreamConfig
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.Name("subasta-console-relay"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(context.Background(), js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := streamConfig(cfg)

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", cfg.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", cfg.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

func streamConfig(cfg JetStreamConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Live auction events relayed from the global feed",
		Subjects:    []string{fmt.Sprintf("%s.>", cfg.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}
}

// Publish sends ev to <prefix>.<type>.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev events.Event) error {
	msg, id, err := buildMessage(p.config.SubjectPrefix, ev)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(id),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", id).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("relayed auction event")

	return nil
}

// Connected reports whether the NATS connection is up.
func (p *JetStreamPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Drain()
	}
	return nil
}

// buildMessage wraps ev in an Envelope addressed to its subject.
func buildMessage(prefix string, ev events.Event) (*nats.Msg, string, error) {
	id := uuid.NewSHA1(eventNamespace, ev.Raw).String()

	data, err := json.Marshal(Envelope{
		EventID:   id,
		EventType: ev.Type.String(),
		AuctionID: ev.AuctionID,
		Timestamp: ev.ReceivedAt.UTC(),
		Payload:   ev.Raw,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal event: %w", err)
	}

	header := nats.Header{}
	header.Set("Event-Type", ev.Type.String())
	header.Set("Event-ID", id)
	if ev.AuctionID != 0 {
		header.Set("Auction-ID", strconv.FormatInt(ev.AuctionID, 10))
	}

	return &nats.Msg{
		Subject: fmt.Sprintf("%s.%s", prefix, ev.Type),
		Data:    data,
		Header:  header,
	}, id, nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
