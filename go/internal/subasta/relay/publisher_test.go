package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subastafrutas/console/go/internal/subasta/events"
)

type fakeJetStream struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakeJetStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, msg)
	return &jetstream.PubAck{Stream: "SUBASTA_EVENTS", Sequence: uint64(len(f.msgs))}, nil
}

func parsedEvent(t *testing.T, raw string) events.Event {
	t.Helper()
	ev, err := events.Parse([]byte(raw), time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return ev
}

func TestPublish_SubjectHeadersAndEnvelope(t *testing.T) {
	js := &fakeJetStream{}
	p := &JetStreamPublisher{js: js, config: DefaultJetStreamConfig()}

	raw := `{"tipo":"subasta_iniciada","subasta":{"id":15,"estado":"ACTIVA"}}`
	require.NoError(t, p.Publish(context.Background(), parsedEvent(t, raw)))
	require.Len(t, js.msgs, 1)

	msg := js.msgs[0]
	assert.Equal(t, "subastas.events.subasta_iniciada", msg.Subject)
	assert.Equal(t, "subasta_iniciada", msg.Header.Get("Event-Type"))
	assert.Equal(t, "15", msg.Header.Get("Auction-ID"))
	assert.NotEmpty(t, msg.Header.Get("Event-ID"))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, msg.Header.Get("Event-ID"), env.EventID)
	assert.Equal(t, int64(15), env.AuctionID)
	assert.JSONEq(t, raw, string(env.Payload))
}

func TestPublish_SameFrameSameID(t *testing.T) {
	raw := `{"tipo":"subasta_eliminada","subasta_id":3,"mensaje":"x"}`
	first, id1, err := buildMessage("p", parsedEvent(t, raw))
	require.NoError(t, err)
	_, id2, err := buildMessage("p", parsedEvent(t, raw))
	require.NoError(t, err)
	_, other, err := buildMessage("p", parsedEvent(t, `{"tipo":"subasta_eliminada","subasta_id":4,"mensaje":"x"}`))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, other)
	assert.Equal(t, "p.subasta_eliminada", first.Subject)
}

func TestPublish_Error(t *testing.T) {
	boom := errors.New("no responders")
	p := &JetStreamPublisher{js: &fakeJetStream{err: boom}, config: DefaultJetStreamConfig()}

	err := p.Publish(context.Background(), parsedEvent(t, `{"tipo":"subasta_creada","subasta":{"id":1},"mensaje":""}`))
	assert.ErrorIs(t, err, boom)
}

func TestStreamConfig(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	sc := streamConfig(cfg)
	assert.Equal(t, []string{"subastas.events.>"}, sc.Subjects)
	assert.True(t, isStreamConfigEqual(sc, streamConfig(cfg)))

	cfg.MaxAge = time.Hour
	assert.False(t, isStreamConfigEqual(sc, streamConfig(cfg)))
}
