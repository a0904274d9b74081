package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subastafrutas/console/go/internal/models"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Type
		wantErr error
	}{
		{"tipo tag", `{"tipo":"nueva_puja"}`, TypeNewBid, nil},
		{"type fallback", `{"type":"subasta_creada"}`, TypeAuctionCreated, nil},
		{"tipo wins over type", `{"tipo":"pong","type":"subasta_creada"}`, TypePong, nil},
		{"missing tag", `{"subasta_id":4}`, "", ErrMissingType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Kind([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Kind([]byte(`not json`))
	assert.Error(t, err)
}

func TestParse_NewBid(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := `{"tipo":"nueva_puja","puja":{"id":9,"monto":"500.00","fecha_oferta":"2025-03-01T11:59:58Z",
		"es_ganadora":true,"cliente":{"id":3,"nombre":"Frutícola Sur"}},"precio_actual":500,"total_pujas":4}`

	ev, err := Parse([]byte(raw), now)
	require.NoError(t, err)

	assert.Equal(t, TypeNewBid, ev.Type)
	assert.Equal(t, now, ev.ReceivedAt)
	p, ok := ev.Payload.(NewBidPayload)
	require.True(t, ok)
	assert.Equal(t, models.Price(500), p.CurrentPrice)
	assert.Equal(t, 4, p.TotalBids)
	assert.Equal(t, int64(3), p.Bid.Client.ID)
	assert.True(t, p.Bid.IsWinning)
	assert.JSONEq(t, raw, string(ev.Raw))
}

func TestParse_GlobalEvents(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantID int64
		check  func(t *testing.T, payload any)
	}{
		{
			name:   "created",
			raw:    `{"tipo":"subasta_creada","subasta":{"id":7,"estado":"PROGRAMADA"},"mensaje":"Nueva subasta"}`,
			wantID: 7,
			check: func(t *testing.T, payload any) {
				p := payload.(AuctionCreatedPayload)
				assert.Equal(t, "Nueva subasta", p.Message)
				assert.Equal(t, models.AuctionStatusScheduled, p.Auction.Status())
			},
		},
		{
			name:   "updated with changed fields",
			raw:    `{"tipo":"subasta_actualizada","subasta":{"id":7},"cambios":["precio_base","fecha_hora_fin"]}`,
			wantID: 7,
			check: func(t *testing.T, payload any) {
				p := payload.(AuctionUpdatedPayload)
				assert.True(t, p.Changed("fecha_hora_fin"))
				assert.False(t, p.Changed("kilos"))
			},
		},
		{
			name:   "cancelled",
			raw:    `{"tipo":"subasta_cancelada","subasta_id":7,"mensaje":"x","participantes_afectados":3,"total_ofertas_canceladas":5}`,
			wantID: 7,
			check: func(t *testing.T, payload any) {
				p := payload.(AuctionCancelledPayload)
				assert.Equal(t, 3, p.AffectedParticipants)
				assert.Equal(t, 5, p.CancelledBids)
			},
		},
		{
			name:   "deleted",
			raw:    `{"tipo":"subasta_eliminada","subasta_id":11,"mensaje":"Subasta eliminada"}`,
			wantID: 11,
		},
		{
			name:   "finished without bids",
			raw:    `{"tipo":"subasta_finalizada","subasta":{"id":2},"ganador":null,"monto_final":null,"total_pujas":0}`,
			wantID: 2,
			check: func(t *testing.T, payload any) {
				assert.True(t, payload.(AuctionFinishedPayload).NoBids())
			},
		},
		{
			name:   "finished with winner",
			raw:    `{"type":"subasta_finalizada","subasta_id":2,"ganador":{"id":5,"nombre":"Agro Norte"},"monto_final":"1250.50","total_pujas":8}`,
			wantID: 2,
			check: func(t *testing.T, payload any) {
				p := payload.(AuctionFinishedPayload)
				require.NotNil(t, p.Winner)
				assert.Equal(t, "Agro Norte", p.Winner.Name)
				require.NotNil(t, p.FinalPrice)
				assert.Equal(t, models.Price(1250.5), *p.FinalPrice)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse([]byte(tt.raw), time.Now())
			require.NoError(t, err)
			assert.True(t, ev.Type.IsGlobal())
			assert.Equal(t, tt.wantID, ev.AuctionID)
			if tt.check != nil {
				tt.check(t, ev.Payload)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`{"tipo":"subasta_pausada"}`), time.Now())
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = Parse([]byte(`{"tipo":"nueva_puja","total_pujas":"many"}`), time.Now())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownEventType)
}

func TestType_Classification(t *testing.T) {
	assert.True(t, TypeAuctionStarted.IsGlobal())
	assert.False(t, TypeTimeUpdated.IsGlobal())
	assert.True(t, TypeTimeUpdated.IsValid())
	assert.False(t, Type("otro").IsValid())
}
