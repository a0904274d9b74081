package events

import (
	"github.com/subastafrutas/console/go/internal/models"
)

// AuctionCreatedPayload is the payload for subasta_creada
type AuctionCreatedPayload struct {
	Auction models.Auction `json:"subasta"`
	Message string         `json:"mensaje"`
}

// AuctionUpdatedPayload is the payload for subasta_actualizada
type AuctionUpdatedPayload struct {
	Auction       models.Auction `json:"subasta"`
	ChangedFields []string       `json:"cambios"`
}

// Changed reports whether field is listed among the changed fields.
func (p AuctionUpdatedPayload) Changed(field string) bool {
	for _, f := range p.ChangedFields {
		if f == field {
			return true
		}
	}
	return false
}

// AuctionCancelledPayload is the payload for subasta_cancelada
type AuctionCancelledPayload struct {
	AuctionID            int64           `json:"subasta_id"`
	Auction              *models.Auction `json:"subasta,omitempty"`
	Message              string          `json:"mensaje"`
	AffectedParticipants int             `json:"participantes_afectados"`
	CancelledBids        int             `json:"total_ofertas_canceladas"`
}

// AuctionDeletedPayload is the payload for subasta_eliminada
type AuctionDeletedPayload struct {
	AuctionID int64  `json:"subasta_id"`
	Message   string `json:"mensaje"`
}

// AuctionStartedPayload is the payload for subasta_iniciada
type AuctionStartedPayload struct {
	Auction models.Auction `json:"subasta"`
}

// AuctionFinishedPayload is the payload for subasta_finalizada.
// The global feed nests the auction; the per-auction feed only sends its id.
type AuctionFinishedPayload struct {
	AuctionID  int64           `json:"subasta_id"`
	Auction    *models.Auction `json:"subasta,omitempty"`
	Winner     *models.Winner  `json:"ganador"`
	FinalPrice *models.Price   `json:"monto_final"`
	TotalBids  int             `json:"total_pujas"`
}

// NoBids reports whether the auction closed without a winner.
func (p AuctionFinishedPayload) NoBids() bool {
	return p.Winner == nil
}

// ConnectionEstablishedPayload is the greeting sent on connect.
type ConnectionEstablishedPayload struct {
	AuctionID     int64           `json:"subasta_id"`
	Auction       *models.Auction `json:"subasta,omitempty"`
	Authenticated bool            `json:"autenticado"`
	Message       string          `json:"mensaje"`
}

// CurrentStatePayload answers a solicitar_estado request.
type CurrentStatePayload struct {
	Auction *models.Auction `json:"subasta"`
}

// NewBidPayload is the payload for nueva_puja
type NewBidPayload struct {
	Bid          models.Bid   `json:"puja"`
	CurrentPrice models.Price `json:"precio_actual"`
	TotalBids    int          `json:"total_pujas"`
}

// BidSupersededPayload is the payload for puja_superada
type BidSupersededPayload struct {
	PreviousLeaderID int64        `json:"cliente_superado_id"`
	NewBid           models.Bid   `json:"nueva_puja"`
	CurrentPrice     models.Price `json:"precio_actual"`
}

// TimeUpdatedPayload is the payload for tiempo_actualizado
type TimeUpdatedPayload struct {
	SecondsRemaining int                  `json:"segundos_restantes"`
	Status           models.AuctionStatus `json:"estado"`
}

// PongPayload answers a keep-alive ping.
type PongPayload struct{}
