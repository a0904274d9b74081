package events

import (
	"encoding/json"
	"time"
)

// Type is the discriminator carried by every push frame.
type Type string

// Global feed events.
const (
	TypeAuctionCreated   Type = "subasta_creada"
	TypeAuctionUpdated   Type = "subasta_actualizada"
	TypeAuctionCancelled Type = "subasta_cancelada"
	TypeAuctionDeleted   Type = "subasta_eliminada"
	TypeAuctionStarted   Type = "subasta_iniciada"
	TypeAuctionFinished  Type = "subasta_finalizada"
)

// Per-auction feed events. The per-auction feed also emits
// TypeAuctionUpdated, TypeAuctionFinished and TypeAuctionCancelled.
const (
	TypeConnectionEstablished Type = "conexion_establecida"
	TypeCurrentState          Type = "estado_actual"
	TypeNewBid                Type = "nueva_puja"
	TypeBidSuperseded         Type = "puja_superada"
	TypeTimeUpdated           Type = "tiempo_actualizado"
	TypePong                  Type = "pong"
)

// GlobalTypes lists the events the global bus classifies, in display order.
var GlobalTypes = []Type{
	TypeAuctionCreated,
	TypeAuctionUpdated,
	TypeAuctionCancelled,
	TypeAuctionDeleted,
	TypeAuctionStarted,
	TypeAuctionFinished,
}

func (t Type) String() string {
	return string(t)
}

// IsGlobal reports whether t is delivered on the global auction feed.
func (t Type) IsGlobal() bool {
	for _, g := range GlobalTypes {
		if g == t {
			return true
		}
	}
	return false
}

// IsValid reports whether t is a known event type.
func (t Type) IsValid() bool {
	switch t {
	case TypeConnectionEstablished, TypeCurrentState, TypeNewBid,
		TypeBidSuperseded, TypeTimeUpdated, TypePong:
		return true
	default:
		return t.IsGlobal()
	}
}

// Event is a classified push frame.
type Event struct {
	Type       Type            `json:"tipo"`
	AuctionID  int64           `json:"subasta_id,omitempty"`
	ReceivedAt time.Time       `json:"recibido"`
	Payload    any             `json:"-"`
	Raw        json.RawMessage `json:"datos"`
}
