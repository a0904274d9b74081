package models

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when an auction status change is not allowed.
var ErrIllegalTransition = errors.New("illegal auction status transition")

// AuctionStatus defines the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "PROGRAMADA"
	AuctionStatusActive    AuctionStatus = "ACTIVA"
	AuctionStatusFinished  AuctionStatus = "FINALIZADA"
	AuctionStatusCancelled AuctionStatus = "CANCELADA"
)

// legalTransitions lists the forward moves allowed out of each status.
var legalTransitions = map[AuctionStatus][]AuctionStatus{
	AuctionStatusScheduled: {AuctionStatusActive, AuctionStatusCancelled},
	AuctionStatusActive:    {AuctionStatusFinished, AuctionStatusCancelled},
}

// IsValid reports whether s is one of the known statuses.
func (s AuctionStatus) IsValid() bool {
	switch s {
	case AuctionStatusScheduled, AuctionStatusActive, AuctionStatusFinished, AuctionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions can leave s.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionStatusFinished || s == AuctionStatusCancelled
}

// CanTransition reports whether moving from s to next is legal.
// Re-delivering the current status is allowed.
func (s AuctionStatus) CanTransition(next AuctionStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is legal, or ErrIllegalTransition.
func (s AuctionStatus) Transition(next AuctionStatus) (AuctionStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

// Label returns the display tag used by the mobile listing.
func (s AuctionStatus) Label() string {
	switch s {
	case AuctionStatusScheduled:
		return "Próximamente"
	case AuctionStatusActive:
		return "En Vivo"
	case AuctionStatusFinished:
		return "Finalizada"
	default:
		return "Cancelada"
	}
}

// Auction is the auction snapshot served by the backend.
type Auction struct {
	ID              int64         `json:"id"`
	PackingDetailID *int64        `json:"packing_detalle,omitempty"`
	CompanyName     string        `json:"empresa_nombre,omitempty"`
	FruitTypeName   string        `json:"tipo_fruta_nombre,omitempty"`
	CompanyRef      NameRef       `json:"empresa"`
	FruitTypeRef    NameRef       `json:"tipo_fruta"`
	Kilos           *Price        `json:"kilos,omitempty"`
	BasePrice       Price         `json:"precio_base"`
	CurrentPrice    Price         `json:"precio_actual"`
	StartTime       Timestamp     `json:"fecha_hora_inicio"`
	EndTime         Timestamp     `json:"fecha_hora_fin"`
	StoredStatus    AuctionStatus `json:"estado"`
	ComputedStatus  AuctionStatus `json:"estado_actual,omitempty"`
	CalculatedState AuctionStatus `json:"estado_calculado,omitempty"`
	Extensions      int           `json:"extensiones_realizadas"`
	TotalBids       int           `json:"total_ofertas"`
	WSRemainingSec  *int          `json:"tiempo_restante_segundos,omitempty"`
	ReplacementID   *int64        `json:"subasta_reemplazo,omitempty"`
	RemainingSec    *int          `json:"tiempo_restante,omitempty"`
	Bids            []Bid         `json:"ofertas,omitempty"`

	// ServerTime is the backend wall clock when the snapshot was produced.
	// Zero when the backend did not supply one.
	ServerTime Timestamp `json:"hora_servidor"`
}

// Status returns the effective status, preferring the time-computed one.
func (a *Auction) Status() AuctionStatus {
	switch {
	case a.StoredStatus == AuctionStatusCancelled:
		return AuctionStatusCancelled
	case a.ComputedStatus.IsValid():
		return a.ComputedStatus
	case a.CalculatedState.IsValid():
		return a.CalculatedState
	}
	return a.StoredStatus
}

// SetStatus overwrites every status field.
func (a *Auction) SetStatus(s AuctionStatus) {
	a.StoredStatus = s
	a.ComputedStatus = s
	a.CalculatedState = s
}

// Company returns the company name from whichever field the payload used.
func (a *Auction) Company() string {
	if a.CompanyName != "" {
		return a.CompanyName
	}
	return a.CompanyRef.Name
}

// FruitType returns the fruit type name from whichever field the payload used.
func (a *Auction) FruitType() string {
	if a.FruitTypeName != "" {
		return a.FruitTypeName
	}
	return a.FruitTypeRef.Name
}

// Remaining returns the backend-computed seconds left, if present.
func (a *Auction) Remaining() (int, bool) {
	if a.RemainingSec != nil {
		return *a.RemainingSec, true
	}
	if a.WSRemainingSec != nil {
		return *a.WSRemainingSec, true
	}
	return 0, false
}

// ProductReference returns a short human description of the lot.
func (a *Auction) ProductReference() string {
	fruit, company := a.FruitType(), a.Company()
	switch {
	case fruit != "" && company != "":
		return fmt.Sprintf("%s (%s)", fruit, company)
	case fruit != "":
		return fruit
	default:
		return fmt.Sprintf("Subasta #%d", a.ID)
	}
}
