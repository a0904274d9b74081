package detail

import (
	"fmt"
	"time"

	"github.com/subastafrutas/console/go/internal/models"
)

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	NoticeExtension NoticeKind = "extension"
	NoticeOutbid    NoticeKind = "outbid"
	NoticeFinished  NoticeKind = "finished"
	NoticeCancelled NoticeKind = "cancelled"
)

// Notice is a transient message for the operator.
type Notice struct {
	Kind      NoticeKind `json:"tipo"`
	AuctionID int64      `json:"subasta_id"`
	Message   string     `json:"mensaje"`
	Seconds   int        `json:"segundos,omitempty"`
	At        time.Time  `json:"fecha"`
}

// EditRequest asks whichever component owns the edit form to open it.
type EditRequest struct {
	AuctionID   int64
	RequestedAt time.Time
}

func extensionMessage(seconds int) string {
	if seconds >= 60 && seconds%60 == 0 {
		return fmt.Sprintf("Tiempo extendido %d min", seconds/60)
	}
	return fmt.Sprintf("Tiempo extendido %d s", seconds)
}

func outbidMessage(price models.Price) string {
	return fmt.Sprintf("Tu oferta fue superada. Precio actual: $%s", price)
}

func finishedMessage(winner *models.Winner, finalPrice *models.Price) string {
	if winner == nil {
		return "La subasta finalizó sin ofertas"
	}
	if finalPrice != nil {
		return fmt.Sprintf("Subasta finalizada. Ganador: %s ($%s)", winner.Name, *finalPrice)
	}
	return fmt.Sprintf("Subasta finalizada. Ganador: %s", winner.Name)
}
