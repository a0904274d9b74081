package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingType is returned for frames without a tipo/type tag.
	ErrMissingType = errors.New("push frame has no type tag")
	// ErrUnknownEventType is returned for tags this console does not handle.
	ErrUnknownEventType = errors.New("unknown push event type")
)

// envelope reads the discriminator. The backend tags frames with "tipo";
// "type" is accepted as well.
type envelope struct {
	Tipo Type `json:"tipo"`
	Type Type `json:"type"`
}

// Kind returns the discriminator of a raw frame without decoding the payload.
func Kind(raw []byte) (Type, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("unmarshal event envelope: %w", err)
	}
	switch {
	case env.Tipo != "":
		return env.Tipo, nil
	case env.Type != "":
		return env.Type, nil
	default:
		return "", ErrMissingType
	}
}

// Parse classifies a raw frame and decodes its typed payload.
func Parse(raw []byte, receivedAt time.Time) (Event, error) {
	kind, err := Kind(raw)
	if err != nil {
		return Event{}, err
	}

	payload, err := ParsePayload(kind, raw)
	if err != nil {
		return Event{}, err
	}

	return Event{
		Type:       kind,
		AuctionID:  auctionIDOf(payload),
		ReceivedAt: receivedAt,
		Payload:    payload,
		Raw:        append(json.RawMessage(nil), raw...),
	}, nil
}

// ParsePayload decodes raw into the payload struct for kind.
func ParsePayload(kind Type, raw []byte) (any, error) {
	switch kind {
	case TypeAuctionCreated:
		return decode[AuctionCreatedPayload](kind, raw)
	case TypeAuctionUpdated:
		return decode[AuctionUpdatedPayload](kind, raw)
	case TypeAuctionCancelled:
		return decode[AuctionCancelledPayload](kind, raw)
	case TypeAuctionDeleted:
		return decode[AuctionDeletedPayload](kind, raw)
	case TypeAuctionStarted:
		return decode[AuctionStartedPayload](kind, raw)
	case TypeAuctionFinished:
		return decode[AuctionFinishedPayload](kind, raw)
	case TypeConnectionEstablished:
		return decode[ConnectionEstablishedPayload](kind, raw)
	case TypeCurrentState:
		return decode[CurrentStatePayload](kind, raw)
	case TypeNewBid:
		return decode[NewBidPayload](kind, raw)
	case TypeBidSuperseded:
		return decode[BidSupersededPayload](kind, raw)
	case TypeTimeUpdated:
		return decode[TimeUpdatedPayload](kind, raw)
	case TypePong:
		return PongPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, kind)
	}
}

func decode[T any](kind Type, raw []byte) (T, error) {
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("unmarshal %s payload: %w", kind, err)
	}
	return payload, nil
}

func auctionIDOf(payload any) int64 {
	switch p := payload.(type) {
	case AuctionCreatedPayload:
		return p.Auction.ID
	case AuctionUpdatedPayload:
		return p.Auction.ID
	case AuctionCancelledPayload:
		if p.AuctionID == 0 && p.Auction != nil {
			return p.Auction.ID
		}
		return p.AuctionID
	case AuctionDeletedPayload:
		return p.AuctionID
	case AuctionStartedPayload:
		return p.Auction.ID
	case AuctionFinishedPayload:
		if p.AuctionID == 0 && p.Auction != nil {
			return p.Auction.ID
		}
		return p.AuctionID
	case ConnectionEstablishedPayload:
		if p.AuctionID == 0 && p.Auction != nil {
			return p.Auction.ID
		}
		return p.AuctionID
	case CurrentStatePayload:
		if p.Auction != nil {
			return p.Auction.ID
		}
	}
	return 0
}
