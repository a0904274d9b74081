package detail

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/subastafrutas/console/go/internal/models"
	"github.com/subastafrutas/console/go/internal/subasta/clocksync"
	"github.com/subastafrutas/console/go/internal/subasta/events"
)

// handleFrame applies one per-auction push frame. Malformed frames and
// frames for other auctions are dropped.
func (v *View) handleFrame(raw json.RawMessage) {
	if v.isClosed() {
		return
	}

	ev, err := events.Parse(raw, v.clock.Now())
	if err != nil {
		log.Warn().Err(err).Int64("auction_id", v.config.AuctionID).Msg("dropping auction feed frame")
		return
	}
	if ev.AuctionID != 0 && ev.AuctionID != v.config.AuctionID {
		log.Debug().
			Int64("auction_id", v.config.AuctionID).
			Int64("frame_auction_id", ev.AuctionID).
			Msg("ignoring frame for another auction")
		return
	}

	switch p := ev.Payload.(type) {
	case events.ConnectionEstablishedPayload:
		if p.Auction != nil {
			v.applyPushSnapshot(*p.Auction)
		}
	case events.CurrentStatePayload:
		if p.Auction != nil {
			v.applyPushSnapshot(*p.Auction)
		}
	case events.AuctionUpdatedPayload:
		v.applyPushSnapshot(p.Auction)
	case events.NewBidPayload:
		v.applyBid(p.Bid, p.CurrentPrice, &p.TotalBids)
	case events.BidSupersededPayload:
		v.applyBid(p.NewBid, p.CurrentPrice, nil)
		if v.config.UserID != 0 && p.PreviousLeaderID == v.config.UserID {
			v.publish(Notice{Kind: NoticeOutbid, Message: outbidMessage(p.CurrentPrice)})
		}
	case events.TimeUpdatedPayload:
		v.applyTimeUpdate(p)
	case events.AuctionFinishedPayload:
		v.applyFinished(p)
	case events.AuctionCancelledPayload:
		v.applyCancelled(p)
	case events.PongPayload:
	default:
		log.Debug().Str("type", ev.Type.String()).Msg("ignoring frame on auction feed")
	}
}

// applyPushSnapshot routes a later end time through the synchronizer before
// replacing the snapshot.
func (v *View) applyPushSnapshot(next models.Auction) {
	if next.ID == 0 {
		next.ID = v.config.AuctionID
	}
	v.mu.Lock()
	accepted := v.acceptsLocked(next.Status())
	v.mu.Unlock()
	if !accepted {
		return
	}
	if !next.EndTime.IsZero() {
		if ext, ok := v.sync.OnPushExtension(next.EndTime.Time); ok {
			v.announceExtension(ext)
		}
	}
	v.applyAuction(next)
}

// applyAuction replaces the snapshot, keeping the synchronizer's end time and
// rejecting illegal status transitions.
func (v *View) applyAuction(next models.Auction) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}

	prev := v.auction.Status()
	target := next.Status()
	if !v.acceptsLocked(target) {
		v.mu.Unlock()
		return
	}
	if next.ServerTime.IsZero() {
		next.ServerTime = v.auction.ServerTime
	}
	v.auction = next
	v.auction.SetStatus(prev)
	v.auction.EndTime = models.Timestamp{Time: v.sync.EndTime()}
	v.totalBids = next.TotalBids
	changed := v.transitionLocked(target)
	v.mu.Unlock()

	if changed {
		switch target {
		case models.AuctionStatusFinished:
			v.announce(Notice{Kind: NoticeFinished, Message: "La subasta ha finalizado"})
		case models.AuctionStatusCancelled:
			v.announce(Notice{Kind: NoticeCancelled, Message: "La subasta fue cancelada"})
		}
	}
}

// applyBid updates price and bid count. The countdown is left untouched.
func (v *View) applyBid(bid models.Bid, price models.Price, total *int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}

	v.auction.CurrentPrice = price
	if total != nil {
		v.totalBids = *total
		v.auction.TotalBids = *total
	}
	if bid.ID != 0 {
		v.lastBid = &bid
	}
}

// applyTimeUpdate treats the pushed remaining seconds as an end time candidate.
func (v *View) applyTimeUpdate(p events.TimeUpdatedPayload) {
	candidate := v.sync.ServerNow().Add(time.Duration(p.SecondsRemaining) * time.Second)
	if candidate.Sub(v.sync.EndTime()) > v.config.TimeUpdateTolerance {
		if ext, ok := v.sync.OnPushExtension(candidate); ok {
			v.announceExtension(ext)
		}
	}

	v.mu.Lock()
	if !v.closed {
		v.auction.EndTime = models.Timestamp{Time: v.sync.EndTime()}
		v.transitionLocked(p.Status)
	}
	v.mu.Unlock()
}

func (v *View) applyFinished(p events.AuctionFinishedPayload) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.transitionLocked(models.AuctionStatusFinished)
	finished := v.auction.Status() == models.AuctionStatusFinished
	if finished {
		if p.FinalPrice != nil {
			v.auction.CurrentPrice = *p.FinalPrice
		}
		if p.TotalBids > 0 {
			v.totalBids = p.TotalBids
			v.auction.TotalBids = p.TotalBids
		}
	}
	v.mu.Unlock()

	if finished {
		v.announce(Notice{Kind: NoticeFinished, Message: finishedMessage(p.Winner, p.FinalPrice)})
	}
}

func (v *View) applyCancelled(p events.AuctionCancelledPayload) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.transitionLocked(models.AuctionStatusCancelled)
	cancelled := v.auction.Status() == models.AuctionStatusCancelled
	if cancelled && p.Auction != nil && p.Auction.ReplacementID != nil {
		v.auction.ReplacementID = p.Auction.ReplacementID
	}
	v.mu.Unlock()

	if cancelled {
		msg := p.Message
		if msg == "" {
			msg = "La subasta fue cancelada"
		}
		v.announce(Notice{Kind: NoticeCancelled, Message: msg})
	}
}

// acceptsLocked reports whether a snapshot with status target may replace
// the current one.
func (v *View) acceptsLocked(target models.AuctionStatus) bool {
	prev := v.auction.Status()
	if !target.IsValid() || prev.CanTransition(target) {
		return true
	}
	log.Warn().
		Int64("auction_id", v.config.AuctionID).
		Str("from", string(prev)).
		Str("to", string(target)).
		Msg("dropping auction snapshot with illegal status transition")
	return false
}

// transitionLocked moves the auction to next when the move is legal.
func (v *View) transitionLocked(next models.AuctionStatus) bool {
	prev := v.auction.Status()
	if !next.IsValid() || prev == next {
		return false
	}
	status, err := prev.Transition(next)
	if err != nil {
		log.Warn().Err(err).Int64("auction_id", v.config.AuctionID).Msg("ignoring auction status change")
		return false
	}
	v.auction.SetStatus(status)
	return true
}

func (v *View) announceExtension(ext clocksync.Extension) {
	v.publish(Notice{
		Kind:    NoticeExtension,
		Message: extensionMessage(ext.Seconds),
		Seconds: ext.Seconds,
		At:      ext.DetectedAt,
	})
}

// announce publishes terminal notices once per view.
func (v *View) announce(n Notice) {
	v.mu.Lock()
	if v.announced[n.Kind] {
		v.mu.Unlock()
		return
	}
	v.announced[n.Kind] = true
	v.mu.Unlock()
	v.publish(n)
}
