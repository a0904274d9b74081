package detail

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/subastafrutas/console/go/internal/models"
	"github.com/subastafrutas/console/go/internal/subasta/clocksync"
)

// tickLoop recomputes the countdown every TickInterval while the auction is active.
func (v *View) tickLoop() {
	defer v.wg.Done()

	ticker := v.clock.NewTicker(v.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.ctx.Done():
			return
		case <-ticker.Chan():
			v.tick()
		}
	}
}

// resyncLoop reloads the authoritative state every ResyncInterval while active.
func (v *View) resyncLoop() {
	defer v.wg.Done()

	ticker := v.clock.NewTicker(v.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.ctx.Done():
			return
		case <-ticker.Chan():
			if v.status() == models.AuctionStatusActive {
				v.reload("resync")
			}
		}
	}
}

// tick advances the countdown and triggers a single refresh when it hits zero.
func (v *View) tick() {
	if v.status() != models.AuctionStatusActive {
		return
	}
	if _, ok := v.sync.Remaining(); !ok {
		return
	}
	remaining := v.sync.Tick()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if remaining > 0 {
		v.zeroHandled = false
		v.mu.Unlock()
		return
	}
	if v.zeroHandled {
		v.mu.Unlock()
		return
	}
	v.zeroHandled = true
	v.wg.Add(1)
	v.mu.Unlock()

	log.Info().Int64("auction_id", v.config.AuctionID).Msg("countdown reached zero, refreshing auction")
	go func() {
		defer v.wg.Done()
		v.reload("countdown")
	}()
}

// reload fetches the auction, resyncs the clock and applies the snapshot.
// Failures are logged and kept as the last error.
func (v *View) reload(reason string) {
	var fetched *models.Auction
	ext, extended, err := v.sync.Resync(v.ctx, func(ctx context.Context) (time.Time, time.Time, error) {
		auction, err := v.api.GetAuction(ctx, v.config.AuctionID)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		fetched = auction
		return auction.EndTime.Time, auction.ServerTime.Time, nil
	})

	switch {
	case errors.Is(err, clocksync.ErrStaleResync):
		log.Debug().Int64("auction_id", v.config.AuctionID).Str("reason", reason).Msg("discarding stale auction reload")
		return
	case err != nil:
		if v.ctx.Err() != nil {
			return
		}
		log.Debug().Err(err).Int64("auction_id", v.config.AuctionID).Str("reason", reason).Msg("auction reload failed")
		v.mu.Lock()
		v.lastErr = err
		v.mu.Unlock()
		return
	}

	v.mu.Lock()
	v.lastErr = nil
	v.mu.Unlock()

	v.applyAuction(*fetched)
	if extended {
		v.announceExtension(ext)
	}
}
