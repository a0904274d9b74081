package bus

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// reconcileLoop asks the backend to advance auction states while the feed is
// connected. Failures double the wait up to MaxReconcileBackoff.
func (b *Bus) reconcileLoop(ctx context.Context) {
	defer b.wg.Done()

	failures := 0
	timer := b.clock.NewTimer(b.config.ReconcileInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		}

		if b.Connected() {
			if err := b.reconciler.Reconcile(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				log.Debug().Err(err).Int("failures", failures).Msg("auction state reconciliation failed")
			} else {
				failures = 0
			}
		}

		timer.Reset(b.reconcileDelay(failures))
	}
}

// reconcileDelay returns the wait before the next attempt.
func (b *Bus) reconcileDelay(failures int) time.Duration {
	delay := b.config.ReconcileInterval
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= b.config.MaxReconcileBackoff {
			return b.config.MaxReconcileBackoff
		}
	}
	return delay
}
