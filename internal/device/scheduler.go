package device

import (
	"context"
	"time"
)

// stateHistoryRetention is how long state transitions are kept.
const stateHistoryRetention = 30 * 24 * time.Hour

// Run drives read cycles from the cron schedule until ctx is cancelled.
// Without a schedule it only waits; cycles then come from requests.
//
// A failing cycle is logged and the schedule continues.
func (d *Device) Run(ctx context.Context) error {
	d.pruneStateHistory(ctx)

	if d.schedule == nil {
		d.logger.Info("no read schedule configured, cycles run on request only")
		<-ctx.Done()
		return nil
	}

	for {
		now := d.now()
		next := d.schedule.Next(now)
		if next.IsZero() {
			d.logger.Warn("read schedule has no future runs")
			<-ctx.Done()
			return nil
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := d.ReadCycle(ctx); err != nil {
			d.logger.Warn("scheduled read cycle failed", "error", err)
		}
	}
}

func (d *Device) pruneStateHistory(ctx context.Context) {
	if d.stateHistory == nil {
		return
	}
	removed, err := d.stateHistory.PruneHistory(ctx, stateHistoryRetention)
	if err != nil {
		d.logger.Warn("pruning state history failed", "error", err)
		return
	}
	if removed > 0 {
		d.logger.Info("pruned state history", "removed", removed)
	}
}
