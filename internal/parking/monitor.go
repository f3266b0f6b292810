package parking

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"parking-engine/internal/logging"
)

// WatchExpired reports slots past their time limit every interval until ctx
// is cancelled. It only observes; expired vehicles stay parked.
func (ipl *InstrumentedParkingLot) WatchExpired(ctx context.Context, clk clock.WithTicker, interval time.Duration) {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			ipl.scanExpired(ctx)
		}
	}
}

func (ipl *InstrumentedParkingLot) scanExpired(ctx context.Context) int {
	expired := ipl.ExpiredSlots(ctx)
	now := ipl.Now()
	for _, slot := range expired {
		logging.Warn(ctx).
			Str("slot", slot.ID).
			Str("ticket", slot.Ticket).
			Str("plate", slot.Plate).
			Dur("parked", now.Sub(*slot.AllocatedAt)).
			Msg("slot past time limit")
	}
	if len(expired) > 0 {
		logging.Info(ctx).Int("count", len(expired)).Msg("expiry scan complete")
	}
	return len(expired)
}
