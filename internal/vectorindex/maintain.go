package vectorindex

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CompactIfNeeded compacts the index when its tombstone ratio reached the limit.
func CompactIfNeeded(idx Index, ratio float64) (int, bool) {
	if idx.TombstoneRatio() < ratio {
		return 0, false
	}
	return idx.Compact(), true
}

// Maintain checks the index every interval and compacts it once tombstones pass
// ratio. It returns when ctx is done.
func Maintain(ctx context.Context, idx Index, interval time.Duration, ratio float64, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, done := CompactIfNeeded(idx, ratio)
			if done {
				logger.Info("index compacted",
					zap.Int("reclaimed_slots", reclaimed),
					zap.Int("live_jobs", idx.Len()),
				)
			}
		}
	}
}
