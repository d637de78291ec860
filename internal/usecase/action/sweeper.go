package action

import (
	"context"
	"time"
)

// DefaultSweepInterval is used when RunSweeper is given a non-positive interval.
const DefaultSweepInterval = 5 * time.Second

// RunSweeper expires stale pending actions every interval until ctx is done.
func (q *Queue) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	q.logger.Debug("action sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("action sweeper stopped")
			return
		case <-ticker.C:
			q.Sweep(ctx)
		}
	}
}
