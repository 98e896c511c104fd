package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/pendergraft/dappkit/internal/observability/metrics"
)

// Purger is implemented by stores that need expired sessions removed explicitly.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RunPurger removes expired sessions every interval until ctx is done.
func RunPurger(ctx context.Context, p Purger, interval time.Duration, logger *slog.Logger) {
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
			purgeOnce(ctx, p, logger)
		}
	}
}

func purgeOnce(ctx context.Context, p Purger, logger *slog.Logger) {
	n, err := p.PurgeExpired(ctx)
	if err != nil {
		logger.Error("purging expired sessions", "error", err)
		return
	}
	metrics.SessionsPurged(n)
	if n > 0 {
		logger.Info("purged expired sessions", "count", n)
	}
}
