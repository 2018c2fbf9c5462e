package app

import (
	"context"
	"log/slog"
	"time"
)

// runJanitor calls prune every interval until ctx is canceled.
func runJanitor(ctx context.Context, interval time.Duration, prune pruneFunc, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := prune(ctx)
			if err != nil {
				logger.Warn("session prune failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions pruned", slog.Int64("count", n))
			}
		}
	}
}
