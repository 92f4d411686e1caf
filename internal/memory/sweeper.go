package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/raqibtech/converse/internal/store"
)

// StartSweeper runs a background goroutine that periodically removes
// expired entries from the shared cache table. Reads already treat
// expired rows as misses; the sweep only reclaims space.
func StartSweeper(ctx context.Context, repo store.Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("memory sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				deleted, err := repo.CleanupExpiredBlobs(ctx)
				if err != nil {
					slog.Error("memory sweeper failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("memory sweeper removed expired entries", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("memory sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
