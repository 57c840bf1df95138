package store

import (
	"context"
	"log/slog"
	"time"
)

// RunRetention prunes snapshots older than keep until ctx is done. It checks
// every keep/4, clamped to [1m, 1h]. The latest snapshot of every page is
// always kept.
func (s *Store) RunRetention(ctx context.Context, keep time.Duration, logger *slog.Logger) {
	if keep <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	every := min(max(keep/4, time.Minute), time.Hour)

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		s.pruneOnce(ctx, keep, logger)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Store) pruneOnce(ctx context.Context, keep time.Duration, logger *slog.Logger) {
	n, err := s.PruneBefore(ctx, time.Now().Add(-keep))
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("store: prune failed", "error", err)
		}
		return
	}
	if n > 0 {
		logger.Info("store: pruned snapshots", "count", n, "older_than", keep)
	}
}
