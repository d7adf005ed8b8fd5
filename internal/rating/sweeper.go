package rating

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the reconciliation sweep on a fixed interval.
type Sweeper struct {
	agg      *Aggregator
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. A non-positive interval disables it.
func NewSweeper(agg *Aggregator, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{agg: agg, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("rating reconciliation sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.agg.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("rating reconciliation sweep error",
					slog.String("error", err.Error()),
					slog.Int("scanned", res.Scanned),
				)
				continue
			}
			s.logger.Info("rating reconciliation sweep completed",
				slog.Int("scanned", res.Scanned),
				slog.Int("updated", res.Updated),
				slog.Int("missing", res.Missing),
				slog.Int("failed", res.Failed),
			)
		}
	}
}
