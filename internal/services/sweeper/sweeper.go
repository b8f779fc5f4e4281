package sweeper

import (
	"context"
	"log/slog"
	"time"

	"task_manager/internal/lib/logger/sl"
	"task_manager/internal/metrics"
)

const runTimeout = time.Minute

type ExpiredSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically removes expired refresh token records. A failed run
// is logged and counted, the next tick tries again.
type Sweeper struct {
	log      *slog.Logger
	target   ExpiredSweeper
	interval time.Duration
}

func New(log *slog.Logger, target ExpiredSweeper, interval time.Duration) *Sweeper {
	return &Sweeper{
		log:      log,
		target:   target,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	const op = "sweeper.Run"

	log := s.log.With(slog.String("op", op))
	log.Info("sweeper started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	const op = "sweeper.RunOnce"

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	n, err := s.target.SweepExpired(ctx)
	if err != nil {
		metrics.RefreshSweepFailures.Inc()
		s.log.Error("failed to sweep expired refresh tokens", slog.String("op", op), sl.Err(err))

		return
	}

	metrics.RefreshTokensSwept.Add(float64(n))
	s.log.Info("expired refresh tokens swept", slog.String("op", op), slog.Int64("count", n))
}
