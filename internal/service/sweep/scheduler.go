// internal/service/sweep/scheduler.go
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler invokes the sweep on a fixed cadence. The entry point is
// idempotent, so an overlapping manual trigger or a second scheduler
// instance is harmless.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(svc *Service, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{svc: svc, interval: interval, logger: logger}
}

// Run blocks until the context is cancelled, sweeping once per interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweep scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweep scheduler stopped")
			return

		case <-ticker.C:
			started := time.Now()
			counts, err := s.svc.RunExpirySweep(ctx)
			fields := []zap.Field{
				zap.Duration("took", time.Since(started)),
				zap.Any("counts", counts),
			}
			if err != nil {
				s.logger.Error("expiry sweep finished with phase failures", append(fields, zap.Error(err))...)
				continue
			}
			s.logger.Info("expiry sweep finished", fields...)
		}
	}
}
