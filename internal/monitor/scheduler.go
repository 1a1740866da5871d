package monitor

import (
	"context"
	"log/slog"
	"time"
)

type Cycler interface {
	Cycle(ctx context.Context)
}

// Scheduler runs one cycle immediately and then one per interval. Cycles
// never overlap; ticks that fire during a cycle are dropped.
type Scheduler struct {
	c        Cycler
	interval time.Duration
	log      *slog.Logger
}

func NewScheduler(c Cycler, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Scheduler{c: c, interval: interval, log: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", "interval", s.interval)
	defer s.log.Info("scheduler stopped")

	s.c.Cycle(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			s.c.Cycle(ctx)
		}
	}
}
