package retention

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes archived samples older than a cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service applies the day-based archive horizon. The in-memory history
// window has its own, much shorter retention.
type Service struct {
	repo          Pruner
	retentionDays int
	log           *slog.Logger
	now           func() time.Time
}

func NewService(repo Pruner, days int, logger *slog.Logger) *Service {
	if days <= 0 {
		days = 14
	}
	return &Service{repo: repo, retentionDays: days, log: logger, now: time.Now}
}

func (s *Service) Run(ctx context.Context) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("archive retention cleanup failed", "err", err)
		return
	}
	s.log.Info("archive retention cleanup completed", "cutoff", cutoff, "deleted", n)
}
