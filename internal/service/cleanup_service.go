package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/versery-api/internal/repository"
)

// CleanupService prunes settled rows from the database job queue. Stage,
// payment and artifact history is never touched.
type CleanupService struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(jobs repository.JobRepository, logger *slog.Logger) *CleanupService {
	return &CleanupService{
		jobs:   jobs,
		logger: logger.With("component", "cleanup"),
	}
}

// CleanupOldJobs deletes done jobs created more than maxAge ago.
func (s *CleanupService) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	n, err := s.jobs.DeleteDoneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("deleted old jobs", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// RunScheduledCleanup runs immediately and then every interval until ctx is
// done.
func (s *CleanupService) RunScheduledCleanup(ctx context.Context, maxAge, interval time.Duration) {
	s.logger.Info("starting scheduled cleanup",
		"max_age", maxAge.String(),
		"interval", interval.String(),
	)

	if _, err := s.CleanupOldJobs(ctx, maxAge); err != nil {
		s.logger.Error("initial cleanup failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled cleanup stopped")
			return
		case <-ticker.C:
			if _, err := s.CleanupOldJobs(ctx, maxAge); err != nil {
				s.logger.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}
