package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/versery-api/internal/repository"
)

// DBQueue is the default backend: a jobs table in the main database.
type DBQueue struct {
	jobs       repository.JobRepository
	lease      time.Duration
	retryDelay time.Duration
}

// NewDBQueue creates a database-backed queue. Claimed jobs that are not
// settled within lease become claimable again.
func NewDBQueue(jobs repository.JobRepository, lease time.Duration) *DBQueue {
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &DBQueue{jobs: jobs, lease: lease, retryDelay: 5 * time.Second}
}

func (q *DBQueue) Enqueue(ctx context.Context, stageID string) error {
	if _, err := q.jobs.Enqueue(ctx, stageID); err != nil {
		return fmt.Errorf("db queue: %w", err)
	}
	return nil
}

func (q *DBQueue) Next(ctx context.Context) (*Delivery, error) {
	job, err := q.jobs.Claim(ctx, q.lease)
	if err != nil {
		return nil, fmt.Errorf("db queue: %w", err)
	}
	if job == nil {
		return nil, nil
	}

	id := job.ID
	return NewDelivery(job.StageID,
		func(ctx context.Context) error { return q.jobs.Complete(ctx, id) },
		func(ctx context.Context, reason string) error { return q.jobs.Release(ctx, id, reason, q.retryDelay) },
	), nil
}

func (q *DBQueue) Close() error { return nil }
