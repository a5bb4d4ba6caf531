package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/versery-api/internal/models"
)

// SQLiteJobRepository implements JobRepository for SQLite.
type SQLiteJobRepository struct {
	db *sql.DB
}

// NewSQLiteJobRepository creates a new SQLite job repository.
func NewSQLiteJobRepository(db *sql.DB) *SQLiteJobRepository {
	return &SQLiteJobRepository{db: db}
}

const jobColumns = `id, stage_id, status, deliveries, last_error, available_at, claimed_at, created_at`

func (r *SQLiteJobRepository) Enqueue(ctx context.Context, stageID string) (*models.Job, error) {
	now := time.Now().UTC().Truncate(time.Second)
	job := &models.Job{
		ID:          newID(),
		StageID:     stageID,
		Status:      models.JobStatusPending,
		AvailableAt: now,
		CreatedAt:   now,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, stage_id, status, deliveries, available_at, created_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, job.ID, job.StageID, job.Status, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

// Claim uses UPDATE ... RETURNING so that claiming and fetching happen in one
// statement; two workers can never receive the same row.
func (r *SQLiteJobRepository) Claim(ctx context.Context, lease time.Duration) (*models.Job, error) {
	now := time.Now().UTC()
	nowStr := formatTime(now)
	expired := formatTime(now.Add(-lease))

	job, err := scanJob(r.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = ?, claimed_at = ?, deliveries = deliveries + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE available_at <= ?
			  AND (status = ? OR (status = ? AND claimed_at < ?))
			ORDER BY available_at ASC, id ASC
			LIMIT 1
		)
		RETURNING `+jobColumns,
		models.JobStatusClaimed, nowStr,
		nowStr, models.JobStatusPending, models.JobStatusClaimed, expired,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

func (r *SQLiteJobRepository) Complete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, models.JobStatusDone, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Release puts a claimed job back on the queue, visible again after delay.
func (r *SQLiteJobRepository) Release(ctx context.Context, id, reason string, delay time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, claimed_at = NULL, last_error = ?, available_at = ?
		WHERE id = ? AND status = ?
	`, models.JobStatusPending, nullString(reason), formatTime(time.Now().Add(delay)), id, models.JobStatusClaimed)
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	return nil
}

func (r *SQLiteJobRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteJobRepository) DeleteDoneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE status = ? AND created_at < ?`,
		models.JobStatusDone, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var status, availableAt, createdAt string
	var lastError, claimedAt sql.NullString

	err := row.Scan(&j.ID, &j.StageID, &status, &j.Deliveries, &lastError, &availableAt, &claimedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.LastError = lastError.String
	j.AvailableAt = parseTime(availableAt)
	j.ClaimedAt = parseNullTime(claimedAt)
	j.CreatedAt = parseTime(createdAt)
	return &j, nil
}
