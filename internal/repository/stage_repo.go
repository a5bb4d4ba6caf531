package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/versery-api/internal/models"
)

// SQLiteStageRepository implements StageRepository for SQLite.
type SQLiteStageRepository struct {
	db *sql.DB
}

// NewSQLiteStageRepository creates a new stage repository.
func NewSQLiteStageRepository(db *sql.DB) *SQLiteStageRepository {
	return &SQLiteStageRepository{db: db}
}

const stageColumns = `id, order_id, type, status, price, input_json, error_reason, attempts,
	cancel_requested, paid_at, started_at, finished_at, created_at, updated_at`

func (r *SQLiteStageRepository) Create(ctx context.Context, stage *models.Stage) error {
	return insertStage(ctx, r.db, stage)
}

func insertStage(ctx context.Context, q queryer, stage *models.Stage) error {
	if stage.ID == "" {
		stage.ID = newID()
	}
	if stage.Status == "" {
		stage.Status = models.StageStatusPending
	}
	if len(stage.Input) == 0 {
		stage.Input = json.RawMessage(`{}`)
	}
	now := time.Now().UTC().Truncate(time.Second)
	stage.CreatedAt, stage.UpdatedAt = now, now

	_, err := q.ExecContext(ctx, `
		INSERT INTO stages (id, order_id, type, status, price, input_json, attempts, cancel_requested, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
	`, stage.ID, stage.OrderID, stage.Type, stage.Status, stage.Price, string(stage.Input),
		formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create stage: %w", err)
	}
	return nil
}

func (r *SQLiteStageRepository) GetByID(ctx context.Context, id string) (*models.Stage, error) {
	return getStage(ctx, r.db, id)
}

func getStage(ctx context.Context, q queryer, id string) (*models.Stage, error) {
	stage, err := scanStage(q.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return stage, err
}

func (r *SQLiteStageRepository) ListByOrder(ctx context.Context, orderID string) ([]*models.Stage, error) {
	return r.list(ctx, `SELECT `+stageColumns+` FROM stages WHERE order_id = ? ORDER BY created_at, id`, orderID)
}

func (r *SQLiteStageRepository) ListByStatus(ctx context.Context, status models.StageStatus, limit int) ([]*models.Stage, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `
		SELECT `+stageColumns+` FROM stages
		WHERE status = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, status, limit)
}

func (r *SQLiteStageRepository) ListStale(ctx context.Context, status models.StageStatus, before time.Time, limit int) ([]*models.Stage, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `
		SELECT `+stageColumns+` FROM stages
		WHERE status = ? AND updated_at < ?
			AND (dispatched_at IS NULL OR dispatched_at < ?)
		ORDER BY updated_at ASC
		LIMIT ?
	`, status, formatTime(before), formatTime(before), limit)
}

func (r *SQLiteStageRepository) MarkDispatched(ctx context.Context, stageID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE stages SET dispatched_at = ? WHERE id = ?`, formatTime(at), stageID)
	if err != nil {
		return fmt.Errorf("failed to mark stage dispatched: %w", err)
	}
	return nil
}

func (r *SQLiteStageRepository) CountByStatus(ctx context.Context) (map[models.StageStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM stages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count stages: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.StageStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.StageStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteStageRepository) list(ctx context.Context, query string, args ...any) ([]*models.Stage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []*models.Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

func scanStage(row rowScanner) (*models.Stage, error) {
	var s models.Stage
	var stageType, status, inputJSON, createdAt, updatedAt string
	var errorReason, paidAt, startedAt, finishedAt sql.NullString
	var cancelRequested int

	err := row.Scan(
		&s.ID, &s.OrderID, &stageType, &status, &s.Price, &inputJSON, &errorReason, &s.Attempts,
		&cancelRequested, &paidAt, &startedAt, &finishedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan stage: %w", err)
	}

	s.Type = models.StageType(stageType)
	s.Status = models.StageStatus(status)
	s.Input = json.RawMessage(inputJSON)
	s.ErrorReason = errorReason.String
	s.CancelRequested = cancelRequested != 0
	s.PaidAt = parseNullTime(paidAt)
	s.StartedAt = parseNullTime(startedAt)
	s.FinishedAt = parseNullTime(finishedAt)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}
