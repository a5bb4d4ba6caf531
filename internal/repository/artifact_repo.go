package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmylchreest/versery-api/internal/models"
)

// SQLiteArtifactRepository implements ArtifactRepository for SQLite.
type SQLiteArtifactRepository struct {
	db *sql.DB
}

// NewSQLiteArtifactRepository creates a new artifact repository.
func NewSQLiteArtifactRepository(db *sql.DB) *SQLiteArtifactRepository {
	return &SQLiteArtifactRepository{db: db}
}

const artifactColumns = `id, order_id, stage_id, type, content, provider, model, created_at`

func (r *SQLiteArtifactRepository) GetByID(ctx context.Context, id string) (*models.Artifact, error) {
	a, err := scanArtifact(r.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *SQLiteArtifactRepository) ListByOrder(ctx context.Context, orderID string) ([]*models.Artifact, error) {
	return r.list(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE order_id = ? ORDER BY created_at, id`, orderID)
}

func (r *SQLiteArtifactRepository) ListByStage(ctx context.Context, stageID string) ([]*models.Artifact, error) {
	return r.list(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE stage_id = ? ORDER BY created_at, id`, stageID)
}

func (r *SQLiteArtifactRepository) LatestByOrderAndType(ctx context.Context, orderID string, t models.ArtifactType) (*models.Artifact, error) {
	// ULIDs are time ordered, so id breaks ties within the same second.
	a, err := scanArtifact(r.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts
		WHERE order_id = ? AND type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, orderID, t))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *SQLiteArtifactRepository) list(ctx context.Context, query string, args ...any) ([]*models.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertArtifact(ctx context.Context, q queryer, a *models.Artifact) error {
	if a.ID == "" {
		a.ID = newID()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO artifacts (id, order_id, stage_id, type, content, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.OrderID, nullString(a.StageID), a.Type, a.Content,
		nullString(a.Provider), nullString(a.Model), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

func scanArtifact(row rowScanner) (*models.Artifact, error) {
	var a models.Artifact
	var artifactType, createdAt string
	var stageID, provider, model sql.NullString

	err := row.Scan(&a.ID, &a.OrderID, &stageID, &artifactType, &a.Content, &provider, &model, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan artifact: %w", err)
	}
	a.StageID = stageID.String
	a.Type = models.ArtifactType(artifactType)
	a.Provider = provider.String
	a.Model = model.String
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}
