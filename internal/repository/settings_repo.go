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

// SQLiteSettingsRepository implements SettingsRepository for SQLite.
type SQLiteSettingsRepository struct {
	db *sql.DB
}

// NewSQLiteSettingsRepository creates a new settings repository.
func NewSQLiteSettingsRepository(db *sql.DB) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{db: db}
}

func (r *SQLiteSettingsRepository) GetProduct(ctx context.Context, code string) (*models.ProductConfig, error) {
	var p models.ProductConfig
	var isActive int
	var updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT code, title, price, is_active, updated_at FROM product_configs WHERE code = ?
	`, code).Scan(&p.Code, &p.Title, &p.Price, &isActive, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.IsActive = isActive != 0
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (r *SQLiteSettingsRepository) UpsertProduct(ctx context.Context, p *models.ProductConfig) error {
	p.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO product_configs (code, title, price, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, p.Code, p.Title, p.Price, boolToInt(p.IsActive), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (r *SQLiteSettingsRepository) GetContentPolicy(ctx context.Context) (*models.ContentPolicy, error) {
	var wordsJSON, updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT stop_words_json, updated_at FROM content_policy WHERE id = 1
	`).Scan(&wordsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ContentPolicy{StopWords: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content policy: %w", err)
	}

	policy := &models.ContentPolicy{UpdatedAt: parseTime(updatedAt)}
	if err := json.Unmarshal([]byte(wordsJSON), &policy.StopWords); err != nil {
		return nil, fmt.Errorf("failed to decode stop words: %w", err)
	}
	return policy, nil
}

func (r *SQLiteSettingsRepository) SetStopWords(ctx context.Context, words []string) error {
	if words == nil {
		words = []string{}
	}
	b, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("failed to encode stop words: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO content_policy (id, stop_words_json, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET stop_words_json = excluded.stop_words_json, updated_at = excluded.updated_at
	`, string(b), nowString())
	if err != nil {
		return fmt.Errorf("failed to save stop words: %w", err)
	}
	return nil
}
