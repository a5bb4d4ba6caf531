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

// SQLiteProviderConfigRepository implements ProviderConfigRepository for SQLite.
type SQLiteProviderConfigRepository struct {
	db *sql.DB
}

// NewSQLiteProviderConfigRepository creates a new provider config repository.
func NewSQLiteProviderConfigRepository(db *sql.DB) *SQLiteProviderConfigRepository {
	return &SQLiteProviderConfigRepository{db: db}
}

const providerConfigColumns = `stage_type, provider, credential_encrypted, folder_id, selected_model,
	available_models_json, models_refreshed_at, status, status_message, auto_reassigned_from, updated_at`

func (r *SQLiteProviderConfigRepository) Get(ctx context.Context, stageType models.StageType) (*models.ProviderConfig, error) {
	cfg, err := scanProviderConfig(r.db.QueryRowContext(ctx, `
		SELECT `+providerConfigColumns+` FROM provider_configs WHERE stage_type = ?
	`, stageType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cfg, err
}

func (r *SQLiteProviderConfigRepository) List(ctx context.Context) ([]*models.ProviderConfig, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+providerConfigColumns+` FROM provider_configs ORDER BY stage_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider configs: %w", err)
	}
	defer rows.Close()

	var out []*models.ProviderConfig
	for rows.Next() {
		cfg, err := scanProviderConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Upsert creates or replaces the provider selection for a stage type.
func (r *SQLiteProviderConfigRepository) Upsert(ctx context.Context, cfg *models.ProviderConfig) error {
	if cfg.Status == "" {
		cfg.Status = models.ProviderStatusActive
	}
	cfg.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	modelsJSON, err := marshalModels(cfg.AvailableModels)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO provider_configs (stage_type, provider, credential_encrypted, folder_id, selected_model,
			available_models_json, models_refreshed_at, status, status_message, auto_reassigned_from, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stage_type) DO UPDATE SET
			provider = excluded.provider,
			credential_encrypted = excluded.credential_encrypted,
			folder_id = excluded.folder_id,
			selected_model = excluded.selected_model,
			available_models_json = excluded.available_models_json,
			models_refreshed_at = excluded.models_refreshed_at,
			status = excluded.status,
			status_message = excluded.status_message,
			auto_reassigned_from = excluded.auto_reassigned_from,
			updated_at = excluded.updated_at
	`, cfg.StageType, cfg.Provider, nullString(cfg.CredentialEncrypted), nullString(cfg.FolderID),
		nullString(cfg.SelectedModel), modelsJSON, nullTimePtr(cfg.ModelsRefreshedAt), cfg.Status,
		nullString(cfg.StatusMessage), nullString(cfg.AutoReassignedFrom), formatTime(cfg.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert provider config: %w", err)
	}
	return nil
}

func (r *SQLiteProviderConfigRepository) UpdateHealth(ctx context.Context, cfg *models.ProviderConfig) error {
	cfg.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	modelsJSON, err := marshalModels(cfg.AvailableModels)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE provider_configs SET
			selected_model = ?, available_models_json = ?, models_refreshed_at = ?,
			status = ?, status_message = ?, auto_reassigned_from = ?, updated_at = ?
		WHERE stage_type = ?
	`, nullString(cfg.SelectedModel), modelsJSON, nullTimePtr(cfg.ModelsRefreshedAt), cfg.Status,
		nullString(cfg.StatusMessage), nullString(cfg.AutoReassignedFrom), formatTime(cfg.UpdatedAt), cfg.StageType)
	if err != nil {
		return fmt.Errorf("failed to update provider health: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalModels(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to marshal model list: %w", err)
	}
	return string(b), nil
}

func nullTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func scanProviderConfig(row rowScanner) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	var stageType, status, modelsJSON, updatedAt string
	var credential, folderID, selected, refreshedAt, statusMessage, reassigned sql.NullString

	err := row.Scan(&stageType, &cfg.Provider, &credential, &folderID, &selected,
		&modelsJSON, &refreshedAt, &status, &statusMessage, &reassigned, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan provider config: %w", err)
	}

	cfg.StageType = models.StageType(stageType)
	cfg.CredentialEncrypted = credential.String
	cfg.FolderID = folderID.String
	cfg.SelectedModel = selected.String
	cfg.ModelsRefreshedAt = parseNullTime(refreshedAt)
	cfg.Status = models.ProviderStatus(status)
	cfg.StatusMessage = statusMessage.String
	cfg.AutoReassignedFrom = reassigned.String
	cfg.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(modelsJSON), &cfg.AvailableModels); err != nil {
		cfg.AvailableModels = nil
	}
	return &cfg, nil
}
