// Package repository defines repository interfaces for data access and their
// libsql (SQLite) implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmylchreest/versery-api/internal/models"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a guarded update matched no row because the
	// current state does not satisfy the guard.
	ErrConflict = errors.New("state conflict")
)

// OrderRepository defines methods for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	// CreateWithStage inserts an order and its first stage atomically.
	CreateWithStage(ctx context.Context, order *models.Order, stage *models.Stage) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.Order, error)
	List(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error)
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error)
}

// StageRepository defines methods for stage data access.
// Status changes go through TransitionRepository, never through this interface.
type StageRepository interface {
	Create(ctx context.Context, stage *models.Stage) error
	GetByID(ctx context.Context, id string) (*models.Stage, error)
	ListByOrder(ctx context.Context, orderID string) ([]*models.Stage, error)
	ListByStatus(ctx context.Context, status models.StageStatus, limit int) ([]*models.Stage, error)
	// ListStale returns stages in status whose last update, and last
	// reconcile dispatch if any, are older than before.
	ListStale(ctx context.Context, status models.StageStatus, before time.Time, limit int) ([]*models.Stage, error)
	// MarkDispatched records a reconcile re-enqueue so the next sweeps skip
	// the stage until it is stale again.
	MarkDispatched(ctx context.Context, stageID string, at time.Time) error
	CountByStatus(ctx context.Context) (map[models.StageStatus]int, error)
}

// PaymentRepository defines methods for payment data access.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	GetPendingByStage(ctx context.Context, stageID string) (*models.Payment, error)
	ListByStage(ctx context.Context, stageID string) ([]*models.Payment, error)
	// MarkCanceled moves a PENDING payment to CANCELED. Returns false if the
	// payment was already terminal.
	MarkCanceled(ctx context.Context, externalID string) (bool, error)
	// SumSucceeded totals SUCCEEDED payment amounts in currency.
	SumSucceeded(ctx context.Context, currency string) (int64, error)
}

// ArtifactRepository defines read access to artifacts.
// Artifacts are only written by TransitionRepository.Complete.
type ArtifactRepository interface {
	GetByID(ctx context.Context, id string) (*models.Artifact, error)
	ListByOrder(ctx context.Context, orderID string) ([]*models.Artifact, error)
	ListByStage(ctx context.Context, stageID string) ([]*models.Artifact, error)
	// LatestByOrderAndType returns the authoritative artifact of a type for an order.
	LatestByOrderAndType(ctx context.Context, orderID string, artifactType models.ArtifactType) (*models.Artifact, error)
}

// ProviderConfigRepository defines methods for per-stage-type provider settings.
type ProviderConfigRepository interface {
	Get(ctx context.Context, stageType models.StageType) (*models.ProviderConfig, error)
	List(ctx context.Context) ([]*models.ProviderConfig, error)
	Upsert(ctx context.Context, cfg *models.ProviderConfig) error
	// UpdateHealth records the outcome of a model sync without touching the credential.
	UpdateHealth(ctx context.Context, cfg *models.ProviderConfig) error
}

// SettingsRepository defines access to product prices and the content policy.
type SettingsRepository interface {
	GetProduct(ctx context.Context, code string) (*models.ProductConfig, error)
	UpsertProduct(ctx context.Context, product *models.ProductConfig) error
	GetContentPolicy(ctx context.Context) (*models.ContentPolicy, error)
	SetStopWords(ctx context.Context, words []string) error
}

// JobRepository is the database-backed generation queue.
type JobRepository interface {
	Enqueue(ctx context.Context, stageID string) (*models.Job, error)
	// Claim atomically takes the oldest available job. Jobs claimed longer
	// than lease ago are treated as abandoned and may be claimed again.
	Claim(ctx context.Context, lease time.Duration) (*models.Job, error)
	Complete(ctx context.Context, id string) error
	Release(ctx context.Context, id, reason string, delay time.Duration) error
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
	// DeleteDoneBefore removes settled jobs created before cutoff.
	DeleteDoneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MarkPaidResult describes what a MarkPaid call changed.
type MarkPaidResult struct {
	Payment        *models.Payment
	Stage          *models.Stage
	PaymentUpdated bool // payment moved to SUCCEEDED by this call
	StageAdvanced  bool // stage moved PENDING -> PAID by this call
	StageCancelled bool // stage or order was cancelled before payment landed
}

// TransitionRepository applies guarded state transitions inside transactions.
type TransitionRepository interface {
	MarkPaid(ctx context.Context, stageID, externalPaymentID string) (*MarkPaidResult, error)
	// Transition moves a stage from any of from to to. Returns ErrConflict if
	// the stage is not currently in one of from.
	Transition(ctx context.Context, stageID string, from []models.StageStatus, to models.StageStatus, reason string) (*models.Stage, error)
	// Complete persists the artifact and moves PROCESSING -> COMPLETED in one transaction.
	Complete(ctx context.Context, stageID string, artifact *models.Artifact) (*models.Stage, error)
	RequestCancel(ctx context.Context, stageID string) (bool, error)
	CancelOrder(ctx context.Context, orderID string) (int, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Order          OrderRepository
	Stage          StageRepository
	Payment        PaymentRepository
	Artifact       ArtifactRepository
	ProviderConfig ProviderConfigRepository
	Settings       SettingsRepository
	Job            JobRepository
	Transition     TransitionRepository
}

// NewRepositories creates all repositories over db.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Order:          NewSQLiteOrderRepository(db),
		Stage:          NewSQLiteStageRepository(db),
		Payment:        NewSQLitePaymentRepository(db),
		Artifact:       NewSQLiteArtifactRepository(db),
		ProviderConfig: NewSQLiteProviderConfigRepository(db),
		Settings:       NewSQLiteSettingsRepository(db),
		Job:            NewSQLiteJobRepository(db),
		Transition:     NewSQLiteTransitionRepository(db),
	}
}
