package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmylchreest/versery-api/internal/database/migrations"
	"github.com/jmylchreest/versery-api/internal/models"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(setupTestDB(t))
}

// seedPendingStage creates an order with one PENDING poem stage and a PENDING
// payment whose external id is externalID.
func seedPendingStage(t *testing.T, repos *Repositories, externalID string) (*models.Order, *models.Stage) {
	t.Helper()
	ctx := context.Background()

	order := &models.Order{CustomerID: "customer-1"}
	if err := repos.Order.Create(ctx, order); err != nil {
		t.Fatalf("Order.Create() error = %v", err)
	}
	stage := &models.Stage{OrderID: order.ID, Type: models.StageTypePoem, Price: 4900}
	if err := repos.Stage.Create(ctx, stage); err != nil {
		t.Fatalf("Stage.Create() error = %v", err)
	}
	if externalID != "" {
		payment := &models.Payment{
			OrderID:        order.ID,
			StageID:        stage.ID,
			ExternalID:     externalID,
			IdempotencyKey: "pay_" + stage.ID,
			Amount:         4900,
			Currency:       "RUB",
		}
		if err := repos.Payment.Create(ctx, payment); err != nil {
			t.Fatalf("Payment.Create() error = %v", err)
		}
	}
	return order, stage
}

// forceStageStatus bypasses the transition guards to put a stage in status.
func forceStageStatus(t *testing.T, db *sql.DB, stageID string, status models.StageStatus) {
	t.Helper()
	if _, err := db.Exec(`UPDATE stages SET status = ? WHERE id = ?`, status, stageID); err != nil {
		t.Fatalf("failed to force stage status: %v", err)
	}
}
