package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/versery-api/internal/models"
)

// SQLitePaymentRepository implements PaymentRepository for SQLite.
type SQLitePaymentRepository struct {
	db *sql.DB
}

// NewSQLitePaymentRepository creates a new payment repository.
func NewSQLitePaymentRepository(db *sql.DB) *SQLitePaymentRepository {
	return &SQLitePaymentRepository{db: db}
}

const paymentColumns = `id, order_id, stage_id, external_id, idempotency_key, gateway, status,
	amount, currency, confirmation_url, created_at, updated_at`

func (r *SQLitePaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}
	if p.Gateway == "" {
		p.Gateway = models.PaymentGatewayYooKassa
	}
	now := time.Now().UTC().Truncate(time.Second)
	p.CreatedAt, p.UpdatedAt = now, now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, stage_id, external_id, idempotency_key, gateway, status,
			amount, currency, confirmation_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING
	`, p.ID, p.OrderID, p.StageID, p.ExternalID, p.IdempotencyKey, p.Gateway, p.Status,
		p.Amount, p.Currency, nullString(p.ConfirmationURL), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: payment %s already recorded", ErrConflict, p.ExternalID)
	}
	return nil
}

func (r *SQLitePaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	return getPaymentByExternalID(ctx, r.db, externalID)
}

func getPaymentByExternalID(ctx context.Context, q queryer, externalID string) (*models.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_id = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *SQLitePaymentRepository) GetPendingByStage(ctx context.Context, stageID string) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE stage_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1
	`, stageID, models.PaymentStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *SQLitePaymentRepository) ListByStage(ctx context.Context, stageID string) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE stage_id = ? ORDER BY created_at, id
	`, stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLitePaymentRepository) MarkCanceled(ctx context.Context, externalID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = ?, updated_at = ?
		WHERE external_id = ? AND status = ?
	`, models.PaymentStatusCanceled, nowString(), externalID, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to cancel payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLitePaymentRepository) SumSucceeded(ctx context.Context, currency string) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT SUM(amount) FROM payments WHERE status = ? AND currency = ?
	`, models.PaymentStatusSucceeded, currency).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payments: %w", err)
	}
	return total.Int64, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var gateway, status, createdAt, updatedAt string
	var confirmationURL sql.NullString

	err := row.Scan(&p.ID, &p.OrderID, &p.StageID, &p.ExternalID, &p.IdempotencyKey, &gateway, &status,
		&p.Amount, &p.Currency, &confirmationURL, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	p.Gateway = models.PaymentGateway(gateway)
	p.Status = models.PaymentStatus(status)
	p.ConfirmationURL = confirmationURL.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
