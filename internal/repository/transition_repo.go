package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/versery-api/internal/models"
)

// SQLiteTransitionRepository implements TransitionRepository for SQLite.
//
// Every state change is a guarded UPDATE whose WHERE clause names the allowed
// source states, so concurrent callers racing on the same row see exactly one
// winner. Multi-row changes open the transaction with a write so SQLite takes
// the write lock up front instead of failing a read-to-write upgrade.
type SQLiteTransitionRepository struct {
	db *sql.DB
}

// NewSQLiteTransitionRepository creates a new transition repository.
func NewSQLiteTransitionRepository(db *sql.DB) *SQLiteTransitionRepository {
	return &SQLiteTransitionRepository{db: db}
}

func (r *SQLiteTransitionRepository) MarkPaid(ctx context.Context, stageID, externalPaymentID string) (*MarkPaidResult, error) {
	result := &MarkPaidResult{}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		now := nowString()

		res, err := tx.ExecContext(ctx, `UPDATE payments SET updated_at = updated_at WHERE external_id = ?`, externalPaymentID)
		if err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		payment, err := getPaymentByExternalID(ctx, tx, externalPaymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return ErrNotFound
		}
		if stageID != "" && payment.StageID != stageID {
			return fmt.Errorf("%w: payment %s belongs to stage %s, not %s", ErrConflict, externalPaymentID, payment.StageID, stageID)
		}

		stage, err := getStage(ctx, tx, payment.StageID)
		if err != nil {
			return err
		}
		if stage == nil {
			return ErrNotFound
		}
		order, err := getOrder(ctx, tx, stage.OrderID)
		if err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE payments SET status = ?, updated_at = ?
			WHERE external_id = ? AND status != ?
		`, models.PaymentStatusSucceeded, now, externalPaymentID, models.PaymentStatusSucceeded)
		if err != nil {
			return fmt.Errorf("failed to mark payment succeeded: %w", err)
		}
		n, _ := res.RowsAffected()
		result.PaymentUpdated = n == 1

		if stage.Status == models.StageStatusCancelled || (order != nil && order.Status == models.OrderStatusCancelled) {
			result.StageCancelled = true
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE stages SET status = ?, paid_at = ?, updated_at = ?
				WHERE id = ? AND status = ?
			`, models.StageStatusPaid, now, now, stage.ID, models.StageStatusPending)
			if err != nil {
				return fmt.Errorf("failed to mark stage paid: %w", err)
			}
			n, _ = res.RowsAffected()
			result.StageAdvanced = n == 1

			if result.StageAdvanced {
				_, err = tx.ExecContext(ctx, `
					UPDATE orders SET status = ?, updated_at = ?
					WHERE id = ? AND status = ?
				`, models.OrderStatusPaid, now, stage.OrderID, models.OrderStatusPending)
				if err != nil {
					return fmt.Errorf("failed to mark order paid: %w", err)
				}
			}
		}

		if result.Payment, err = getPaymentByExternalID(ctx, tx, externalPaymentID); err != nil {
			return err
		}
		result.Stage, err = getStage(ctx, tx, stage.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteTransitionRepository) Transition(ctx context.Context, stageID string, from []models.StageStatus, to models.StageStatus, reason string) (*models.Stage, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: no source states for %s", ErrConflict, to)
	}
	for _, f := range from {
		if !f.CanTransition(to) {
			return nil, fmt.Errorf("%w: %s -> %s is not a legal edge", ErrConflict, f, to)
		}
	}

	now := nowString()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{to, now}

	switch to {
	case models.StageStatusPaid:
		// Only reachable from PENDING via MarkPaid or from FAILED via requeue.
		sets = append(sets, "error_reason = NULL", "cancel_requested = 0", "finished_at = NULL")
	case models.StageStatusProcessing:
		sets = append(sets, "started_at = ?", "attempts = attempts + 1")
		args = append(args, now)
	case models.StageStatusFailed:
		if reason == "" {
			reason = "unknown error"
		}
		sets = append(sets, "finished_at = ?", "error_reason = ?")
		args = append(args, now, reason)
	case models.StageStatusCancelled, models.StageStatusCompleted:
		sets = append(sets, "finished_at = ?")
		args = append(args, now)
	}

	query := `UPDATE stages SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`
	args = append(args, stageID)
	for _, f := range from {
		args = append(args, f)
	}
	if to == models.StageStatusPaid || to == models.StageStatusProcessing {
		query += ` AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.id = stages.order_id AND o.status = ?)`
		args = append(args, models.OrderStatusCancelled)
	}
	query += ` RETURNING ` + stageColumns

	stage, err := scanStage(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.missOrConflict(ctx, stageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition stage: %w", err)
	}
	return stage, nil
}

func (r *SQLiteTransitionRepository) Complete(ctx context.Context, stageID string, artifact *models.Artifact) (*models.Stage, error) {
	var completed *models.Stage

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		now := time.Now().UTC().Truncate(time.Second)

		stage, err := scanStage(tx.QueryRowContext(ctx, `
			UPDATE stages SET status = ?, finished_at = ?, updated_at = ?
			WHERE id = ? AND status = ? AND cancel_requested = 0
			RETURNING `+stageColumns,
			models.StageStatusCompleted, formatTime(now), formatTime(now), stageID, models.StageStatusProcessing,
		))
		if errors.Is(err, sql.ErrNoRows) {
			existing, gerr := getStage(ctx, tx, stageID)
			if gerr != nil {
				return gerr
			}
			if existing == nil {
				return ErrNotFound
			}
			return fmt.Errorf("%w: stage %s is %s", ErrConflict, stageID, existing.Status)
		}
		if err != nil {
			return fmt.Errorf("failed to complete stage: %w", err)
		}

		artifact.OrderID = stage.OrderID
		artifact.StageID = stage.ID
		if artifact.CreatedAt.IsZero() {
			artifact.CreatedAt = now
		}
		if err := insertArtifact(ctx, tx, artifact); err != nil {
			return err
		}
		completed = stage
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

func (r *SQLiteTransitionRepository) RequestCancel(ctx context.Context, stageID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE stages SET cancel_requested = 1, updated_at = ?
		WHERE id = ? AND status = ? AND cancel_requested = 0
	`, nowString(), stageID, models.StageStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to request cancel: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CancelOrder cancels the order and every stage that has not started.
// Stages already PROCESSING are flagged for cooperative cancellation.
// Returns the number of stages moved to CANCELLED.
func (r *SQLiteTransitionRepository) CancelOrder(ctx context.Context, orderID string) (int, error) {
	var cancelled int

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		now := nowString()

		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = ?, updated_at = ? WHERE id = ?
		`, models.OrderStatusCancelled, now, orderID)
		if err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		from := models.SourcesFor(models.StageStatusCancelled)
		args := []any{models.StageStatusCancelled, now, now, orderID}
		for _, f := range from {
			args = append(args, f)
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE stages SET status = ?, finished_at = ?, updated_at = ?
			WHERE order_id = ? AND status IN (`+placeholders(len(from))+`)
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to cancel stages: %w", err)
		}
		n, _ := res.RowsAffected()
		cancelled = int(n)

		_, err = tx.ExecContext(ctx, `
			UPDATE stages SET cancel_requested = 1, updated_at = ?
			WHERE order_id = ? AND status = ?
		`, now, orderID, models.StageStatusProcessing)
		if err != nil {
			return fmt.Errorf("failed to flag processing stages: %w", err)
		}
		return nil
	})
	return cancelled, err
}

func (r *SQLiteTransitionRepository) missOrConflict(ctx context.Context, stageID string) error {
	stage, err := getStage(ctx, r.db, stageID)
	if err != nil {
		return err
	}
	if stage == nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: stage %s is %s", ErrConflict, stageID, stage.Status)
}
