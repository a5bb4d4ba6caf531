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

// SQLiteOrderRepository implements OrderRepository for SQLite.
type SQLiteOrderRepository struct {
	db *sql.DB
}

// NewSQLiteOrderRepository creates a new order repository.
func NewSQLiteOrderRepository(db *sql.DB) *SQLiteOrderRepository {
	return &SQLiteOrderRepository{db: db}
}

const orderColumns = `id, customer_id, context_json, status, created_at, updated_at`

func (r *SQLiteOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return insertOrder(ctx, r.db, order)
}

// CreateWithStage inserts an order and its first stage in one transaction.
func (r *SQLiteOrderRepository) CreateWithStage(ctx context.Context, order *models.Order, stage *models.Stage) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}
		stage.OrderID = order.ID
		return insertStage(ctx, tx, stage)
	})
}

func insertOrder(ctx context.Context, q queryer, order *models.Order) error {
	if order.ID == "" {
		order.ID = newID()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if len(order.Context) == 0 {
		order.Context = json.RawMessage(`{}`)
	}
	now := time.Now().UTC().Truncate(time.Second)
	order.CreatedAt, order.UpdatedAt = now, now

	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, context_json, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, order.ID, order.CustomerID, string(order.Context), order.Status, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *SQLiteOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return getOrder(ctx, r.db, id)
}

func getOrder(ctx context.Context, q queryer, id string) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return order, err
}

func (r *SQLiteOrderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE customer_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// List returns orders, newest first. An empty status lists every order.
func (r *SQLiteOrderRepository) List(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *SQLiteOrderRepository) CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OrderStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.OrderStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var contextJSON, status, createdAt, updatedAt string
	if err := row.Scan(&o.ID, &o.CustomerID, &contextJSON, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	o.Context = json.RawMessage(contextJSON)
	o.Status = models.OrderStatus(status)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}
