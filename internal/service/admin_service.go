package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/policy"
	"github.com/jmylchreest/versery-api/internal/repository"
)

// AdminService provides operator read models and settings management.
type AdminService struct {
	repos    *repository.Repositories
	currency string
	logger   *slog.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(repos *repository.Repositories, currency string, logger *slog.Logger) *AdminService {
	return &AdminService{repos: repos, currency: strings.ToUpper(currency), logger: logger}
}

// Dashboard is the operator overview.
type Dashboard struct {
	OrdersByStatus map[models.OrderStatus]int `json:"orders_by_status"`
	StagesByStatus map[models.StageStatus]int `json:"stages_by_status"`
	JobsByStatus   map[models.JobStatus]int   `json:"jobs_by_status"`
	Revenue        int64                      `json:"revenue"`
	Currency       string                     `json:"currency"`
}

// Dashboard aggregates counts and revenue.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	orders, err := s.repos.Order.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	stages, err := s.repos.Stage.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count stages: %w", err)
	}
	jobs, err := s.repos.Job.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	revenue, err := s.repos.Payment.SumSucceeded(ctx, s.currency)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return &Dashboard{
		OrdersByStatus: orders,
		StagesByStatus: stages,
		JobsByStatus:   jobs,
		Revenue:        revenue,
		Currency:       s.currency,
	}, nil
}

// ListStages returns stages in status, most recently updated first. Unlike
// the public views these include the internal failure reason.
func (s *AdminService) ListStages(ctx context.Context, status models.StageStatus, limit int) ([]*models.Stage, error) {
	switch status {
	case models.StageStatusPending, models.StageStatusPaid, models.StageStatusProcessing,
		models.StageStatusCompleted, models.StageStatusFailed, models.StageStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown stage status %q", ErrInvalidInput, status)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repos.Stage.ListByStatus(ctx, status, limit)
}

// ListOrders returns orders, newest first. An empty status lists all orders.
func (s *AdminService) ListOrders(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error) {
	switch status {
	case "", models.OrderStatusPending, models.OrderStatusPaid, models.OrderStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, status)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repos.Order.List(ctx, status, limit)
}

// OrderDetail is everything recorded for one order, internal reasons included.
type OrderDetail struct {
	Order     *models.Order
	Stages    []*models.Stage
	Payments  []*models.Payment
	Artifacts []*models.Artifact
}

// GetOrder returns an order with its stages, payments and artifacts.
func (s *AdminService) GetOrder(ctx context.Context, orderID string) (*OrderDetail, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}

	stages, err := s.repos.Stage.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	detail := &OrderDetail{Order: order, Stages: stages}
	for _, st := range stages {
		payments, err := s.repos.Payment.ListByStage(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		detail.Payments = append(detail.Payments, payments...)
	}
	if detail.Artifacts, err = s.repos.Artifact.ListByOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return detail, nil
}

// GetPolicy returns the stop-word list.
func (s *AdminService) GetPolicy(ctx context.Context) (*models.ContentPolicy, error) {
	return s.repos.Settings.GetContentPolicy(ctx)
}

// SetPolicy replaces the stop-word list with its normalized form.
func (s *AdminService) SetPolicy(ctx context.Context, words []string) (*models.ContentPolicy, error) {
	normalized := policy.New(words).Words()
	if err := s.repos.Settings.SetStopWords(ctx, normalized); err != nil {
		return nil, fmt.Errorf("failed to save content policy: %w", err)
	}
	s.logger.Info("content policy updated", "stop_words", len(normalized))
	return s.repos.Settings.GetContentPolicy(ctx)
}

// GetProduct returns a product by code.
func (s *AdminService) GetProduct(ctx context.Context, code string) (*models.ProductConfig, error) {
	p, err := s.repos.Settings.GetProduct(ctx, code)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, code)
	}
	return p, nil
}

// UpsertProduct creates or updates a product price.
func (s *AdminService) UpsertProduct(ctx context.Context, product *models.ProductConfig) error {
	product.Code = strings.ToLower(strings.TrimSpace(product.Code))
	switch {
	case product.Code == "":
		return fmt.Errorf("%w: product code is required", ErrInvalidInput)
	case product.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(product.Title) == "" {
		product.Title = product.Code
	}
	if err := s.repos.Settings.UpsertProduct(ctx, product); err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	s.logger.Info("product updated", "code", product.Code, "price", product.Price, "active", product.IsActive)
	return nil
}
