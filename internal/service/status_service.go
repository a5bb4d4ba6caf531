package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/repository"
)

// StatusService answers customer polling. It never exposes internal failure
// reasons.
type StatusService struct {
	repos  *repository.Repositories
	store  ArtifactStore
	logger *slog.Logger
}

// NewStatusService creates a new status service.
func NewStatusService(repos *repository.Repositories, store ArtifactStore, logger *slog.Logger) *StatusService {
	return &StatusService{repos: repos, store: store, logger: logger}
}

// StageView is the public shape of a stage.
type StageView struct {
	ID         string             `json:"id"`
	Type       models.StageType   `json:"type"`
	Status     models.StageStatus `json:"status"`
	Price      int64              `json:"price"`
	Message    string             `json:"message,omitempty"`
	PaidAt     *time.Time         `json:"paid_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// ArtifactView is the public shape of an artifact. Text is inline; binary
// artifacts carry a download URL.
type ArtifactView struct {
	ID        string              `json:"id"`
	StageID   string              `json:"stage_id,omitempty"`
	Type      models.ArtifactType `json:"type"`
	Text      string              `json:"text,omitempty"`
	URL       string              `json:"url,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// OrderStatus is an order with its stages and artifacts.
type OrderStatus struct {
	ID        string             `json:"id"`
	Status    models.OrderStatus `json:"status"`
	Stages    []StageView        `json:"stages"`
	Artifacts []ArtifactView     `json:"artifacts"`
	CreatedAt time.Time          `json:"created_at"`
}

// StageArtifact is the polling answer for a single stage.
type StageArtifact struct {
	StageID  string             `json:"stage_id"`
	Status   models.StageStatus `json:"status"`
	Ready    bool               `json:"ready"`
	Message  string             `json:"message,omitempty"`
	Artifact *ArtifactView      `json:"artifact,omitempty"`
}

// NewStageView converts a stage for public display.
func NewStageView(stage *models.Stage) StageView {
	v := StageView{
		ID:         stage.ID,
		Type:       stage.Type,
		Status:     stage.Status,
		Price:      stage.Price,
		PaidAt:     stage.PaidAt,
		FinishedAt: stage.FinishedAt,
	}
	if stage.Status == models.StageStatusFailed {
		v.Message = GenericFailureMessage
	}
	return v
}

// GetOrder returns the public status of an order.
func (s *StatusService) GetOrder(ctx context.Context, orderID string) (*OrderStatus, error) {
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
	artifacts, err := s.repos.Artifact.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	out := &OrderStatus{
		ID:        order.ID,
		Status:    order.Status,
		Stages:    make([]StageView, 0, len(stages)),
		Artifacts: make([]ArtifactView, 0, len(artifacts)),
		CreatedAt: order.CreatedAt,
	}
	for _, st := range stages {
		out.Stages = append(out.Stages, NewStageView(st))
	}
	for _, a := range artifacts {
		out.Artifacts = append(out.Artifacts, s.artifactView(ctx, a))
	}
	return out, nil
}

// customerOrderLimit caps a customer's order list.
const customerOrderLimit = 20

// OrderSummary is one entry of a customer's order list.
type OrderSummary struct {
	ID        string             `json:"id"`
	Status    models.OrderStatus `json:"status"`
	Stages    []StageView        `json:"stages"`
	PoemReady bool               `json:"poem_ready"`
	CreatedAt time.Time          `json:"created_at"`
}

// ListCustomerOrders returns a customer's most recent orders, newest first.
func (s *StatusService) ListCustomerOrders(ctx context.Context, customerID string) ([]OrderSummary, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", ErrInvalidInput)
	}
	orders, err := s.repos.Order.ListByCustomer(ctx, customerID, customerOrderLimit)
	if err != nil {
		return nil, err
	}

	out := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		stages, err := s.repos.Stage.ListByOrder(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		poem, err := s.repos.Artifact.LatestByOrderAndType(ctx, o.ID, models.ArtifactTypeText)
		if err != nil {
			return nil, err
		}
		summary := OrderSummary{
			ID:        o.ID,
			Status:    o.Status,
			Stages:    make([]StageView, 0, len(stages)),
			PoemReady: poem != nil,
			CreatedAt: o.CreatedAt,
		}
		for _, st := range stages {
			summary.Stages = append(summary.Stages, NewStageView(st))
		}
		out = append(out, summary)
	}
	return out, nil
}

// GetStageArtifact reports whether a stage's artifact is ready.
func (s *StatusService) GetStageArtifact(ctx context.Context, stageID string) (*StageArtifact, error) {
	stage, err := s.repos.Stage.GetByID(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, fmt.Errorf("%w: stage %s", ErrNotFound, stageID)
	}

	out := &StageArtifact{StageID: stage.ID, Status: stage.Status}
	switch stage.Status {
	case models.StageStatusFailed:
		out.Message = GenericFailureMessage
		return out, nil
	case models.StageStatusCompleted:
	default:
		return out, nil
	}

	artifacts, err := s.repos.Artifact.ListByStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		s.logger.Error("completed stage has no artifact", "stage_id", stageID)
		return out, nil
	}
	view := s.artifactView(ctx, artifacts[len(artifacts)-1])
	out.Ready = true
	out.Artifact = &view
	return out, nil
}

func (s *StatusService) artifactView(ctx context.Context, a *models.Artifact) ArtifactView {
	v := ArtifactView{ID: a.ID, StageID: a.StageID, Type: a.Type, CreatedAt: a.CreatedAt}
	if !a.Type.IsBinary() {
		v.Text = a.Content
		return v
	}
	if s.store == nil {
		return v
	}
	url, err := s.store.URL(ctx, a.Content)
	if err != nil {
		s.logger.Warn("cannot resolve artifact url", "artifact_id", a.ID, "error", err)
		return v
	}
	v.URL = url
	return v
}
