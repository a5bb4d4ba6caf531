package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/repository"
)

// FulfillmentService owns every stage status change. Each operation is a
// single guarded update, so concurrent callers racing on the same stage see
// exactly one winner and the rest get ErrInvalidTransition.
type FulfillmentService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewFulfillmentService creates a new fulfillment service.
func NewFulfillmentService(repos *repository.Repositories, logger *slog.Logger) *FulfillmentService {
	return &FulfillmentService{repos: repos, logger: logger}
}

// MarkPaid records a successful payment and advances the stage PENDING -> PAID.
// applied is true only for the call that actually advanced the stage; repeat
// deliveries return false with no error.
func (s *FulfillmentService) MarkPaid(ctx context.Context, stageID, externalPaymentID string) (bool, error) {
	res, err := s.repos.Transition.MarkPaid(ctx, stageID, externalPaymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%w: %s", ErrPaymentNotFound, externalPaymentID)
		}
		return false, fromRepo(err)
	}

	if res.StageCancelled {
		s.logger.Warn("payment succeeded for cancelled stage",
			"stage_id", res.Stage.ID,
			"payment_id", externalPaymentID,
			"payment_updated", res.PaymentUpdated,
		)
		return false, fmt.Errorf("%w: %s", ErrStageCancelled, res.Stage.ID)
	}

	if res.StageAdvanced {
		s.logTransition(res.Stage, models.StageStatusPending)
	} else {
		s.logger.Debug("duplicate payment notification ignored",
			"stage_id", res.Stage.ID,
			"payment_id", externalPaymentID,
			"stage_status", res.Stage.Status,
		)
	}
	return res.StageAdvanced, nil
}

// BeginProcessing claims a PAID stage for generation.
func (s *FulfillmentService) BeginProcessing(ctx context.Context, stageID string) (*models.Stage, error) {
	return s.move(ctx, stageID, models.StageStatusPaid, models.StageStatusProcessing, "")
}

// Complete stores the artifact and finishes the stage in one transaction.
func (s *FulfillmentService) Complete(ctx context.Context, stageID string, artifact *models.Artifact) (*models.Stage, error) {
	if artifact == nil || artifact.Content == "" {
		return nil, fmt.Errorf("%w: completion requires an artifact", ErrInvalidTransition)
	}
	stage, err := s.repos.Transition.Complete(ctx, stageID, artifact)
	if err != nil {
		return nil, fromRepo(err)
	}
	s.logTransition(stage, models.StageStatusProcessing)
	return stage, nil
}

// Fail moves a PROCESSING stage to FAILED and records the internal reason.
func (s *FulfillmentService) Fail(ctx context.Context, stageID, reason string) (*models.Stage, error) {
	return s.move(ctx, stageID, models.StageStatusProcessing, models.StageStatusFailed, reason)
}

// Requeue sends a FAILED stage back to PAID. No new payment is taken.
func (s *FulfillmentService) Requeue(ctx context.Context, stageID string) (*models.Stage, error) {
	return s.move(ctx, stageID, models.StageStatusFailed, models.StageStatusPaid, "")
}

// Cancel cancels a stage that has not started. A PROCESSING stage is flagged
// instead and inFlight is true; the worker fails it before persisting output.
func (s *FulfillmentService) Cancel(ctx context.Context, stageID string) (inFlight bool, err error) {
	stage, err := s.repos.Stage.GetByID(ctx, stageID)
	if err != nil {
		return false, err
	}
	if stage == nil {
		return false, fmt.Errorf("%w: stage %s", ErrNotFound, stageID)
	}

	switch stage.Status {
	case models.StageStatusPending, models.StageStatusPaid:
		if _, err := s.move(ctx, stageID, stage.Status, models.StageStatusCancelled, ""); err != nil {
			return false, err
		}
		return false, nil
	case models.StageStatusProcessing:
		if _, err := s.repos.Transition.RequestCancel(ctx, stageID); err != nil {
			return false, err
		}
		s.logger.Info("cancel requested for in-flight stage", "stage_id", stageID)
		return true, nil
	}
	return false, fmt.Errorf("%w: cannot cancel stage in %s", ErrInvalidTransition, stage.Status)
}

// CancelOrder cancels an order and every stage that has not started.
func (s *FulfillmentService) CancelOrder(ctx context.Context, orderID string) (int, error) {
	n, err := s.repos.Transition.CancelOrder(ctx, orderID)
	if err != nil {
		return 0, fromRepo(err)
	}
	s.logger.Info("order cancelled", "order_id", orderID, "stages_cancelled", n)
	return n, nil
}

func (s *FulfillmentService) move(ctx context.Context, stageID string, from, to models.StageStatus, reason string) (*models.Stage, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	stage, err := s.repos.Transition.Transition(ctx, stageID, []models.StageStatus{from}, to, reason)
	if err != nil {
		return nil, fromRepo(err)
	}
	s.logTransition(stage, from)
	return stage, nil
}

func (s *FulfillmentService) logTransition(stage *models.Stage, from models.StageStatus) {
	attrs := []any{
		"stage_id", stage.ID,
		"order_id", stage.OrderID,
		"type", stage.Type,
		"from", from,
		"to", stage.Status,
	}
	if stage.Status == models.StageStatusFailed {
		attrs = append(attrs, "reason", stage.ErrorReason, "attempts", stage.Attempts)
	}
	s.logger.Info("stage transition", attrs...)
}
