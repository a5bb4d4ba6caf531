package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmylchreest/versery-api/internal/metrics"
	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/repository"
)

const (
	reconcileBatch       = 100
	processingTimeoutMsg = "processing timed out"
)

// ReconcileService finds stages the normal path lost track of: PAID stages
// whose enqueue was dropped, and PROCESSING stages whose worker died.
type ReconcileService struct {
	repos       *repository.Repositories
	fulfillment *FulfillmentService
	dispatcher  *Dispatcher
	notifier    Notifier
	staleAfter  time.Duration
	stuckAfter  time.Duration
	logger      *slog.Logger
}

// ReconcileConfig holds the sweep thresholds.
type ReconcileConfig struct {
	// StaleAfter is how long a stage may sit PAID before it is re-enqueued,
	// and the minimum gap between two re-enqueues of the same stage.
	StaleAfter time.Duration
	// ProviderTimeout and MaxAttempts bound how long a healthy worker can
	// hold a stage in PROCESSING.
	ProviderTimeout time.Duration
	MaxAttempts     int
}

// NewReconcileService creates a new reconcile service.
func NewReconcileService(repos *repository.Repositories, fulfillment *FulfillmentService, dispatcher *Dispatcher, notifier Notifier, cfg ReconcileConfig, logger *slog.Logger) *ReconcileService {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &ReconcileService{
		repos:       repos,
		fulfillment: fulfillment,
		dispatcher:  dispatcher,
		notifier:    notifier,
		staleAfter:  cfg.StaleAfter,
		stuckAfter:  cfg.StaleAfter + cfg.ProviderTimeout*time.Duration(attempts),
		logger:      logger.With("component", "reconciler"),
	}
}

// ReconcileResult counts what a sweep did.
type ReconcileResult struct {
	Requeued int `json:"requeued"`
	TimedOut int `json:"timed_out"`
}

// Sweep runs one reconciliation pass.
func (s *ReconcileService) Sweep(ctx context.Context) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	now := time.Now()

	paid, err := s.repos.Stage.ListStale(ctx, models.StageStatusPaid, now.Add(-s.staleAfter), reconcileBatch)
	if err != nil {
		return nil, err
	}
	for _, stage := range paid {
		if err := s.repos.Stage.MarkDispatched(ctx, stage.ID, now); err != nil {
			s.logger.Error("failed to record dispatch", "stage_id", stage.ID, "error", err)
			continue
		}
		s.dispatcher.Dispatch(ctx, stage.ID)
		result.Requeued++
		metrics.ReconcileAction("requeued")
		s.logger.Info("re-enqueued stale paid stage", "stage_id", stage.ID, "updated_at", stage.UpdatedAt)
	}

	stuck, err := s.repos.Stage.ListStale(ctx, models.StageStatusProcessing, now.Add(-s.stuckAfter), reconcileBatch)
	if err != nil {
		return result, err
	}
	for _, stage := range stuck {
		failed, err := s.fulfillment.Fail(ctx, stage.ID, processingTimeoutMsg)
		if errors.Is(err, ErrInvalidTransition) {
			// The worker finished it in the meantime.
			continue
		}
		if err != nil {
			s.logger.Error("failed to time out stuck stage", "stage_id", stage.ID, "error", err)
			continue
		}
		result.TimedOut++
		metrics.ReconcileAction("timed_out")
		if s.notifier != nil {
			s.notifier.StageFinished(ctx, failed)
		}
	}

	if result.Requeued > 0 || result.TimedOut > 0 {
		s.logger.Info("reconcile sweep finished", "requeued", result.Requeued, "timed_out", result.TimedOut)
	}
	return result, nil
}

// RunScheduledSweep runs Sweep immediately and then every interval until ctx is done.
func (s *ReconcileService) RunScheduledSweep(ctx context.Context, interval time.Duration) {
	s.logger.Info("starting scheduled reconcile", "interval", interval.String())

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("initial reconcile failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled reconcile stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("scheduled reconcile failed", "error", err)
			}
		}
	}
}
