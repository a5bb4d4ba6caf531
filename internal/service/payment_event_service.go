package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/versery-api/internal/metrics"
	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/payments"
	"github.com/jmylchreest/versery-api/internal/repository"
)

// PaymentEventService applies gateway notifications. It is safe to call any
// number of times with the same notification.
type PaymentEventService struct {
	repos       *repository.Repositories
	fulfillment *FulfillmentService
	dispatcher  *Dispatcher
	currency    string
	logger      *slog.Logger
}

// NewPaymentEventService creates a new payment event service. Only payments
// in currency are accepted.
func NewPaymentEventService(repos *repository.Repositories, fulfillment *FulfillmentService, dispatcher *Dispatcher, currency string, logger *slog.Logger) *PaymentEventService {
	return &PaymentEventService{
		repos:       repos,
		fulfillment: fulfillment,
		dispatcher:  dispatcher,
		currency:    strings.ToUpper(currency),
		logger:      logger.With("component", "webhook"),
	}
}

// HandleNotification processes one decoded notification.
//
// Unknown payments and unhandled events return nil so the gateway stops
// retrying. ErrCurrencyMismatch and ErrStageCancelled are returned for the
// caller to log; neither changes stage state.
func (s *PaymentEventService) HandleNotification(ctx context.Context, n *payments.Notification) error {
	if n == nil {
		return nil
	}
	log := s.logger.With("event", n.Event, "payment_id", n.PaymentID)

	switch n.Event {
	case payments.EventPaymentSucceeded:
		return s.handleSucceeded(ctx, n, log)
	case payments.EventPaymentCanceled:
		return s.handleCanceled(ctx, n, log)
	}

	log.Debug("ignoring payment event")
	metrics.WebhookEvent(n.Event, "ignored")
	return nil
}

func (s *PaymentEventService) handleSucceeded(ctx context.Context, n *payments.Notification, log *slog.Logger) error {
	payment, err := s.repos.Payment.GetByExternalID(ctx, n.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil {
		log.Warn("notification for unknown payment")
		metrics.WebhookEvent(n.Event, "unknown_payment")
		return nil
	}

	if !strings.EqualFold(n.Currency, s.currency) {
		log.Error("payment currency mismatch", "currency", n.Currency, "expected", s.currency)
		metrics.WebhookEvent(n.Event, "currency_mismatch")
		return fmt.Errorf("%w: got %s, want %s", ErrCurrencyMismatch, n.Currency, s.currency)
	}

	if amount, err := payments.ParseAmount(n.AmountValue); err != nil {
		log.Warn("notification amount unparseable", "amount", n.AmountValue, "error", err)
	} else if amount != payment.Amount {
		log.Warn("payment amount differs from recorded amount", "amount", amount, "expected", payment.Amount)
	}

	if payment.Status == models.PaymentStatusSucceeded {
		log.Debug("payment already succeeded")
		metrics.WebhookEvent(n.Event, "duplicate")
		return nil
	}

	// A stage id in the metadata must name the stage the payment was opened for.
	stageID := n.StageID()
	if stageID == "" {
		stageID = payment.StageID
	}

	applied, err := s.fulfillment.MarkPaid(ctx, stageID, payment.ExternalID)
	if err != nil {
		switch {
		case errors.Is(err, ErrStageCancelled):
			metrics.WebhookEvent(n.Event, "stage_cancelled")
		case errors.Is(err, ErrInvalidTransition):
			log.Error("payment metadata names another stage", "metadata_stage_id", stageID, "stage_id", payment.StageID)
			metrics.WebhookEvent(n.Event, "stage_mismatch")
		default:
			metrics.WebhookEvent(n.Event, "error")
		}
		return err
	}
	if !applied {
		metrics.WebhookEvent(n.Event, "duplicate")
		return nil
	}

	metrics.WebhookEvent(n.Event, "applied")
	log.Info("payment applied", "stage_id", payment.StageID, "order_id", payment.OrderID)
	s.dispatcher.Dispatch(ctx, payment.StageID)
	return nil
}

func (s *PaymentEventService) handleCanceled(ctx context.Context, n *payments.Notification, log *slog.Logger) error {
	changed, err := s.repos.Payment.MarkCanceled(ctx, n.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to cancel payment: %w", err)
	}
	if changed {
		log.Info("payment canceled")
		metrics.WebhookEvent(n.Event, "applied")
	} else {
		metrics.WebhookEvent(n.Event, "ignored")
	}
	return nil
}
