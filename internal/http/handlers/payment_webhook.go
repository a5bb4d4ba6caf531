package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/jmylchreest/versery-api/internal/metrics"
	"github.com/jmylchreest/versery-api/internal/payments"
	"github.com/jmylchreest/versery-api/internal/service"
)

const maxWebhookBodySize = 65536 // 64KB

// NotificationHandler applies a decoded payment notification.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, n *payments.Notification) error
}

// PaymentWebhookConfig holds gateway webhook settings.
type PaymentWebhookConfig struct {
	// VerifyYooKassaIP rejects YooKassa notifications from outside the
	// published source networks.
	VerifyYooKassaIP    bool
	StripeWebhookSecret string
}

// PaymentWebhookHandler receives payment gateway notifications.
// These are raw HTTP handlers since the body must be read before decoding.
type PaymentWebhookHandler struct {
	events NotificationHandler
	cfg    PaymentWebhookConfig
	logger *slog.Logger
}

// NewPaymentWebhookHandler creates a new payment webhook handler.
func NewPaymentWebhookHandler(events NotificationHandler, cfg PaymentWebhookConfig, logger *slog.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		events: events,
		cfg:    cfg,
		logger: logger.With("component", "webhook"),
	}
}

// HandleYooKassa processes a YooKassa notification.
func (h *PaymentWebhookHandler) HandleYooKassa(w http.ResponseWriter, r *http.Request) {
	if h.cfg.VerifyYooKassaIP {
		ip := remoteIP(r)
		if !payments.IsYooKassaIP(ip) {
			h.logger.Warn("rejected webhook from unknown address", "gateway", "yookassa", "remote_ip", ip)
			metrics.WebhookEvent("unknown", "forbidden")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}

	n, err := payments.DecodeYooKassaNotification(payload)
	if err != nil {
		h.logger.Warn("invalid webhook body", "gateway", "yookassa", "error", err)
		metrics.WebhookEvent("unknown", "invalid")
		http.Error(w, "invalid notification", http.StatusBadRequest)
		return
	}

	h.apply(r.Context(), "yookassa", n)
	w.WriteHeader(http.StatusOK)
}

// HandleStripe processes a Stripe webhook. Only payment_intent events reach
// the ingest path; everything else is acknowledged and dropped.
func (h *PaymentWebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}

	n, err := payments.DecodeStripeEvent(payload, r.Header.Get("Stripe-Signature"), h.cfg.StripeWebhookSecret)
	if err != nil {
		h.logger.Warn("failed to verify webhook", "gateway", "stripe", "error", err)
		metrics.WebhookEvent("unknown", "invalid")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	if n == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	h.apply(r.Context(), "stripe", n)
	w.WriteHeader(http.StatusOK)
}

func (h *PaymentWebhookHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}
	return payload, true
}

// apply hands the notification to the ingest service. Errors are logged but
// the gateway still gets 200: the state change either happened, cannot
// happen, or will be recovered by the reconcile sweep.
func (h *PaymentWebhookHandler) apply(ctx context.Context, gateway string, n *payments.Notification) {
	log := h.logger.With("gateway", gateway, "event", n.Event, "payment_id", n.PaymentID)
	err := h.events.HandleNotification(ctx, n)
	switch {
	case err == nil:
		log.Debug("webhook handled")
	case errors.Is(err, service.ErrCurrencyMismatch), errors.Is(err, service.ErrStageCancelled):
		log.Warn("webhook not applied", "error", err)
	default:
		log.Error("failed to handle webhook", "error", err)
	}
}

// remoteIP returns the client address. middleware.RealIP has already
// replaced RemoteAddr when a proxy header was present.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
