package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/jmylchreest/versery-api/internal/logging"
	"github.com/jmylchreest/versery-api/internal/payments"
	"github.com/jmylchreest/versery-api/internal/service"
)

type recordingEvents struct {
	mu   sync.Mutex
	seen []*payments.Notification
	err  error
}

func (r *recordingEvents) HandleNotification(ctx context.Context, n *payments.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
	return r.err
}

const yooKassaBody = `{
	"type": "notification",
	"event": "payment.succeeded",
	"object": {
		"id": "2c5e1b2a-000f-5000-9000-1b6e2f0e4a11",
		"status": "succeeded",
		"amount": {"value": "49.00", "currency": "RUB"},
		"metadata": {"stage_id": "01JSTAGE"}
	}
}`

func postWebhook(h http.HandlerFunc, body []byte, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/test", bytes.NewReader(body))
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestPaymentWebhook_YooKassa(t *testing.T) {
	events := &recordingEvents{}
	h := NewPaymentWebhookHandler(events, PaymentWebhookConfig{}, logging.Discard())

	rec := postWebhook(h.HandleYooKassa, []byte(yooKassaBody), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(events.seen) != 1 {
		t.Fatalf("notifications = %d, want 1", len(events.seen))
	}
	n := events.seen[0]
	if n.Event != payments.EventPaymentSucceeded || n.PaymentID != "2c5e1b2a-000f-5000-9000-1b6e2f0e4a11" {
		t.Errorf("notification = %+v", n)
	}
	if n.StageID() != "01JSTAGE" || n.AmountValue != "49.00" || n.Currency != "RUB" {
		t.Errorf("notification = %+v", n)
	}
}

func TestPaymentWebhook_YooKassaRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"event":`},
		{"missing event", `{"object":{"id":"p1","amount":{"value":"49.00","currency":"RUB"}}}`},
		{"missing object id", `{"event":"payment.succeeded","object":{"amount":{"value":"49.00","currency":"RUB"}}}`},
		{"missing amount", `{"event":"payment.succeeded","object":{"id":"p1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &recordingEvents{}
			h := NewPaymentWebhookHandler(events, PaymentWebhookConfig{}, logging.Discard())

			rec := postWebhook(h.HandleYooKassa, []byte(tt.body), "", nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(events.seen) != 0 {
				t.Error("malformed notification reached the ingest service")
			}
		})
	}
}

func TestPaymentWebhook_YooKassaBodyLimit(t *testing.T) {
	events := &recordingEvents{}
	h := NewPaymentWebhookHandler(events, PaymentWebhookConfig{}, logging.Discard())

	body := `{"event":"payment.succeeded","pad":"` + strings.Repeat("x", maxWebhookBodySize) + `"}`
	rec := postWebhook(h.HandleYooKassa, []byte(body), "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(events.seen) != 0 {
		t.Error("oversized body reached the ingest service")
	}
}

func TestPaymentWebhook_YooKassaSourceIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       int
	}{
		{"published network", "185.71.76.10:443", http.StatusOK},
		{"proxied address without port", "77.75.156.11", http.StatusOK},
		{"unknown network", "203.0.113.7:5555", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &recordingEvents{}
			h := NewPaymentWebhookHandler(events, PaymentWebhookConfig{VerifyYooKassaIP: true}, logging.Discard())

			rec := postWebhook(h.HandleYooKassa, []byte(yooKassaBody), tt.remoteAddr, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestPaymentWebhook_ServiceErrorStillAcknowledged(t *testing.T) {
	for _, err := range []error{service.ErrCurrencyMismatch, service.ErrStageCancelled, errors.New("database is locked")} {
		t.Run(err.Error(), func(t *testing.T) {
			events := &recordingEvents{err: err}
			h := NewPaymentWebhookHandler(events, PaymentWebhookConfig{}, logging.Discard())

			rec := postWebhook(h.HandleYooKassa, []byte(yooKassaBody), "", nil)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		})
	}
}

func signedStripeEvent(t *testing.T, eventType, secret string) ([]byte, http.Header) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":       "pi_1",
				"object":   "payment_intent",
				"amount":   4900,
				"currency": "rub",
				"status":   "succeeded",
				"metadata": map[string]string{"stage_id": "01JSTAGE"},
			},
		},
	})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	header := http.Header{}
	header.Set("Stripe-Signature", signed.Header)
	return signed.Payload, header
}

func TestPaymentWebhook_Stripe(t *testing.T) {
	const secret = "whsec_test"

	t.Run("payment intent succeeded", func(t *testing.T) {
		events := &recordingEvents{}
		h := NewPaymentWebhookHandler(events, PaymentWebhookConfig{StripeWebhookSecret: secret}, logging.Discard())

		body, header := signedStripeEvent(t, "payment_intent.succeeded", secret)
		rec := postWebhook(h.HandleStripe, body, "", header)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if len(events.seen) != 1 {
			t.Fatalf("notifications = %d, want 1", len(events.seen))
		}
		n := events.seen[0]
		if n.Event != payments.EventPaymentSucceeded || n.PaymentID != "pi_1" || n.Currency != "RUB" || n.AmountValue != "49.00" {
			t.Errorf("notification = %+v", n)
		}
	})

	t.Run("unhandled event type", func(t *testing.T) {
		events := &recordingEvents{}
		h := NewPaymentWebhookHandler(events, PaymentWebhookConfig{StripeWebhookSecret: secret}, logging.Discard())

		body, header := signedStripeEvent(t, "charge.refunded", secret)
		rec := postWebhook(h.HandleStripe, body, "", header)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if len(events.seen) != 0 {
			t.Error("unhandled event reached the ingest service")
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		events := &recordingEvents{}
		h := NewPaymentWebhookHandler(events, PaymentWebhookConfig{StripeWebhookSecret: secret}, logging.Discard())

		body, header := signedStripeEvent(t, "payment_intent.succeeded", "whsec_other")
		rec := postWebhook(h.HandleStripe, body, "", header)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		if len(events.seen) != 0 {
			t.Error("unverified event reached the ingest service")
		}
	})
}
