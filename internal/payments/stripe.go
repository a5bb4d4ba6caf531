package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/jmylchreest/versery-api/internal/models"
)

// Stripe opens PaymentIntents. Its webhook events are translated into the
// same Notification shape as YooKassa's.
type Stripe struct {
	api *client.API
}

// NewStripe creates a Stripe gateway. backends may be nil to use the public API.
func NewStripe(secretKey string, backends *stripe.Backends) *Stripe {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Stripe{api: api}
}

func (s *Stripe) Name() models.PaymentGateway {
	return models.PaymentGatewayStripe
}

func (s *Stripe) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("stage_id", req.StageID)
	params.AddMetadata("stage_type", string(req.StageType))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to create payment intent: %w", err)
	}
	return &CreateResult{
		ExternalID:   pi.ID,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
	}, nil
}

// DecodeStripeEvent verifies a Stripe webhook signature and translates
// payment_intent events. It returns (nil, nil) for event types the ingest
// path does not handle.
func DecodeStripeEvent(payload []byte, signature, secret string) (*Notification, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("stripe: %w", err)
	}

	var kind string
	switch event.Type {
	case "payment_intent.succeeded":
		kind = EventPaymentSucceeded
	case "payment_intent.canceled":
		kind = EventPaymentCanceled
	default:
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	n := &Notification{
		Event:       kind,
		PaymentID:   pi.ID,
		Status:      string(pi.Status),
		AmountValue: FormatAmount(pi.Amount),
		Currency:    strings.ToUpper(string(pi.Currency)),
		Metadata:    pi.Metadata,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}
