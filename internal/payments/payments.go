// Package payments contains the payment gateway clients and the decoding of
// their webhook notifications into a single Notification shape.
package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmylchreest/versery-api/internal/models"
)

// Gateway notification events understood by the ingest path.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
)

var (
	// ErrNotConfigured is returned when a gateway has no credentials.
	ErrNotConfigured = errors.New("payment gateway not configured")

	// ErrInvalidNotification is returned for notification bodies that are
	// missing the event, the payment id or the amount.
	ErrInvalidNotification = errors.New("invalid payment notification")
)

// CreateRequest describes a payment to open with a gateway.
type CreateRequest struct {
	OrderID        string
	StageID        string
	StageType      models.StageType
	Amount         int64 // minor units
	Currency       string
	Description    string
	IdempotencyKey string
	ReturnURL      string
}

// CreateResult is what the gateway returned for a new payment.
type CreateResult struct {
	ExternalID      string
	Status          string
	ConfirmationURL string
	ClientSecret    string
}

// Gateway opens payments with an external provider.
type Gateway interface {
	Name() models.PaymentGateway
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
}

// Notification is a gateway webhook reduced to the fields the ingest path uses.
type Notification struct {
	Event       string
	PaymentID   string
	Status      string
	AmountValue string
	Currency    string
	Metadata    map[string]string
}

// StageID returns the stage id carried in the payment metadata, if any.
func (n *Notification) StageID() string {
	if n.Metadata == nil {
		return ""
	}
	return n.Metadata["stage_id"]
}

// Validate checks the fields every notification must carry.
func (n *Notification) Validate() error {
	switch {
	case n.Event == "":
		return fmt.Errorf("%w: missing event", ErrInvalidNotification)
	case n.PaymentID == "":
		return fmt.Errorf("%w: missing payment id", ErrInvalidNotification)
	case n.AmountValue == "" || n.Currency == "":
		return fmt.Errorf("%w: missing amount", ErrInvalidNotification)
	}
	return nil
}

// FormatAmount renders minor units as a decimal string with two places.
func FormatAmount(minor int64) string {
	return fmt.Sprintf("%.2f", float64(minor)/100)
}

// ParseAmount converts a decimal string like "49.00" to minor units.
func ParseAmount(value string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("invalid amount %q: negative", value)
	}
	return int64(math.Round(f * 100)), nil
}

// IdempotencyKey is the gateway idempotency key for a stage's payment.
func IdempotencyKey(stageID string) string {
	return "pay_" + stageID
}
