package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/versery-api/internal/models"
)

// YooKassa creates payments through the YooKassa v3 REST API.
type YooKassa struct {
	shopID     string
	secretKey  string
	apiURL     string
	returnURL  string
	httpClient *http.Client
}

// NewYooKassa creates a YooKassa client.
func NewYooKassa(shopID, secretKey, apiURL, returnURL string) *YooKassa {
	return &YooKassa{
		shopID:     shopID,
		secretKey:  secretKey,
		apiURL:     strings.TrimRight(apiURL, "/"),
		returnURL:  returnURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (y *YooKassa) Name() models.PaymentGateway {
	return models.PaymentGatewayYooKassa
}

type yooAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yooCreatePayment struct {
	Amount       yooAmount `json:"amount"`
	Confirmation struct {
		Type      string `json:"type"`
		ReturnURL string `json:"return_url"`
	} `json:"confirmation"`
	Capture     bool              `json:"capture"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type yooPayment struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Amount       yooAmount `json:"amount"`
	Confirmation struct {
		Type            string `json:"type"`
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
	Metadata map[string]string `json:"metadata"`
}

func (y *YooKassa) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if y.shopID == "" || y.secretKey == "" {
		return nil, ErrNotConfigured
	}

	var payload yooCreatePayment
	payload.Amount = yooAmount{Value: FormatAmount(req.Amount), Currency: req.Currency}
	payload.Confirmation.Type = "redirect"
	payload.Confirmation.ReturnURL = y.returnURL
	if req.ReturnURL != "" {
		payload.Confirmation.ReturnURL = req.ReturnURL
	}
	payload.Capture = true
	payload.Description = req.Description
	payload.Metadata = map[string]string{
		"order_id":   req.OrderID,
		"stage_id":   req.StageID,
		"stage_type": string(req.StageType),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, y.apiURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	httpReq.SetBasicAuth(y.shopID, y.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", key)

	resp, err := y.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("yookassa request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read yookassa response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yookassa returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var p yooPayment
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, fmt.Errorf("failed to decode yookassa response: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("yookassa response has no payment id")
	}
	return &CreateResult{
		ExternalID:      p.ID,
		Status:          p.Status,
		ConfirmationURL: p.Confirmation.ConfirmationURL,
	}, nil
}

type yooNotification struct {
	Type   string     `json:"type"`
	Event  string     `json:"event"`
	Object yooPayment `json:"object"`
}

// DecodeYooKassaNotification parses a YooKassa webhook body.
func DecodeYooKassaNotification(body []byte) (*Notification, error) {
	var raw yooNotification
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	n := &Notification{
		Event:       raw.Event,
		PaymentID:   raw.Object.ID,
		Status:      raw.Object.Status,
		AmountValue: raw.Object.Amount.Value,
		Currency:    raw.Object.Amount.Currency,
		Metadata:    raw.Object.Metadata,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// yooKassaNetworks are the published source ranges for YooKassa webhooks.
var yooKassaNetworks = []netip.Prefix{
	netip.MustParsePrefix("185.71.76.0/27"),
	netip.MustParsePrefix("185.71.77.0/27"),
	netip.MustParsePrefix("77.75.153.0/25"),
	netip.MustParsePrefix("77.75.156.11/32"),
	netip.MustParsePrefix("77.75.156.35/32"),
	netip.MustParsePrefix("77.75.154.128/25"),
	netip.MustParsePrefix("2a02:5180::/32"),
}

// IsYooKassaIP reports whether ip belongs to a YooKassa webhook network.
func IsYooKassaIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range yooKassaNetworks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
