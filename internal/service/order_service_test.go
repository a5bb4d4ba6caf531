package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/payments"
)

func TestOrderService_CreateOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   CreateOrderInput
		wantErr error
	}{
		{
			name:  "poem with context",
			input: CreateOrderInput{CustomerID: "tg:1", Context: []byte(`{"occasion":"свадьба"}`)},
		},
		{
			name:  "empty context",
			input: CreateOrderInput{CustomerID: "tg:1", Product: "POEM"},
		},
		{
			name:    "missing customer",
			input:   CreateOrderInput{},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "context not an object",
			input:   CreateOrderInput{CustomerID: "tg:1", Context: []byte(`["a"]`)},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "voice cannot start an order",
			input:   CreateOrderInput{CustomerID: "tg:1", Product: "voice"},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, stage, err := h.orders.CreateOrder(ctx, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("CreateOrder() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateOrder() error = %v", err)
			}
			if order.Status != models.OrderStatusPending {
				t.Errorf("order status = %s, want PENDING", order.Status)
			}
			if stage.Type != models.StageTypePoem || stage.Status != models.StageStatusPending {
				t.Errorf("stage = %s/%s, want POEM/PENDING", stage.Type, stage.Status)
			}
			if stage.Price != 4900 {
				t.Errorf("price = %d, want 4900", stage.Price)
			}
		})
	}
}

func TestOrderService_PriceFromSettings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.repos.Settings.UpsertProduct(ctx, &models.ProductConfig{Code: ProductPoem, Title: "Стих", Price: 9900, IsActive: true}); err != nil {
		t.Fatalf("UpsertProduct() error = %v", err)
	}
	_, stage, err := h.orders.CreateOrder(ctx, CreateOrderInput{CustomerID: "tg:1"})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if stage.Price != 9900 {
		t.Errorf("price = %d, want 9900", stage.Price)
	}

	if err := h.repos.Settings.UpsertProduct(ctx, &models.ProductConfig{Code: ProductPoem, Title: "Стих", Price: 9900, IsActive: false}); err != nil {
		t.Fatalf("UpsertProduct() error = %v", err)
	}
	if _, _, err := h.orders.CreateOrder(ctx, CreateOrderInput{CustomerID: "tg:1"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("CreateOrder() for inactive product error = %v, want ErrInvalidInput", err)
	}
}

func TestOrderService_StartPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stage, payment := h.newPendingOrder(t)

	if payment.Status != models.PaymentStatusPending {
		t.Errorf("payment status = %s, want PENDING", payment.Status)
	}
	if payment.IdempotencyKey != payments.IdempotencyKey(stage.ID) {
		t.Errorf("IdempotencyKey = %q", payment.IdempotencyKey)
	}
	if payment.ConfirmationURL == "" {
		t.Error("ConfirmationURL is empty")
	}
	req := h.gateway.requests[0]
	if req.Amount != stage.Price || req.Currency != "RUB" || req.StageID != stage.ID {
		t.Errorf("gateway request = %+v", req)
	}

	again, err := h.orders.StartPayment(ctx, stage.ID, "")
	if err != nil {
		t.Fatalf("second StartPayment() error = %v", err)
	}
	if again.ExternalID != payment.ExternalID {
		t.Errorf("second StartPayment() opened %s, want reuse of %s", again.ExternalID, payment.ExternalID)
	}
	if len(h.gateway.requests) != 1 {
		t.Errorf("gateway called %d times, want 1", len(h.gateway.requests))
	}

	if _, err := h.orders.StartPayment(ctx, stage.ID, models.PaymentGatewayStripe); err != nil {
		// The pending payment is returned before the gateway is looked up.
		t.Errorf("StartPayment(stripe) with pending payment error = %v", err)
	}
}

func TestOrderService_StartPaymentRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orders.StartPayment(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("StartPayment(missing) error = %v, want ErrNotFound", err)
	}

	paid := h.newPaidStage(t)
	if _, err := h.orders.StartPayment(ctx, paid.ID, ""); !errors.Is(err, ErrInvalidTransition) || !strings.Contains(err.Error(), "already paid") {
		t.Errorf("StartPayment(paid) error = %v, want ErrInvalidTransition (already paid)", err)
	}

	_, stage, err := h.orders.CreateOrder(ctx, CreateOrderInput{CustomerID: "tg:2"})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if _, err := h.orders.StartPayment(ctx, stage.ID, models.PaymentGatewayStripe); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("StartPayment(unconfigured gateway) error = %v, want ErrInvalidInput", err)
	}
}

func TestOrderService_AddVoiceStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.configure(t, models.StageTypePoem)
	poem := h.newPaidStage(t)

	if _, err := h.orders.AddVoiceStage(ctx, poem.OrderID); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("AddVoiceStage() before poem error = %v, want ErrInvalidInput", err)
	}

	if err := h.generation.Process(ctx, poem.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	voice, err := h.orders.AddVoiceStage(ctx, poem.OrderID)
	if err != nil {
		t.Fatalf("AddVoiceStage() error = %v", err)
	}
	if voice.Type != models.StageTypeVoice || voice.Price != 9900 {
		t.Errorf("voice stage = %s price %d, want VOICE 9900", voice.Type, voice.Price)
	}

	again, err := h.orders.AddVoiceStage(ctx, poem.OrderID)
	if err != nil {
		t.Fatalf("second AddVoiceStage() error = %v", err)
	}
	if again.ID != voice.ID {
		t.Errorf("second AddVoiceStage() created %s, want %s", again.ID, voice.ID)
	}
}

func TestOrderService_CreateOrderIsAtomic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order, stage, err := h.orders.CreateOrder(ctx, CreateOrderInput{CustomerID: "tg:3"})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	stages, err := h.repos.Stage.ListByOrder(ctx, order.ID)
	if err != nil || len(stages) != 1 || stages[0].ID != stage.ID {
		t.Fatalf("ListByOrder() = %v, %v; want [%s]", stages, err, stage.ID)
	}

	// Make every stage insert fail; the order insert before it must roll back.
	if _, err := h.db.Exec(`CREATE TRIGGER refuse_stage BEFORE INSERT ON stages
		BEGIN SELECT RAISE(ABORT, 'stage insert refused'); END`); err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}
	if _, _, err := h.orders.CreateOrder(ctx, CreateOrderInput{CustomerID: "tg:4"}); err == nil {
		t.Fatal("CreateOrder() succeeded with stage inserts refused")
	}
	orders, err := h.repos.Order.ListByCustomer(ctx, "tg:4", 10)
	if err != nil {
		t.Fatalf("ListByCustomer() error = %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("orders for tg:4 = %d, want 0 after rollback", len(orders))
	}
}

// replayGateway returns the same external id for every call, like a gateway
// honouring a reused idempotency key.
type replayGateway struct{ fakeGateway }

func (g *replayGateway) CreatePayment(ctx context.Context, req payments.CreateRequest) (*payments.CreateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return &payments.CreateResult{ExternalID: "ext-replayed", Status: "pending", ConfirmationURL: "https://pay.test/replayed"}, nil
}

func TestOrderService_StartPaymentRecordedConcurrently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gw := &replayGateway{}
	orders := NewOrderService(h.repos, OrderServiceConfig{
		Currency:         "RUB",
		DefaultPoemPrice: 4900,
		Gateways:         []payments.Gateway{gw},
	}, testLogger())

	_, stage, err := orders.CreateOrder(ctx, CreateOrderInput{CustomerID: "tg:5"})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}

	// Another request recorded the gateway's payment between our lookup and insert.
	if err := h.repos.Payment.Create(ctx, &models.Payment{
		OrderID:        stage.OrderID,
		StageID:        stage.ID,
		ExternalID:     "ext-replayed",
		IdempotencyKey: payments.IdempotencyKey(stage.ID),
		Amount:         stage.Price,
		Currency:       "RUB",
		Status:         models.PaymentStatusCanceled,
	}); err != nil {
		t.Fatalf("Payment.Create() error = %v", err)
	}

	got, err := orders.StartPayment(ctx, stage.ID, "")
	if err != nil {
		t.Fatalf("StartPayment() error = %v, want the recorded payment", err)
	}
	if got.ExternalID != "ext-replayed" {
		t.Errorf("StartPayment() = %s, want ext-replayed", got.ExternalID)
	}
}
