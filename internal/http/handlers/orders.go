package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/service"
)

// OrderIntake creates orders, stages and payments.
type OrderIntake interface {
	CreateOrder(ctx context.Context, input service.CreateOrderInput) (*models.Order, *models.Stage, error)
	AddVoiceStage(ctx context.Context, orderID string) (*models.Stage, error)
	StartPayment(ctx context.Context, stageID string, gateway models.PaymentGateway) (*models.Payment, error)
}

// StatusReader answers order and stage polling.
type StatusReader interface {
	GetOrder(ctx context.Context, orderID string) (*service.OrderStatus, error)
	GetStageArtifact(ctx context.Context, stageID string) (*service.StageArtifact, error)
	ListCustomerOrders(ctx context.Context, customerID string) ([]service.OrderSummary, error)
}

// OrderHandler serves the customer-facing order endpoints.
type OrderHandler struct {
	orders OrderIntake
	status StatusReader
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orders OrderIntake, status StatusReader) *OrderHandler {
	return &OrderHandler{orders: orders, status: status}
}

// CreateOrderInput is the request to open an order.
type CreateOrderInput struct {
	Body struct {
		CustomerID string         `json:"customer_id" minLength:"1" maxLength:"128" doc:"Caller-side customer identifier"`
		Product    string         `json:"product,omitempty" doc:"Product code of the first stage" default:"poem"`
		Context    map[string]any `json:"context,omitempty" doc:"Free-form answers used to build the prompt (occasion, recipient, details, style)"`
	}
}

// CreateOrderOutput is the created order with its first stage.
type CreateOrderOutput struct {
	Body struct {
		OrderID string             `json:"order_id"`
		Status  models.OrderStatus `json:"status"`
		Stage   service.StageView  `json:"stage"`
	}
}

// CreateOrder opens a PENDING order with a priced POEM stage.
func (h *OrderHandler) CreateOrder(ctx context.Context, input *CreateOrderInput) (*CreateOrderOutput, error) {
	var raw json.RawMessage
	if input.Body.Context != nil {
		b, err := json.Marshal(input.Body.Context)
		if err != nil {
			return nil, huma.Error400BadRequest("context must be a JSON object")
		}
		raw = b
	}

	order, stage, err := h.orders.CreateOrder(ctx, service.CreateOrderInput{
		CustomerID: input.Body.CustomerID,
		Product:    input.Body.Product,
		Context:    raw,
	})
	if err != nil {
		return nil, toHTTPError(err, "failed to create order")
	}

	out := &CreateOrderOutput{}
	out.Body.OrderID = order.ID
	out.Body.Status = order.Status
	out.Body.Stage = service.NewStageView(stage)
	return out, nil
}

// GetOrderInput identifies an order.
type GetOrderInput struct {
	ID string `path:"id" doc:"Order ID"`
}

// GetOrderOutput is an order with its stages and artifacts.
type GetOrderOutput struct {
	Body service.OrderStatus
}

// GetOrder returns the public status of an order.
func (h *OrderHandler) GetOrder(ctx context.Context, input *GetOrderInput) (*GetOrderOutput, error) {
	status, err := h.status.GetOrder(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(err, "failed to get order")
	}
	return &GetOrderOutput{Body: *status}, nil
}

// ListCustomerOrdersInput identifies a customer.
type ListCustomerOrdersInput struct {
	CustomerID string `path:"customer_id" minLength:"1" maxLength:"128" doc:"Caller-side customer identifier"`
}

// ListCustomerOrdersOutput is a customer's recent orders.
type ListCustomerOrdersOutput struct {
	Body struct {
		Orders []service.OrderSummary `json:"orders"`
	}
}

// ListCustomerOrders returns a customer's most recent orders, newest first.
func (h *OrderHandler) ListCustomerOrders(ctx context.Context, input *ListCustomerOrdersInput) (*ListCustomerOrdersOutput, error) {
	orders, err := h.status.ListCustomerOrders(ctx, input.CustomerID)
	if err != nil {
		return nil, toHTTPError(err, "failed to list orders")
	}
	out := &ListCustomerOrdersOutput{}
	out.Body.Orders = orders
	if out.Body.Orders == nil {
		out.Body.Orders = []service.OrderSummary{}
	}
	return out, nil
}

// StartPaymentInput opens a payment for a stage.
type StartPaymentInput struct {
	ID   string `path:"id" doc:"Stage ID"`
	Body struct {
		Gateway string `json:"gateway,omitempty" enum:"yookassa,stripe" doc:"Payment gateway; the configured default is used when empty"`
	} `required:"false"`
}

// PaymentResponse is the public shape of a payment.
type PaymentResponse struct {
	PaymentID       string                `json:"payment_id"`
	StageID         string                `json:"stage_id"`
	Gateway         models.PaymentGateway `json:"gateway"`
	Status          models.PaymentStatus  `json:"status"`
	Amount          int64                 `json:"amount" doc:"Amount in minor currency units"`
	Currency        string                `json:"currency"`
	ConfirmationURL string                `json:"confirmation_url,omitempty" doc:"Redirect URL (YooKassa) or client secret (Stripe)"`
	CreatedAt       time.Time             `json:"created_at"`
}

// StartPaymentOutput wraps the payment.
type StartPaymentOutput struct {
	Body PaymentResponse
}

// StartPayment opens or returns the pending payment for a stage.
func (h *OrderHandler) StartPayment(ctx context.Context, input *StartPaymentInput) (*StartPaymentOutput, error) {
	p, err := h.orders.StartPayment(ctx, input.ID, models.PaymentGateway(input.Body.Gateway))
	if err != nil {
		return nil, toHTTPError(err, "failed to start payment")
	}
	return &StartPaymentOutput{Body: PaymentResponse{
		PaymentID:       p.ExternalID,
		StageID:         p.StageID,
		Gateway:         p.Gateway,
		Status:          p.Status,
		Amount:          p.Amount,
		Currency:        p.Currency,
		ConfirmationURL: p.ConfirmationURL,
		CreatedAt:       p.CreatedAt,
	}}, nil
}

// GetStageArtifactInput identifies a stage.
type GetStageArtifactInput struct {
	ID string `path:"id" doc:"Stage ID"`
}

// GetStageArtifactOutput is the polling answer for a stage.
type GetStageArtifactOutput struct {
	Body service.StageArtifact
}

// GetStageArtifact reports whether a stage's artifact is ready.
func (h *OrderHandler) GetStageArtifact(ctx context.Context, input *GetStageArtifactInput) (*GetStageArtifactOutput, error) {
	res, err := h.status.GetStageArtifact(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(err, "failed to get stage artifact")
	}
	return &GetStageArtifactOutput{Body: *res}, nil
}

// AddVoiceStageInput identifies the order to extend.
type AddVoiceStageInput struct {
	ID string `path:"id" doc:"Order ID"`
}

// AddVoiceStageOutput is the new (or existing) voice stage.
type AddVoiceStageOutput struct {
	Body service.StageView
}

// AddVoiceStage adds a VOICE stage to an order with a finished poem.
func (h *OrderHandler) AddVoiceStage(ctx context.Context, input *AddVoiceStageInput) (*AddVoiceStageOutput, error) {
	stage, err := h.orders.AddVoiceStage(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(err, "failed to add voice stage")
	}
	return &AddVoiceStageOutput{Body: service.NewStageView(stage)}, nil
}
