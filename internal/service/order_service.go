package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/payments"
	"github.com/jmylchreest/versery-api/internal/repository"
)

// Product codes.
const (
	ProductPoem  = "poem"
	ProductVoice = "voice"
)

// OrderService handles order intake and payment start.
type OrderService struct {
	repos          *repository.Repositories
	gateways       map[models.PaymentGateway]payments.Gateway
	defaultGateway models.PaymentGateway
	currency       string
	defaultPrice   int64
	logger         *slog.Logger
}

// OrderServiceConfig holds OrderService settings.
type OrderServiceConfig struct {
	Currency         string
	DefaultPoemPrice int64
	// Gateways in order of preference. The first one is used when a request
	// does not name a gateway.
	Gateways []payments.Gateway
}

// NewOrderService creates a new order service.
func NewOrderService(repos *repository.Repositories, cfg OrderServiceConfig, logger *slog.Logger) *OrderService {
	s := &OrderService{
		repos:        repos,
		gateways:     make(map[models.PaymentGateway]payments.Gateway),
		currency:     strings.ToUpper(cfg.Currency),
		defaultPrice: cfg.DefaultPoemPrice,
		logger:       logger,
	}
	for _, g := range cfg.Gateways {
		if g == nil {
			continue
		}
		if s.defaultGateway == "" {
			s.defaultGateway = g.Name()
		}
		s.gateways[g.Name()] = g
	}
	return s
}

// CreateOrderInput is a new order request.
type CreateOrderInput struct {
	CustomerID string
	Product    string
	Context    json.RawMessage
}

// CreateOrder creates a PENDING order with its first stage priced from the
// product configuration.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, *models.Stage, error) {
	if strings.TrimSpace(input.CustomerID) == "" {
		return nil, nil, fmt.Errorf("%w: customer_id is required", ErrInvalidInput)
	}
	product := strings.ToLower(strings.TrimSpace(input.Product))
	if product == "" {
		product = ProductPoem
	}
	if product != ProductPoem {
		return nil, nil, fmt.Errorf("%w: orders start with a poem, got %q", ErrInvalidInput, product)
	}

	orderContext := input.Context
	if len(orderContext) == 0 {
		orderContext = json.RawMessage(`{}`)
	}
	var fields map[string]any
	if err := json.Unmarshal(orderContext, &fields); err != nil {
		return nil, nil, fmt.Errorf("%w: context must be a JSON object", ErrInvalidInput)
	}

	price, err := s.price(ctx, product)
	if err != nil {
		return nil, nil, err
	}

	order := &models.Order{CustomerID: input.CustomerID, Context: orderContext}
	stage := &models.Stage{
		Type:  models.StageTypePoem,
		Price: price,
		Input: orderContext,
	}
	if err := s.repos.Order.CreateWithStage(ctx, order, stage); err != nil {
		return nil, nil, err
	}

	s.logger.Info("order created", "order_id", order.ID, "stage_id", stage.ID, "price", price)
	return order, stage, nil
}

// AddVoiceStage adds a VOICE stage to an order whose poem is ready.
func (s *OrderService) AddVoiceStage(ctx context.Context, orderID string) (*models.Stage, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: order %s", ErrStageCancelled, orderID)
	}

	text, err := s.repos.Artifact.LatestByOrderAndType(ctx, orderID, models.ArtifactTypeText)
	if err != nil {
		return nil, err
	}
	if text == nil {
		return nil, fmt.Errorf("%w: order %s has no poem yet", ErrInvalidInput, orderID)
	}

	stages, err := s.repos.Stage.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, st := range stages {
		if st.Type == models.StageTypeVoice && st.Status != models.StageStatusCancelled {
			return st, nil
		}
	}

	price, err := s.price(ctx, ProductVoice)
	if err != nil {
		return nil, err
	}
	stage := &models.Stage{OrderID: orderID, Type: models.StageTypeVoice, Price: price}
	if err := s.repos.Stage.Create(ctx, stage); err != nil {
		return nil, fmt.Errorf("failed to create stage: %w", err)
	}
	s.logger.Info("voice stage added", "order_id", orderID, "stage_id", stage.ID, "price", price)
	return stage, nil
}

// StartPayment opens a gateway payment for a PENDING stage. A stage that
// already has a PENDING payment gets that payment back.
func (s *OrderService) StartPayment(ctx context.Context, stageID string, gateway models.PaymentGateway) (*models.Payment, error) {
	stage, err := s.repos.Stage.GetByID(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, fmt.Errorf("%w: stage %s", ErrNotFound, stageID)
	}
	switch {
	case stage.Status.IsPaidOrBeyond():
		return nil, fmt.Errorf("%w: stage %s is already paid (%s)", ErrInvalidTransition, stageID, stage.Status)
	case stage.Status != models.StageStatusPending:
		return nil, fmt.Errorf("%w: stage %s is %s", ErrInvalidTransition, stageID, stage.Status)
	}

	if existing, err := s.repos.Payment.GetPendingByStage(ctx, stageID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	// A canceled payment leaves the stage payable again. The gateway would
	// replay the canceled payment for a reused key, so later attempts get a suffix.
	previous, err := s.repos.Payment.ListByStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	key := payments.IdempotencyKey(stage.ID)
	if len(previous) > 0 {
		key = fmt.Sprintf("%s_%d", key, len(previous)+1)
	}

	if gateway == "" {
		gateway = s.defaultGateway
	}
	gw, ok := s.gateways[gateway]
	if !ok {
		return nil, fmt.Errorf("%w: payment gateway %q not configured", ErrInvalidInput, gateway)
	}

	res, err := gw.CreatePayment(ctx, payments.CreateRequest{
		OrderID:        stage.OrderID,
		StageID:        stage.ID,
		StageType:      stage.Type,
		Amount:         stage.Price,
		Currency:       s.currency,
		Description:    fmt.Sprintf("Оплата этапа %s для заказа %s", stage.Type, stage.OrderID),
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	confirmation := res.ConfirmationURL
	if confirmation == "" {
		confirmation = res.ClientSecret
	}
	payment := &models.Payment{
		OrderID:         stage.OrderID,
		StageID:         stage.ID,
		ExternalID:      res.ExternalID,
		IdempotencyKey:  key,
		Gateway:         gw.Name(),
		Amount:          stage.Price,
		Currency:        s.currency,
		ConfirmationURL: confirmation,
	}
	if err := s.repos.Payment.Create(ctx, payment); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("failed to record payment: %w", err)
		}
		// A concurrent call with the same idempotency key recorded it first.
		existing, gerr := s.repos.Payment.GetByExternalID(ctx, res.ExternalID)
		if gerr != nil || existing == nil {
			return nil, fmt.Errorf("failed to record payment: %w", err)
		}
		return existing, nil
	}

	s.logger.Info("payment started",
		"stage_id", stage.ID,
		"payment_id", payment.ExternalID,
		"gateway", payment.Gateway,
		"amount", payment.Amount,
	)
	return payment, nil
}

func (s *OrderService) price(ctx context.Context, code string) (int64, error) {
	product, err := s.repos.Settings.GetProduct(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to load product %s: %w", code, err)
	}
	if product == nil {
		if code == ProductPoem && s.defaultPrice > 0 {
			return s.defaultPrice, nil
		}
		return 0, fmt.Errorf("%w: product %s", ErrNotFound, code)
	}
	if !product.IsActive {
		return 0, fmt.Errorf("%w: product %s is not on sale", ErrInvalidInput, code)
	}
	return product.Price, nil
}
