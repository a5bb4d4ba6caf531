package routes

import (
	"context"

	"github.com/jmylchreest/versery-api/internal/http/handlers"
)

// OrderHandlers defines the customer-facing order operations.
type OrderHandlers interface {
	CreateOrder(ctx context.Context, input *handlers.CreateOrderInput) (*handlers.CreateOrderOutput, error)
	GetOrder(ctx context.Context, input *handlers.GetOrderInput) (*handlers.GetOrderOutput, error)
	ListCustomerOrders(ctx context.Context, input *handlers.ListCustomerOrdersInput) (*handlers.ListCustomerOrdersOutput, error)
	StartPayment(ctx context.Context, input *handlers.StartPaymentInput) (*handlers.StartPaymentOutput, error)
	GetStageArtifact(ctx context.Context, input *handlers.GetStageArtifactInput) (*handlers.GetStageArtifactOutput, error)
	AddVoiceStage(ctx context.Context, input *handlers.AddVoiceStageInput) (*handlers.AddVoiceStageOutput, error)
}

// AdminHandlers defines the operator operations.
type AdminHandlers interface {
	GetDashboard(ctx context.Context, input *struct{}) (*handlers.GetDashboardOutput, error)
	ListStages(ctx context.Context, input *handlers.ListStagesInput) (*handlers.ListStagesOutput, error)
	ListOrders(ctx context.Context, input *handlers.ListOrdersInput) (*handlers.ListOrdersOutput, error)
	GetOrder(ctx context.Context, input *handlers.GetAdminOrderInput) (*handlers.GetAdminOrderOutput, error)
	RequeueStage(ctx context.Context, input *handlers.StageActionInput) (*handlers.RequeueStageOutput, error)
	CancelStage(ctx context.Context, input *handlers.StageActionInput) (*handlers.CancelStageOutput, error)
	CancelOrder(ctx context.Context, input *handlers.CancelOrderInput) (*handlers.CancelOrderOutput, error)
	Reconcile(ctx context.Context, input *struct{}) (*handlers.ReconcileOutput, error)
	ListProviders(ctx context.Context, input *struct{}) (*handlers.ListProvidersOutput, error)
	UpsertProvider(ctx context.Context, input *handlers.UpsertProviderInput) (*handlers.UpsertProviderOutput, error)
	SyncModels(ctx context.Context, input *struct{}) (*handlers.SyncModelsOutput, error)
	GetPolicy(ctx context.Context, input *struct{}) (*handlers.PolicyOutput, error)
	SetPolicy(ctx context.Context, input *handlers.SetPolicyInput) (*handlers.PolicyOutput, error)
	GetProduct(ctx context.Context, input *handlers.GetProductInput) (*handlers.ProductOutput, error)
	UpsertProduct(ctx context.Context, input *handlers.UpsertProductInput) (*handlers.ProductOutput, error)
}

// Handlers aggregates all handler interfaces for route registration.
// For the main server, pass real handler implementations.
// For OpenAPI generation, pass stub implementations.
type Handlers struct {
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)

	// Kubernetes probes (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	Orders OrderHandlers
	Admin  AdminHandlers
}
