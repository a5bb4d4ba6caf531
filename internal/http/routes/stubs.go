package routes

import (
	"context"

	"github.com/jmylchreest/versery-api/internal/http/handlers"
)

// StubHandlers returns a Handlers instance with stub implementations.
// They are only used for OpenAPI generation, where Huma reads the types from
// the function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(nil).Readyz,
		Orders:      &stubOrderHandlers{},
		Admin:       &stubAdminHandlers{},
	}
}

type stubOrderHandlers struct{}

func (s *stubOrderHandlers) CreateOrder(_ context.Context, _ *handlers.CreateOrderInput) (*handlers.CreateOrderOutput, error) {
	return nil, nil
}

func (s *stubOrderHandlers) GetOrder(_ context.Context, _ *handlers.GetOrderInput) (*handlers.GetOrderOutput, error) {
	return nil, nil
}

func (s *stubOrderHandlers) ListCustomerOrders(_ context.Context, _ *handlers.ListCustomerOrdersInput) (*handlers.ListCustomerOrdersOutput, error) {
	return nil, nil
}

func (s *stubOrderHandlers) StartPayment(_ context.Context, _ *handlers.StartPaymentInput) (*handlers.StartPaymentOutput, error) {
	return nil, nil
}

func (s *stubOrderHandlers) GetStageArtifact(_ context.Context, _ *handlers.GetStageArtifactInput) (*handlers.GetStageArtifactOutput, error) {
	return nil, nil
}

func (s *stubOrderHandlers) AddVoiceStage(_ context.Context, _ *handlers.AddVoiceStageInput) (*handlers.AddVoiceStageOutput, error) {
	return nil, nil
}

type stubAdminHandlers struct{}

func (s *stubAdminHandlers) GetDashboard(_ context.Context, _ *struct{}) (*handlers.GetDashboardOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) ListStages(_ context.Context, _ *handlers.ListStagesInput) (*handlers.ListStagesOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) ListOrders(_ context.Context, _ *handlers.ListOrdersInput) (*handlers.ListOrdersOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) GetOrder(_ context.Context, _ *handlers.GetAdminOrderInput) (*handlers.GetAdminOrderOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) RequeueStage(_ context.Context, _ *handlers.StageActionInput) (*handlers.RequeueStageOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) CancelStage(_ context.Context, _ *handlers.StageActionInput) (*handlers.CancelStageOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) CancelOrder(_ context.Context, _ *handlers.CancelOrderInput) (*handlers.CancelOrderOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) Reconcile(_ context.Context, _ *struct{}) (*handlers.ReconcileOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) ListProviders(_ context.Context, _ *struct{}) (*handlers.ListProvidersOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) UpsertProvider(_ context.Context, _ *handlers.UpsertProviderInput) (*handlers.UpsertProviderOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) SyncModels(_ context.Context, _ *struct{}) (*handlers.SyncModelsOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) GetPolicy(_ context.Context, _ *struct{}) (*handlers.PolicyOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) SetPolicy(_ context.Context, _ *handlers.SetPolicyInput) (*handlers.PolicyOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) GetProduct(_ context.Context, _ *handlers.GetProductInput) (*handlers.ProductOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) UpsertProduct(_ context.Context, _ *handlers.UpsertProductInput) (*handlers.ProductOutput, error) {
	return nil, nil
}
