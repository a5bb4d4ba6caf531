package handlers

import (
	"context"
	"time"

	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/provider"
	"github.com/jmylchreest/versery-api/internal/service"
)

// AdminService is the operator read/write surface.
type AdminService interface {
	Dashboard(ctx context.Context) (*service.Dashboard, error)
	ListStages(ctx context.Context, status models.StageStatus, limit int) ([]*models.Stage, error)
	ListOrders(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*service.OrderDetail, error)
	GetPolicy(ctx context.Context) (*models.ContentPolicy, error)
	SetPolicy(ctx context.Context, words []string) (*models.ContentPolicy, error)
	GetProduct(ctx context.Context, code string) (*models.ProductConfig, error)
	UpsertProduct(ctx context.Context, product *models.ProductConfig) error
}

// StageOperator performs operator stage transitions.
type StageOperator interface {
	Requeue(ctx context.Context, stageID string) (*models.Stage, error)
	Cancel(ctx context.Context, stageID string) (bool, error)
	CancelOrder(ctx context.Context, orderID string) (int, error)
}

// JobDispatcher enqueues a stage for generation.
type JobDispatcher interface {
	Dispatch(ctx context.Context, stageID string)
}

// ProviderAdmin manages provider configs.
type ProviderAdmin interface {
	List(ctx context.Context) ([]service.ProviderConfigView, error)
	Upsert(ctx context.Context, input service.ProviderConfigInput) (*service.ProviderConfigView, error)
}

// ModelSyncer refreshes provider model lists.
type ModelSyncer interface {
	SyncAll(ctx context.Context) ([]service.SyncResult, error)
}

// Reconciler runs a reconciliation pass.
type Reconciler interface {
	Sweep(ctx context.Context) (*service.ReconcileResult, error)
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	admin      AdminService
	stages     StageOperator
	dispatcher JobDispatcher
	providers  ProviderAdmin
	sync       ModelSyncer
	reconcile  Reconciler
}

// AdminDeps groups the services behind the admin endpoints.
type AdminDeps struct {
	Admin      AdminService
	Stages     StageOperator
	Dispatcher JobDispatcher
	Providers  ProviderAdmin
	Sync       ModelSyncer
	Reconcile  Reconciler
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{
		admin:      deps.Admin,
		stages:     deps.Stages,
		dispatcher: deps.Dispatcher,
		providers:  deps.Providers,
		sync:       deps.Sync,
		reconcile:  deps.Reconcile,
	}
}

// ========================================
// Dashboard
// ========================================

// GetDashboardOutput is the operator dashboard.
type GetDashboardOutput struct {
	Body service.Dashboard
}

// GetDashboard returns counts by status and settled revenue.
func (h *AdminHandler) GetDashboard(ctx context.Context, input *struct{}) (*GetDashboardOutput, error) {
	d, err := h.admin.Dashboard(ctx)
	if err != nil {
		return nil, toHTTPError(err, "failed to build dashboard")
	}
	return &GetDashboardOutput{Body: *d}, nil
}

// ========================================
// Stages
// ========================================

// AdminStageView is a stage with its internal failure detail.
type AdminStageView struct {
	ID              string             `json:"id"`
	OrderID         string             `json:"order_id"`
	Type            models.StageType   `json:"type"`
	Status          models.StageStatus `json:"status"`
	Price           int64              `json:"price"`
	ErrorReason     string             `json:"error_reason,omitempty"`
	Attempts        int                `json:"attempts"`
	CancelRequested bool               `json:"cancel_requested"`
	PaidAt          *time.Time         `json:"paid_at,omitempty"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func newAdminStageView(s *models.Stage) AdminStageView {
	return AdminStageView{
		ID:              s.ID,
		OrderID:         s.OrderID,
		Type:            s.Type,
		Status:          s.Status,
		Price:           s.Price,
		ErrorReason:     s.ErrorReason,
		Attempts:        s.Attempts,
		CancelRequested: s.CancelRequested,
		PaidAt:          s.PaidAt,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// ListStagesInput filters stages by status.
type ListStagesInput struct {
	Status string `query:"status" required:"true" enum:"PENDING,PAID,PROCESSING,COMPLETED,FAILED,CANCELLED" doc:"Stage status"`
	Limit  int    `query:"limit" minimum:"0" maximum:"500" default:"100" doc:"Maximum stages to return"`
}

// ListStagesOutput is a page of stages.
type ListStagesOutput struct {
	Body struct {
		Stages []AdminStageView `json:"stages"`
	}
}

// ListStages lists stages in one status, most recently updated first.
func (h *AdminHandler) ListStages(ctx context.Context, input *ListStagesInput) (*ListStagesOutput, error) {
	stages, err := h.admin.ListStages(ctx, models.StageStatus(input.Status), input.Limit)
	if err != nil {
		return nil, toHTTPError(err, "failed to list stages")
	}
	out := &ListStagesOutput{}
	out.Body.Stages = make([]AdminStageView, 0, len(stages))
	for _, s := range stages {
		out.Body.Stages = append(out.Body.Stages, newAdminStageView(s))
	}
	return out, nil
}

// StageActionInput identifies a stage.
type StageActionInput struct {
	ID string `path:"id" doc:"Stage ID"`
}

// RequeueStageOutput is the requeued stage.
type RequeueStageOutput struct {
	Body AdminStageView
}

// RequeueStage moves a FAILED stage back to PAID and enqueues it.
func (h *AdminHandler) RequeueStage(ctx context.Context, input *StageActionInput) (*RequeueStageOutput, error) {
	stage, err := h.stages.Requeue(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(err, "failed to requeue stage")
	}
	h.dispatcher.Dispatch(ctx, stage.ID)
	return &RequeueStageOutput{Body: newAdminStageView(stage)}, nil
}

// CancelStageOutput reports how the cancel was applied.
type CancelStageOutput struct {
	Body struct {
		StageID  string `json:"stage_id"`
		InFlight bool   `json:"in_flight" doc:"True when the stage was processing; it fails before its output is stored"`
	}
}

// CancelStage cancels a stage, or flags a running one.
func (h *AdminHandler) CancelStage(ctx context.Context, input *StageActionInput) (*CancelStageOutput, error) {
	inFlight, err := h.stages.Cancel(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(err, "failed to cancel stage")
	}
	out := &CancelStageOutput{}
	out.Body.StageID = input.ID
	out.Body.InFlight = inFlight
	return out, nil
}

// ========================================
// Orders
// ========================================

// ListOrdersInput filters orders by status.
type ListOrdersInput struct {
	Status string `query:"status" enum:"PENDING,PAID,CANCELLED" doc:"Order status; all orders when empty"`
	Limit  int    `query:"limit" minimum:"0" maximum:"500" default:"100" doc:"Maximum orders to return"`
}

// ListOrdersOutput is a page of orders.
type ListOrdersOutput struct {
	Body struct {
		Orders []*models.Order `json:"orders"`
	}
}

// ListOrders lists orders, newest first.
func (h *AdminHandler) ListOrders(ctx context.Context, input *ListOrdersInput) (*ListOrdersOutput, error) {
	orders, err := h.admin.ListOrders(ctx, models.OrderStatus(input.Status), input.Limit)
	if err != nil {
		return nil, toHTTPError(err, "failed to list orders")
	}
	out := &ListOrdersOutput{}
	out.Body.Orders = orders
	if out.Body.Orders == nil {
		out.Body.Orders = []*models.Order{}
	}
	return out, nil
}

// GetAdminOrderInput identifies an order.
type GetAdminOrderInput struct {
	ID string `path:"id" doc:"Order ID"`
}

// GetAdminOrderOutput is an order with everything recorded for it.
type GetAdminOrderOutput struct {
	Body struct {
		Order     *models.Order      `json:"order"`
		Stages    []AdminStageView   `json:"stages"`
		Payments  []*models.Payment  `json:"payments"`
		Artifacts []*models.Artifact `json:"artifacts"`
	}
}

// GetOrder returns an order with its stages, payments and artifacts,
// including internal failure reasons.
func (h *AdminHandler) GetOrder(ctx context.Context, input *GetAdminOrderInput) (*GetAdminOrderOutput, error) {
	detail, err := h.admin.GetOrder(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(err, "failed to get order")
	}
	out := &GetAdminOrderOutput{}
	out.Body.Order = detail.Order
	out.Body.Stages = make([]AdminStageView, 0, len(detail.Stages))
	for _, s := range detail.Stages {
		out.Body.Stages = append(out.Body.Stages, newAdminStageView(s))
	}
	out.Body.Payments = detail.Payments
	if out.Body.Payments == nil {
		out.Body.Payments = []*models.Payment{}
	}
	out.Body.Artifacts = detail.Artifacts
	if out.Body.Artifacts == nil {
		out.Body.Artifacts = []*models.Artifact{}
	}
	return out, nil
}

// CancelOrderInput identifies an order.
type CancelOrderInput struct {
	ID string `path:"id" doc:"Order ID"`
}

// CancelOrderOutput reports the cancelled stages.
type CancelOrderOutput struct {
	Body struct {
		OrderID         string `json:"order_id"`
		StagesCancelled int    `json:"stages_cancelled"`
	}
}

// CancelOrder cancels an order and its unstarted stages.
func (h *AdminHandler) CancelOrder(ctx context.Context, input *CancelOrderInput) (*CancelOrderOutput, error) {
	n, err := h.stages.CancelOrder(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(err, "failed to cancel order")
	}
	out := &CancelOrderOutput{}
	out.Body.OrderID = input.ID
	out.Body.StagesCancelled = n
	return out, nil
}

// ReconcileOutput is the result of an on-demand sweep.
type ReconcileOutput struct {
	Body service.ReconcileResult
}

// Reconcile runs the reconciliation sweep now.
func (h *AdminHandler) Reconcile(ctx context.Context, input *struct{}) (*ReconcileOutput, error) {
	res, err := h.reconcile.Sweep(ctx)
	if err != nil {
		return nil, toHTTPError(err, "reconcile sweep failed")
	}
	return &ReconcileOutput{Body: *res}, nil
}

// ========================================
// Providers
// ========================================

// ListProvidersOutput lists provider configs. Credentials are never returned.
type ListProvidersOutput struct {
	Body struct {
		Providers []service.ProviderConfigView `json:"providers"`
	}
}

// ListProviders returns every provider config.
func (h *AdminHandler) ListProviders(ctx context.Context, input *struct{}) (*ListProvidersOutput, error) {
	views, err := h.providers.List(ctx)
	if err != nil {
		return nil, toHTTPError(err, "failed to list providers")
	}
	out := &ListProvidersOutput{}
	out.Body.Providers = views
	if out.Body.Providers == nil {
		out.Body.Providers = []service.ProviderConfigView{}
	}
	return out, nil
}

// UpsertProviderInput sets the provider for a stage type.
type UpsertProviderInput struct {
	StageType string `path:"stage_type" enum:"POEM,VOICE,SONG,CLIP" doc:"Stage type"`
	Body      struct {
		Provider string `json:"provider" enum:"yandexgpt,openai,gemini,speechkit,dummy" doc:"Provider kind"`
		APIKey   string `json:"api_key,omitempty" doc:"API key; leave empty to keep the stored key"`
		FolderID string `json:"folder_id,omitempty" doc:"Yandex Cloud folder ID"`
		Model    string `json:"model,omitempty" doc:"Selected model"`
	}
}

// UpsertProviderOutput is the saved config.
type UpsertProviderOutput struct {
	Body service.ProviderConfigView
}

// UpsertProvider stores a provider config, encrypting any new API key.
func (h *AdminHandler) UpsertProvider(ctx context.Context, input *UpsertProviderInput) (*UpsertProviderOutput, error) {
	view, err := h.providers.Upsert(ctx, service.ProviderConfigInput{
		StageType: models.StageType(input.StageType),
		Provider:  provider.Kind(input.Body.Provider),
		APIKey:    input.Body.APIKey,
		FolderID:  input.Body.FolderID,
		Model:     input.Body.Model,
	})
	if err != nil {
		return nil, toHTTPError(err, "failed to save provider")
	}
	return &UpsertProviderOutput{Body: *view}, nil
}

// SyncModelsOutput is the per-provider outcome of a model sync.
type SyncModelsOutput struct {
	Body struct {
		Results []service.SyncResult `json:"results"`
	}
}

// SyncModels refreshes model lists for every configured provider.
func (h *AdminHandler) SyncModels(ctx context.Context, input *struct{}) (*SyncModelsOutput, error) {
	results, err := h.sync.SyncAll(ctx)
	if err != nil {
		return nil, toHTTPError(err, "model sync failed")
	}
	out := &SyncModelsOutput{}
	out.Body.Results = results
	if out.Body.Results == nil {
		out.Body.Results = []service.SyncResult{}
	}
	return out, nil
}

// ========================================
// Content policy
// ========================================

// PolicyOutput is the current stop-word list.
type PolicyOutput struct {
	Body models.ContentPolicy
}

// GetPolicy returns the content policy.
func (h *AdminHandler) GetPolicy(ctx context.Context, input *struct{}) (*PolicyOutput, error) {
	cp, err := h.admin.GetPolicy(ctx)
	if err != nil {
		return nil, toHTTPError(err, "failed to load policy")
	}
	return &PolicyOutput{Body: *cp}, nil
}

// SetPolicyInput replaces the stop-word list.
type SetPolicyInput struct {
	Body struct {
		StopWords []string `json:"stop_words" maxItems:"1000" doc:"Words rejected in generated text (case-insensitive, whole word)"`
	}
}

// SetPolicy replaces the content policy.
func (h *AdminHandler) SetPolicy(ctx context.Context, input *SetPolicyInput) (*PolicyOutput, error) {
	cp, err := h.admin.SetPolicy(ctx, input.Body.StopWords)
	if err != nil {
		return nil, toHTTPError(err, "failed to save policy")
	}
	return &PolicyOutput{Body: *cp}, nil
}

// ========================================
// Products
// ========================================

// GetProductInput identifies a product.
type GetProductInput struct {
	Code string `path:"code" doc:"Product code"`
}

// ProductOutput is a product configuration.
type ProductOutput struct {
	Body models.ProductConfig
}

// GetProduct returns a product price.
func (h *AdminHandler) GetProduct(ctx context.Context, input *GetProductInput) (*ProductOutput, error) {
	p, err := h.admin.GetProduct(ctx, input.Code)
	if err != nil {
		return nil, toHTTPError(err, "failed to load product")
	}
	return &ProductOutput{Body: *p}, nil
}

// UpsertProductInput sets a product price.
type UpsertProductInput struct {
	Code string `path:"code" doc:"Product code"`
	Body struct {
		Title    string `json:"title,omitempty"`
		Price    int64  `json:"price" minimum:"1" doc:"Price in minor currency units"`
		IsActive bool   `json:"is_active"`
	}
}

// UpsertProduct stores a product price and returns the saved value.
func (h *AdminHandler) UpsertProduct(ctx context.Context, input *UpsertProductInput) (*ProductOutput, error) {
	product := &models.ProductConfig{
		Code:     input.Code,
		Title:    input.Body.Title,
		Price:    input.Body.Price,
		IsActive: input.Body.IsActive,
	}
	if err := h.admin.UpsertProduct(ctx, product); err != nil {
		return nil, toHTTPError(err, "failed to save product")
	}
	saved, err := h.admin.GetProduct(ctx, product.Code)
	if err != nil {
		return nil, toHTTPError(err, "failed to load product")
	}
	return &ProductOutput{Body: *saved}, nil
}
