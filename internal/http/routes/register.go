package routes

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/versery-api/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
// Payment webhooks are raw chi handlers and are mounted separately.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// --- Orders ---
	mw.PublicPost(api, "/api/v1/orders", h.Orders.CreateOrder,
		mw.WithTags("Orders"),
		mw.WithSummary("Create order"),
		mw.WithDescription("Opens a PENDING order with a priced POEM stage."),
		mw.WithOperationID("createOrder"),
		mw.WithStatus(http.StatusCreated))
	mw.PublicGet(api, "/api/v1/orders/{id}", h.Orders.GetOrder,
		mw.WithTags("Orders"),
		mw.WithSummary("Get order status"),
		mw.WithOperationID("getOrder"))
	mw.PublicGet(api, "/api/v1/customers/{customer_id}/orders", h.Orders.ListCustomerOrders,
		mw.WithTags("Orders"),
		mw.WithSummary("List customer orders"),
		mw.WithDescription("Returns the customer's most recent orders. Failed stages carry only the generic failure message."),
		mw.WithOperationID("listCustomerOrders"))
	mw.PublicPost(api, "/api/v1/orders/{id}/voice", h.Orders.AddVoiceStage,
		mw.WithTags("Orders"),
		mw.WithSummary("Add voiceover stage"),
		mw.WithDescription("Adds a VOICE stage to an order whose poem is ready. Repeated calls return the same stage."),
		mw.WithOperationID("addVoiceStage"))
	mw.PublicPost(api, "/api/v1/stages/{id}/payments", h.Orders.StartPayment,
		mw.WithTags("Orders"),
		mw.WithSummary("Start stage payment"),
		mw.WithDescription("Creates a gateway payment for a PENDING stage, or returns the one already pending."),
		mw.WithOperationID("startPayment"))
	mw.PublicGet(api, "/api/v1/stages/{id}/artifact", h.Orders.GetStageArtifact,
		mw.WithTags("Orders"),
		mw.WithSummary("Poll stage artifact"),
		mw.WithOperationID("getStageArtifact"))

	// =========================================================================
	// Protected Routes (operator token)
	// =========================================================================

	mw.ProtectedGet(api, "/api/v1/admin/dashboard", h.Admin.GetDashboard,
		mw.WithTags("Admin"),
		mw.WithSummary("Dashboard"),
		mw.WithOperationID("adminDashboard"))
	mw.ProtectedGet(api, "/api/v1/admin/stages", h.Admin.ListStages,
		mw.WithTags("Admin"),
		mw.WithSummary("List stages by status"),
		mw.WithOperationID("adminListStages"))
	mw.ProtectedGet(api, "/api/v1/admin/orders", h.Admin.ListOrders,
		mw.WithTags("Admin"),
		mw.WithSummary("List orders"),
		mw.WithOperationID("adminListOrders"))
	mw.ProtectedGet(api, "/api/v1/admin/orders/{id}", h.Admin.GetOrder,
		mw.WithTags("Admin"),
		mw.WithSummary("Get order detail"),
		mw.WithDescription("Returns the order context, stages with internal failure reasons, payments and artifacts."),
		mw.WithOperationID("adminGetOrder"))
	mw.ProtectedPost(api, "/api/v1/admin/stages/{id}/requeue", h.Admin.RequeueStage,
		mw.WithTags("Admin"),
		mw.WithSummary("Requeue failed stage"),
		mw.WithOperationID("adminRequeueStage"))
	mw.ProtectedPost(api, "/api/v1/admin/stages/{id}/cancel", h.Admin.CancelStage,
		mw.WithTags("Admin"),
		mw.WithSummary("Cancel stage"),
		mw.WithDescription("Cancels a PENDING or PAID stage. A PROCESSING stage is flagged and fails before its output is stored."),
		mw.WithOperationID("adminCancelStage"))
	mw.ProtectedPost(api, "/api/v1/admin/orders/{id}/cancel", h.Admin.CancelOrder,
		mw.WithTags("Admin"),
		mw.WithSummary("Cancel order"),
		mw.WithOperationID("adminCancelOrder"))
	mw.ProtectedPost(api, "/api/v1/admin/reconcile", h.Admin.Reconcile,
		mw.WithTags("Admin"),
		mw.WithSummary("Run reconcile sweep"),
		mw.WithOperationID("adminReconcile"))

	// --- Providers ---
	mw.ProtectedGet(api, "/api/v1/admin/providers", h.Admin.ListProviders,
		mw.WithTags("Providers"),
		mw.WithSummary("List provider configs"),
		mw.WithOperationID("adminListProviders"))
	mw.ProtectedPut(api, "/api/v1/admin/providers/{stage_type}", h.Admin.UpsertProvider,
		mw.WithTags("Providers"),
		mw.WithSummary("Set provider for stage type"),
		mw.WithOperationID("adminUpsertProvider"))
	mw.ProtectedPost(api, "/api/v1/admin/providers/sync", h.Admin.SyncModels,
		mw.WithTags("Providers"),
		mw.WithSummary("Refresh provider model lists"),
		mw.WithOperationID("adminSyncModels"))

	// --- Settings ---
	mw.ProtectedGet(api, "/api/v1/admin/policy", h.Admin.GetPolicy,
		mw.WithTags("Settings"),
		mw.WithSummary("Get content policy"),
		mw.WithOperationID("adminGetPolicy"))
	mw.ProtectedPut(api, "/api/v1/admin/policy", h.Admin.SetPolicy,
		mw.WithTags("Settings"),
		mw.WithSummary("Replace content policy"),
		mw.WithOperationID("adminSetPolicy"))
	mw.ProtectedGet(api, "/api/v1/admin/products/{code}", h.Admin.GetProduct,
		mw.WithTags("Settings"),
		mw.WithSummary("Get product price"),
		mw.WithOperationID("adminGetProduct"))
	mw.ProtectedPut(api, "/api/v1/admin/products/{code}", h.Admin.UpsertProduct,
		mw.WithTags("Settings"),
		mw.WithSummary("Set product price"),
		mw.WithOperationID("adminUpsertProduct"))
}
