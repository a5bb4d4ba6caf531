// Package metrics holds the Prometheus collectors for the pipeline.
// Collectors live in a package-level registry served at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process registry. Tests may gather from it directly.
var Registry = prometheus.NewRegistry()

var (
	webhookEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "versery_webhook_events_total",
			Help: "Payment notifications received, by event and outcome.",
		},
		[]string{"event", "outcome"},
	)
	jobsProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "versery_jobs_processed_total",
			Help: "Generation jobs finished, by stage type and outcome.",
		},
		[]string{"stage_type", "outcome"},
	)
	dispatchFailures = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "versery_dispatch_failures_total",
			Help: "Enqueue calls that failed after a stage was paid.",
		},
	)
	providerCalls = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "versery_provider_calls_total",
			Help: "Generation provider calls, by provider kind and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	providerDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "versery_provider_call_duration_seconds",
			Help:    "Latency of generation provider calls.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
		[]string{"provider"},
	)
	modelSyncs = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "versery_model_sync_total",
			Help: "Provider model list refreshes, by resulting status.",
		},
		[]string{"status"},
	)
	reconcileActions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "versery_reconcile_actions_total",
			Help: "Stages touched by the reconcile sweep, by action.",
		},
		[]string{"action"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// WebhookEvent counts a processed payment notification.
func WebhookEvent(event, outcome string) {
	webhookEvents.WithLabelValues(event, outcome).Inc()
}

// JobProcessed counts a finished generation job.
func JobProcessed(stageType, outcome string) {
	jobsProcessed.WithLabelValues(stageType, outcome).Inc()
}

// DispatchFailed counts an enqueue that was dropped.
func DispatchFailed() {
	dispatchFailures.Inc()
}

// ProviderCall records one provider call and its latency.
func ProviderCall(kind, outcome string, elapsed time.Duration) {
	providerCalls.WithLabelValues(kind, outcome).Inc()
	providerDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ModelSync counts a model list refresh.
func ModelSync(status string) {
	modelSyncs.WithLabelValues(status).Inc()
}

// ReconcileAction counts a stage requeued or failed by the sweep.
func ReconcileAction(action string) {
	reconcileActions.WithLabelValues(action).Inc()
}
