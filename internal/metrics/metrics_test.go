package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(webhookEvents.WithLabelValues("payment.succeeded", "applied"))
	WebhookEvent("payment.succeeded", "applied")
	WebhookEvent("payment.succeeded", "applied")
	if got := testutil.ToFloat64(webhookEvents.WithLabelValues("payment.succeeded", "applied")); got != before+2 {
		t.Errorf("webhook counter = %v, want %v", got, before+2)
	}

	before = testutil.ToFloat64(providerCalls.WithLabelValues("dummy", "ok"))
	ProviderCall("dummy", "ok", 150*time.Millisecond)
	if got := testutil.ToFloat64(providerCalls.WithLabelValues("dummy", "ok")); got != before+1 {
		t.Errorf("provider counter = %v, want %v", got, before+1)
	}
}

func TestHandler(t *testing.T) {
	JobProcessed("POEM", "completed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "versery_jobs_processed_total") {
		t.Error("exposition does not contain versery_jobs_processed_total")
	}
}
