package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/versery-api/internal/service"
)

// ========================================
// HealthCheck Tests
// ========================================

func TestHealthCheck(t *testing.T) {
	output, err := HealthCheck(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "healthy" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "healthy")
	}
	if output.Body.Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestLivez(t *testing.T) {
	output, err := Livez(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

// ========================================
// Readyz Tests
// ========================================

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) PingContext(ctx context.Context) error {
	return m.err
}

func TestReadyzHandler_Readyz(t *testing.T) {
	tests := []struct {
		name       string
		db         DBPinger
		wantStatus int
	}{
		{"db ok", &mockDBPinger{}, 0},
		{"db down", &mockDBPinger{err: errors.New("connection failed")}, http.StatusServiceUnavailable},
		{"no db", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := NewReadyzHandler(tt.db).Readyz(context.Background(), nil)
			if tt.wantStatus == 0 {
				if err != nil {
					t.Fatalf("Readyz() error = %v", err)
				}
				if output.Body.Status != "ok" {
					t.Errorf("Status = %q, want ok", output.Body.Status)
				}
				return
			}
			if got := statusOf(err); got != tt.wantStatus {
				t.Errorf("Readyz() status = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

// ========================================
// Error mapping Tests
// ========================================

func statusOf(err error) int {
	var se huma.StatusError
	if errors.As(err, &se) {
		return se.GetStatus()
	}
	return 0
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: order o1", service.ErrNotFound), http.StatusNotFound},
		{service.ErrPaymentNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: customer_id is required", service.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: PAID -> PENDING", service.ErrInvalidTransition), http.StatusConflict},
		{service.ErrStageCancelled, http.StatusConflict},
		{service.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("create payment: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("disk I/O error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusOf(toHTTPError(tt.err, "failed")); got != tt.want {
				t.Errorf("toHTTPError(%v) status = %d, want %d", tt.err, got, tt.want)
			}
		})
	}

	if toHTTPError(nil, "failed") != nil {
		t.Error("toHTTPError(nil) should be nil")
	}
}

func TestToHTTPError_HidesInternalDetail(t *testing.T) {
	err := toHTTPError(errors.New("sqlite: table stages is locked"), "failed to get order")
	var model *huma.ErrorModel
	if !errors.As(err, &model) {
		t.Fatalf("error type = %T, want *huma.ErrorModel", err)
	}
	if model.Detail != "failed to get order" {
		t.Errorf("Detail = %q, want fallback message", model.Detail)
	}
}
