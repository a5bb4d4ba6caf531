package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/versery-api/internal/service"
)

// toHTTPError maps service errors onto huma status errors. The message of
// an unexpected error is never passed through; it is logged instead.
func toHTTPError(err error, fallback string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrPaymentNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrStageCancelled):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrProviderUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(fallback + ": timed out")
	}
	slog.Error(fallback, "error", err)
	return huma.Error500InternalServerError(fallback)
}
