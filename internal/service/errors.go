package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/versery-api/internal/policy"
	"github.com/jmylchreest/versery-api/internal/provider"
	"github.com/jmylchreest/versery-api/internal/repository"
)

// Domain errors returned by the service layer. Handlers map these onto HTTP
// statuses; the worker uses them to decide whether a retry can help.
var (
	ErrInvalidTransition   = errors.New("invalid stage transition")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderError       = errors.New("provider call failed")
	ErrPolicyRejected      = errors.New("content rejected by policy")
	ErrStorageFailure      = errors.New("storage failure")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrStageCancelled      = errors.New("stage cancelled")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
)

// GenericFailureMessage is the only failure text shown to customers.
const GenericFailureMessage = "generation failed, please contact support"

// fromRepo translates repository sentinels into domain errors.
func fromRepo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}
	return err
}

// fromProvider translates a provider failure. The original error stays in the
// chain so provider.IsRetryable still sees it.
func fromProvider(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, provider.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out: %w", ErrProviderError, err)
	}
	return fmt.Errorf("%w: %w", ErrProviderError, err)
}

// fromPolicy translates a content policy verdict.
func fromPolicy(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, policy.ErrRejected) || errors.Is(err, policy.ErrEmpty) {
		return fmt.Errorf("%w: %w", ErrPolicyRejected, err)
	}
	return err
}

// isTransient reports whether a generation failure may succeed on another attempt.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, ErrStorageFailure):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrProviderError):
		return provider.IsRetryable(err)
	}
	return false
}
