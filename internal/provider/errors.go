package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

var (
	// ErrUnavailable means the provider cannot be used at all: unknown kind,
	// wrong modality, missing or rejected credential.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrCall means a call reached the provider and failed.
	ErrCall = errors.New("provider call failed")
)

// Error is a classified failure from a provider backend.
type Error struct {
	Err        error // ErrUnavailable or ErrCall
	Provider   Kind
	Model      string
	StatusCode int
	Retryable  bool
	Message    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Err)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps an HTTP status from a provider into an Error.
// 401/403 mean the credential is bad; 408, 429 and 5xx are worth retrying.
func Classify(kind Kind, model string, statusCode int, message string) *Error {
	e := &Error{
		Err:        ErrCall,
		Provider:   kind,
		Model:      model,
		StatusCode: statusCode,
		Message:    truncate(message, 300),
	}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Err = ErrUnavailable
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests:
		e.Retryable = true
	case statusCode >= 500:
		e.Retryable = true
	}
	return e
}

// transportError wraps a failure that happened before any HTTP status was seen.
func transportError(kind Kind, model string, err error) *Error {
	return &Error{
		Err:       ErrCall,
		Provider:  kind,
		Model:     model,
		Retryable: !errors.Is(err, context.Canceled),
		Message:   err.Error(),
	}
}

// unavailable builds an ErrUnavailable error with a message.
func unavailable(kind Kind, format string, args ...any) *Error {
	return &Error{Err: ErrUnavailable, Provider: kind, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err is a provider failure that may succeed on retry.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
