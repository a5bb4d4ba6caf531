package mw

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// TimeoutConfig defines request deadlines by path.
type TimeoutConfig struct {
	// Default deadline for most endpoints
	Default time.Duration
	// Extended deadline for endpoints that wait on a payment gateway or an
	// AI provider
	Extended time.Duration
	// Path suffixes that get the extended deadline (e.g. "/payments")
	ExtendedSuffixes []string
	// Path prefixes with no deadline (e.g. "/metrics")
	SkipPrefixes []string
}

// Timeout bounds the request context. Handlers see the deadline through ctx
// and report context.DeadlineExceeded, which the API maps to 504; nothing is
// written from outside the handler goroutine.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range cfg.SkipPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx, cancel := context.WithTimeout(r.Context(), deadlineFor(cfg, r.URL.Path))
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deadlineFor(cfg TimeoutConfig, path string) time.Duration {
	for _, suffix := range cfg.ExtendedSuffixes {
		if strings.HasSuffix(path, suffix) {
			return cfg.Extended
		}
	}
	return cfg.Default
}
