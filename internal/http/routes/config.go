// Package routes provides shared route registration for the Versery API.
// The server and the OpenAPI generator both register through Register so
// the published document always matches what is served.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/versery-api/internal/http/mw"
	"github.com/jmylchreest/versery-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Versery API", version.Get().Short())
	cfg.Info.Description = "Paid creative content fulfillment: orders, payments, generated poems and voiceovers."

	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Operator token. Issue one with `versery-api issue-token` and send it as `Bearer <token>`.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Orders", Description: "Order intake, payment start and status polling", Extensions: map[string]any{"x-displayName": "Orders"}},
		{Name: "Admin", Description: "Operator dashboard and stage actions", Extensions: map[string]any{"x-displayName": "Admin"}},
		{Name: "Providers", Description: "Generation provider configuration and model sync", Extensions: map[string]any{"x-displayName": "Providers"}},
		{Name: "Settings", Description: "Content policy and product prices", Extensions: map[string]any{"x-displayName": "Settings"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
