package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/versery-api/internal/http/handlers"
	"github.com/jmylchreest/versery-api/internal/http/mw"
	"github.com/jmylchreest/versery-api/internal/http/routes"
	"github.com/jmylchreest/versery-api/internal/metrics"
)

func runServe(ctx context.Context, logger *slog.Logger, withWorker bool) error {
	rt, err := bootstrap(logger)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg
	services := rt.services

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-API-Version"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.RequestSize(1 << 20))
	router.Use(httprate.LimitByIP(100, time.Minute))
	router.Use(middleware.Throttle(100))
	router.Use(mw.APIVersion())
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          20 * time.Second,
		Extended:         55 * time.Second,
		ExtendedSuffixes: []string{"/payments", "/providers/sync", "/reconcile"},
		SkipPrefixes:     []string{"/metrics"},
	}))

	// Payment webhooks read the raw body for signature checks, so they stay
	// outside Huma.
	webhookHandler := handlers.NewPaymentWebhookHandler(services.PaymentEvents, handlers.PaymentWebhookConfig{
		VerifyYooKassaIP:    cfg.YooKassaVerifyIP,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
	}, logger)
	router.Post("/api/v1/webhooks/yookassa", webhookHandler.HandleYooKassa)
	router.Post("/api/v1/webhooks/stripe", webhookHandler.HandleStripe)

	router.Handle("/metrics", metrics.Handler())

	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAdminAuth(api, cfg.AdminJWTKey))

	routes.Register(api, &routes.Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(rt.db).Readyz,
		Orders:      handlers.NewOrderHandler(services.Orders, services.Status),
		Admin: handlers.NewAdminHandler(handlers.AdminDeps{
			Admin:      services.Admin,
			Stages:     services.Fulfillment,
			Dispatcher: services.Dispatcher,
			Providers:  services.ProviderConfig,
			Sync:       services.ModelSync,
			Reconcile:  services.Reconcile,
		}),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopWorker := func() {}
	if withWorker {
		stopWorker = rt.startBackground(ctx)
	} else {
		logger.Info("worker disabled - generation jobs run elsewhere")
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "docs", cfg.BaseURL+"/docs")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		cancel()
		stopWorker()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	cancel()
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
