// Package service contains the business logic layer: order intake, payment
// ingest, stage fulfillment, generation and the operator surface.
package service

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/versery-api/internal/config"
	"github.com/jmylchreest/versery-api/internal/crypto"
	"github.com/jmylchreest/versery-api/internal/payments"
	"github.com/jmylchreest/versery-api/internal/provider"
	"github.com/jmylchreest/versery-api/internal/queue"
	"github.com/jmylchreest/versery-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Fulfillment    *FulfillmentService
	Orders         *OrderService
	PaymentEvents  *PaymentEventService
	Generation     *GenerationService
	ProviderConfig *ProviderConfigService
	ModelSync      *ModelSyncService
	Reconcile      *ReconcileService
	Status         *StatusService
	Admin          *AdminService
	Storage        *StorageService
	Notify         *NotifyService
	Cleanup        *CleanupService
	Dispatcher     *Dispatcher
}

// NewServices creates all service instances. q receives generation jobs; it
// may be nil for processes that never enqueue.
func NewServices(cfg *config.Config, repos *repository.Repositories, q queue.Dispatcher, logger *slog.Logger) (*Services, error) {
	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential cipher: %w", err)
	}

	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	notifySvc, err := NewNotifyService(cfg.NotifyURL, cfg.NotifySecret, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notify service: %w", err)
	}
	if !notifySvc.Enabled() {
		logger.Info("completion notifications disabled - NOTIFY_URL not set")
	}

	var gateways []payments.Gateway
	if cfg.YooKassaEnabled() {
		gateways = append(gateways, payments.NewYooKassa(cfg.YooKassaShopID, cfg.YooKassaSecretKey, cfg.YooKassaAPIURL, cfg.YooKassaReturnURL))
	}
	if cfg.StripeEnabled() {
		gateways = append(gateways, payments.NewStripe(cfg.StripeSecretKey, nil))
	}
	if len(gateways) == 0 {
		logger.Warn("no payment gateway configured - payment start will fail")
	}

	registry := provider.NewDefaultRegistry()
	dispatcher := NewDispatcher(q, logger)
	fulfillmentSvc := NewFulfillmentService(repos, logger)
	providerSvc := NewProviderConfigService(repos.ProviderConfig, cipher, registry, logger)

	var notifier Notifier
	if notifySvc.Enabled() {
		notifier = notifySvc
	}

	return &Services{
		Fulfillment: fulfillmentSvc,
		Orders: NewOrderService(repos, OrderServiceConfig{
			Currency:         cfg.SettlementCurrency,
			DefaultPoemPrice: cfg.DefaultPoemPrice,
			Gateways:         gateways,
		}, logger),
		PaymentEvents:  NewPaymentEventService(repos, fulfillmentSvc, dispatcher, cfg.SettlementCurrency, logger),
		Generation: NewGenerationService(repos, fulfillmentSvc, providerSvc, storageSvc, notifier, GenerationConfig{
			ProviderTimeout: cfg.ProviderTimeout,
			MaxAttempts:     cfg.WorkerMaxAttempts,
			BackoffInitial:  cfg.WorkerBackoffInitial,
		}, logger),
		ProviderConfig: providerSvc,
		ModelSync:      NewModelSyncService(repos.ProviderConfig, providerSvc, registry, logger),
		Reconcile: NewReconcileService(repos, fulfillmentSvc, dispatcher, notifier, ReconcileConfig{
			StaleAfter:      cfg.ReconcileStaleAfter,
			ProviderTimeout: cfg.ProviderTimeout,
			MaxAttempts:     cfg.WorkerMaxAttempts,
		}, logger),
		Status:     NewStatusService(repos, storageSvc, logger),
		Admin:      NewAdminService(repos, cfg.SettlementCurrency, logger),
		Storage:    storageSvc,
		Notify:     notifySvc,
		Cleanup:    NewCleanupService(repos.Job, logger),
		Dispatcher: dispatcher,
	}, nil
}
