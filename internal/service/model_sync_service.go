package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/jmylchreest/versery-api/internal/crypto"
	"github.com/jmylchreest/versery-api/internal/metrics"
	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/provider"
	"github.com/jmylchreest/versery-api/internal/repository"
)

// DefaultModelListTimeout bounds a single provider's model listing.
const DefaultModelListTimeout = 30 * time.Second

// ModelSyncService refreshes the cached model lists of every provider config.
type ModelSyncService struct {
	repo      repository.ProviderConfigRepository
	providers *ProviderConfigService
	registry  *provider.Registry
	timeout   time.Duration
	logger    *slog.Logger
}

// NewModelSyncService creates a new model sync service.
func NewModelSyncService(repo repository.ProviderConfigRepository, providers *ProviderConfigService, registry *provider.Registry, logger *slog.Logger) *ModelSyncService {
	return &ModelSyncService{
		repo:      repo,
		providers: providers,
		registry:  registry,
		timeout:   DefaultModelListTimeout,
		logger:    logger.With("component", "model-sync"),
	}
}

// SyncResult is the outcome for one stage type.
type SyncResult struct {
	StageType          models.StageType      `json:"stage_type"`
	Provider           string                `json:"provider"`
	Status             models.ProviderStatus `json:"status"`
	Models             int                   `json:"models"`
	AutoReassignedFrom string                `json:"auto_reassigned_from,omitempty"`
	Error              string                `json:"error,omitempty"`
	Skipped            bool                  `json:"skipped,omitempty"`
}

// SyncAll refreshes every config. A failing provider is recorded on its own
// config and never stops the others.
func (s *ModelSyncService) SyncAll(ctx context.Context) ([]SyncResult, error) {
	cfgs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SyncResult, 0, len(cfgs))
	for _, cfg := range cfgs {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, s.syncOne(ctx, cfg))
	}

	s.logger.Info("model sync finished", "configs", len(results))
	return results, nil
}

func (s *ModelSyncService) syncOne(ctx context.Context, cfg *models.ProviderConfig) SyncResult {
	result := SyncResult{StageType: cfg.StageType, Provider: cfg.Provider}
	kind := provider.Kind(cfg.Provider)
	log := s.logger.With("stage_type", cfg.StageType, "provider", cfg.Provider)

	if cfg.CredentialEncrypted == "" && kind.RequiresKey() {
		log.Debug("skipping provider without credential")
		result.Status = cfg.Status
		result.Skipped = true
		return result
	}

	_, creds, err := s.providers.credentials(ctx, cfg.StageType)
	if err != nil {
		if errors.Is(err, crypto.ErrDecrypt) {
			// credentials already marked the config invalid.
			result.Status = models.ProviderStatusInvalid
			result.Error = "credential cannot be decrypted"
		} else {
			log.Warn("failed to load provider credential", "error", err)
			result.Status = models.ProviderStatusError
			result.Error = err.Error()
		}
		metrics.ModelSync(string(result.Status))
		return result
	}

	lister, err := s.registry.Build(kind, creds)
	if err == nil {
		listCtx, cancel := context.WithTimeout(ctx, s.timeout)
		var list []string
		list, err = lister.ListModels(listCtx)
		cancel()
		if err == nil {
			return s.applyModels(ctx, cfg, list, log)
		}
	}

	cfg.Status = models.ProviderStatusError
	if errors.Is(err, provider.ErrUnavailable) {
		cfg.Status = models.ProviderStatusInvalid
	}
	cfg.StatusMessage = err.Error()
	log.Warn("model listing failed", "status", cfg.Status, "error", err)
	s.saveHealth(ctx, cfg, log)

	result.Status = cfg.Status
	result.Error = cfg.StatusMessage
	metrics.ModelSync(string(result.Status))
	return result
}

func (s *ModelSyncService) applyModels(ctx context.Context, cfg *models.ProviderConfig, list []string, log *slog.Logger) SyncResult {
	result := SyncResult{StageType: cfg.StageType, Provider: cfg.Provider, Models: len(list)}
	now := time.Now().UTC()
	cfg.ModelsRefreshedAt = &now

	if len(list) == 0 {
		cfg.Status = models.ProviderStatusError
		cfg.StatusMessage = "provider returned no models"
		log.Warn("provider returned no models")
		s.saveHealth(ctx, cfg, log)
		result.Status = cfg.Status
		result.Error = cfg.StatusMessage
		metrics.ModelSync(string(result.Status))
		return result
	}

	cfg.AvailableModels = list
	cfg.Status = models.ProviderStatusActive
	cfg.StatusMessage = ""

	switch {
	case cfg.SelectedModel == "":
		cfg.SelectedModel = list[0]
	case !slices.Contains(list, cfg.SelectedModel):
		log.Warn("selected model no longer offered, reassigning",
			"old_model", cfg.SelectedModel,
			"new_model", list[0],
		)
		cfg.AutoReassignedFrom = cfg.SelectedModel
		cfg.SelectedModel = list[0]
		result.AutoReassignedFrom = cfg.AutoReassignedFrom
	}

	s.saveHealth(ctx, cfg, log)
	result.Status = cfg.Status
	metrics.ModelSync(string(result.Status))
	log.Info("models refreshed", "models", len(list), "selected", cfg.SelectedModel)
	return result
}

func (s *ModelSyncService) saveHealth(ctx context.Context, cfg *models.ProviderConfig, log *slog.Logger) {
	if err := s.repo.UpdateHealth(ctx, cfg); err != nil {
		log.Error("failed to save model sync result", "error", err)
	}
}

// RunScheduledSync runs SyncAll every day at hour (local time) until ctx is done.
func (s *ModelSyncService) RunScheduledSync(ctx context.Context, hour int) {
	s.logger.Info("starting scheduled model sync", "hour", hour)

	for {
		next := nextRunAt(time.Now(), hour)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduled model sync stopped")
			return
		case <-timer.C:
			if _, err := s.SyncAll(ctx); err != nil {
				s.logger.Error("scheduled model sync failed", "error", err)
			}
		}
	}
}

// nextRunAt returns the next occurrence of hour:00 strictly after now.
func nextRunAt(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
