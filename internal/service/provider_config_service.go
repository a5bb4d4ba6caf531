package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/versery-api/internal/crypto"
	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/provider"
	"github.com/jmylchreest/versery-api/internal/repository"
)

// ProviderConfigService manages the per-stage-type provider selection and
// the encrypted credential behind it. Plaintext keys exist only inside
// Resolve* calls and are never logged or returned to callers.
type ProviderConfigService struct {
	repo     repository.ProviderConfigRepository
	cipher   *crypto.Cipher
	registry *provider.Registry
	logger   *slog.Logger
}

// NewProviderConfigService creates a new provider config service.
func NewProviderConfigService(repo repository.ProviderConfigRepository, cipher *crypto.Cipher, registry *provider.Registry, logger *slog.Logger) *ProviderConfigService {
	return &ProviderConfigService{
		repo:     repo,
		cipher:   cipher,
		registry: registry,
		logger:   logger,
	}
}

// ProviderConfigInput is an operator update for one stage type.
// An empty APIKey keeps the stored credential.
type ProviderConfigInput struct {
	StageType models.StageType
	Provider  provider.Kind
	APIKey    string
	FolderID  string
	Model     string
}

// ProviderConfigView is the admin-facing shape of a provider config.
type ProviderConfigView struct {
	StageType          models.StageType      `json:"stage_type"`
	Provider           string                `json:"provider"`
	HasCredential      bool                  `json:"has_credential"`
	FolderID           string                `json:"folder_id,omitempty"`
	SelectedModel      string                `json:"selected_model"`
	AvailableModels    []string              `json:"available_models"`
	ModelsRefreshedAt  *time.Time            `json:"models_refreshed_at,omitempty"`
	Status             models.ProviderStatus `json:"status"`
	StatusMessage      string                `json:"status_message,omitempty"`
	AutoReassignedFrom string                `json:"auto_reassigned_from,omitempty"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

func newProviderConfigView(cfg *models.ProviderConfig) ProviderConfigView {
	available := cfg.AvailableModels
	if available == nil {
		available = []string{}
	}
	return ProviderConfigView{
		StageType:          cfg.StageType,
		Provider:           cfg.Provider,
		HasCredential:      cfg.CredentialEncrypted != "",
		FolderID:           cfg.FolderID,
		SelectedModel:      cfg.SelectedModel,
		AvailableModels:    available,
		ModelsRefreshedAt:  cfg.ModelsRefreshedAt,
		Status:             cfg.Status,
		StatusMessage:      cfg.StatusMessage,
		AutoReassignedFrom: cfg.AutoReassignedFrom,
		UpdatedAt:          cfg.UpdatedAt,
	}
}

// List returns every configured stage type.
func (s *ProviderConfigService) List(ctx context.Context) ([]ProviderConfigView, error) {
	cfgs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ProviderConfigView, 0, len(cfgs))
	for _, c := range cfgs {
		views = append(views, newProviderConfigView(c))
	}
	return views, nil
}

// Upsert validates and stores a provider selection. Changing the provider
// kind without a new key is rejected because the old key belongs to another
// service.
func (s *ProviderConfigService) Upsert(ctx context.Context, input ProviderConfigInput) (*ProviderConfigView, error) {
	if !input.StageType.Valid() {
		return nil, fmt.Errorf("%w: unknown stage type %q", ErrInvalidInput, input.StageType)
	}
	if !input.Provider.Valid() {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidInput, input.Provider)
	}
	switch input.StageType {
	case models.StageTypePoem:
		if !input.Provider.GeneratesText() {
			return nil, fmt.Errorf("%w: %s cannot generate text", ErrInvalidInput, input.Provider)
		}
	case models.StageTypeVoice:
		if !input.Provider.SynthesizesAudio() {
			return nil, fmt.Errorf("%w: %s cannot synthesize audio", ErrInvalidInput, input.Provider)
		}
	default:
		return nil, fmt.Errorf("%w: no provider capability exists for %s", ErrInvalidInput, input.StageType)
	}

	existing, err := s.repo.Get(ctx, input.StageType)
	if err != nil {
		return nil, err
	}

	cfg := &models.ProviderConfig{
		StageType:     input.StageType,
		Provider:      string(input.Provider),
		FolderID:      strings.TrimSpace(input.FolderID),
		SelectedModel: strings.TrimSpace(input.Model),
		Status:        models.ProviderStatusActive,
	}
	if existing != nil {
		cfg.AvailableModels = existing.AvailableModels
		cfg.ModelsRefreshedAt = existing.ModelsRefreshedAt
		if cfg.FolderID == "" {
			cfg.FolderID = existing.FolderID
		}
	}

	switch key := strings.TrimSpace(input.APIKey); {
	case key != "":
		if s.cipher == nil {
			return nil, fmt.Errorf("%w: credential encryption is not configured", ErrProviderUnavailable)
		}
		enc, err := s.cipher.Encrypt(key)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt credential: %w", err)
		}
		cfg.CredentialEncrypted = enc
		cfg.AvailableModels = nil
		cfg.ModelsRefreshedAt = nil
	case existing != nil && existing.Provider == cfg.Provider:
		cfg.CredentialEncrypted = existing.CredentialEncrypted
		cfg.Status = existing.Status
		cfg.StatusMessage = existing.StatusMessage
	case input.Provider.RequiresKey():
		return nil, fmt.Errorf("%w: %s requires an API key", ErrInvalidInput, input.Provider)
	}

	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save provider config: %w", err)
	}

	s.logger.Info("provider config updated",
		"stage_type", cfg.StageType,
		"provider", cfg.Provider,
		"model", cfg.SelectedModel,
		"credential_changed", input.APIKey != "",
	)
	view := newProviderConfigView(cfg)
	return &view, nil
}

// ResolvedText is a ready-to-call text backend with its call parameters.
type ResolvedText struct {
	Kind      provider.Kind
	Generator provider.TextGenerator
	Params    provider.Params
}

// ResolvedAudio is a ready-to-call audio backend with its call parameters.
type ResolvedAudio struct {
	Kind        provider.Kind
	Synthesizer provider.AudioSynthesizer
	Params      provider.Params
}

// ResolveText builds the text backend configured for stageType.
func (s *ProviderConfigService) ResolveText(ctx context.Context, stageType models.StageType) (*ResolvedText, error) {
	cfg, creds, err := s.credentials(ctx, stageType)
	if err != nil {
		return nil, err
	}
	kind := provider.Kind(cfg.Provider)
	gen, err := s.registry.Text(kind, creds)
	if err != nil {
		return nil, fromProvider(err)
	}
	return &ResolvedText{
		Kind:      kind,
		Generator: gen,
		Params:    provider.Params{Model: cfg.SelectedModel},
	}, nil
}

// ResolveAudio builds the audio backend configured for stageType. The
// selected model doubles as the voice.
func (s *ProviderConfigService) ResolveAudio(ctx context.Context, stageType models.StageType) (*ResolvedAudio, error) {
	cfg, creds, err := s.credentials(ctx, stageType)
	if err != nil {
		return nil, err
	}
	kind := provider.Kind(cfg.Provider)
	synth, err := s.registry.Audio(kind, creds)
	if err != nil {
		return nil, fromProvider(err)
	}
	return &ResolvedAudio{
		Kind:        kind,
		Synthesizer: synth,
		Params:      provider.Params{Model: cfg.SelectedModel, Voice: cfg.SelectedModel},
	}, nil
}

// credentials loads the config for stageType and decrypts its key. A key that
// fails to decrypt marks the config invalid; it is never used as plaintext.
func (s *ProviderConfigService) credentials(ctx context.Context, stageType models.StageType) (*models.ProviderConfig, provider.Credentials, error) {
	cfg, err := s.repo.Get(ctx, stageType)
	if err != nil {
		return nil, provider.Credentials{}, err
	}
	if cfg == nil {
		return nil, provider.Credentials{}, fmt.Errorf("%w: no provider configured for %s", ErrProviderUnavailable, stageType)
	}

	creds := provider.Credentials{FolderID: cfg.FolderID}
	if cfg.CredentialEncrypted == "" {
		return cfg, creds, nil
	}
	if s.cipher == nil {
		return nil, provider.Credentials{}, fmt.Errorf("%w: credential encryption is not configured", ErrProviderUnavailable)
	}

	key, err := s.cipher.Decrypt(cfg.CredentialEncrypted)
	if err != nil {
		s.logger.Error("stored credential cannot be decrypted",
			"stage_type", stageType,
			"provider", cfg.Provider,
		)
		s.markInvalid(ctx, cfg, "stored credential cannot be decrypted; re-enter the API key")
		return nil, provider.Credentials{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	creds.APIKey = key
	return cfg, creds, nil
}

// MarkInvalid records that the provider rejected the stored credential.
func (s *ProviderConfigService) MarkInvalid(ctx context.Context, stageType models.StageType, message string) {
	cfg, err := s.repo.Get(ctx, stageType)
	if err != nil || cfg == nil {
		return
	}
	s.markInvalid(ctx, cfg, message)
}

func (s *ProviderConfigService) markInvalid(ctx context.Context, cfg *models.ProviderConfig, message string) {
	if cfg.Status == models.ProviderStatusInvalid && cfg.StatusMessage == message {
		return
	}
	cfg.Status = models.ProviderStatusInvalid
	cfg.StatusMessage = message
	if err := s.repo.UpdateHealth(ctx, cfg); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to record provider health", "stage_type", cfg.StageType, "error", err)
	}
}
