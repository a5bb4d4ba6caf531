package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jmylchreest/versery-api/internal/metrics"
	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/policy"
	"github.com/jmylchreest/versery-api/internal/provider"
	"github.com/jmylchreest/versery-api/internal/queue"
	"github.com/jmylchreest/versery-api/internal/repository"
)

const (
	cancelledByOperator = "cancelled by operator"
	maxReasonLength     = 500
)

// GenerationService runs a paid stage through its provider and records the
// outcome. It is the only caller of BeginProcessing.
type GenerationService struct {
	repos       *repository.Repositories
	fulfillment *FulfillmentService
	providers   *ProviderConfigService
	store       ArtifactStore
	notifier    Notifier
	cfg         GenerationConfig
	logger      *slog.Logger
}

// GenerationConfig holds retry and timeout settings.
type GenerationConfig struct {
	ProviderTimeout time.Duration
	MaxAttempts     int
	BackoffInitial  time.Duration
}

// NewGenerationService creates a new generation service.
func NewGenerationService(
	repos *repository.Repositories,
	fulfillment *FulfillmentService,
	providers *ProviderConfigService,
	store ArtifactStore,
	notifier Notifier,
	cfg GenerationConfig,
	logger *slog.Logger,
) *GenerationService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 45 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 2 * time.Second
	}
	return &GenerationService{
		repos:       repos,
		fulfillment: fulfillment,
		providers:   providers,
		store:       store,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.With("component", "generation"),
	}
}

// output is a generated result that has not been persisted yet.
type output struct {
	artifact    *models.Artifact
	data        []byte // binary payload to upload, nil for text
	key         string
	contentType string
}

// Process generates the artifact for a PAID stage. Stages in any other
// status are left alone, which makes duplicate deliveries harmless.
//
// Transient failures (retryable provider errors, storage) fail the stage,
// requeue it FAILED -> PAID and try again with exponential backoff, up to
// MaxAttempts in total. Anything else fails the stage for good.
func (s *GenerationService) Process(ctx context.Context, stageID string) error {
	stage, err := s.repos.Stage.GetByID(ctx, stageID)
	if err != nil {
		return fmt.Errorf("%w: failed to load stage: %w", queue.ErrRedeliver, err)
	}
	if stage == nil {
		s.logger.Warn("job for unknown stage", "stage_id", stageID)
		return nil
	}
	if stage.Status != models.StageStatusPaid {
		s.logger.Info("stage not ready for generation, skipping", "stage_id", stageID, "status", stage.Status)
		return nil
	}

	log := s.logger.With("stage_id", stageID, "order_id", stage.OrderID, "type", stage.Type)

	var (
		attempt   int
		completed *models.Stage
		claimed   bool
	)
	op := func() error {
		attempt++
		done, started, err := s.attempt(ctx, stageID, log)
		claimed = claimed || started
		if err == nil {
			completed = done
			return nil
		}
		if !started || !isTransient(err) || attempt >= s.cfg.MaxAttempts {
			return backoff.Permanent(err)
		}
		if _, rerr := s.fulfillment.Requeue(ctx, stageID); rerr != nil {
			log.Error("failed to requeue stage after transient failure", "error", rerr)
			return backoff.Permanent(err)
		}
		log.Warn("transient generation failure, retrying", "attempt", attempt, "error", err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.BackoffInitial
	b.MaxElapsedTime = 0
	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxAttempts-1)), ctx))

	switch {
	case err == nil:
		metrics.JobProcessed(string(stage.Type), "completed")
		log.Info("generation completed", "attempts", attempt)
		s.notify(ctx, completed)
		return nil
	case !claimed && errors.Is(err, ErrInvalidTransition):
		// Another worker owns the stage.
		metrics.JobProcessed(string(stage.Type), "skipped")
		log.Info("stage claimed elsewhere, skipping", "error", err)
		return nil
	case !claimed && (errors.Is(err, ErrNotFound) || errors.Is(err, ErrStageCancelled)):
		return err
	case !claimed:
		// The stage is still PAID; the claim itself failed (database error).
		return fmt.Errorf("%w: %w", queue.ErrRedeliver, err)
	}

	metrics.JobProcessed(string(stage.Type), "failed")
	log.Error("generation failed", "attempts", attempt, "error", err)
	if final, gerr := s.repos.Stage.GetByID(ctx, stageID); gerr == nil && final != nil && final.Status == models.StageStatusFailed {
		s.notify(ctx, final)
	}
	return err
}

// attempt runs one claim-generate-persist cycle. started reports whether this
// call moved the stage to PROCESSING; if it did and err is non-nil, the stage
// has already been failed.
func (s *GenerationService) attempt(ctx context.Context, stageID string, log *slog.Logger) (*models.Stage, bool, error) {
	stage, err := s.fulfillment.BeginProcessing(ctx, stageID)
	if err != nil {
		return nil, false, err
	}

	completed, err := s.run(ctx, stage, log)
	if err == nil {
		return completed, true, nil
	}

	if _, ferr := s.fulfillment.Fail(ctx, stageID, failureReason(err)); ferr != nil {
		log.Error("failed to record stage failure", "error", ferr, "cause", err)
	}
	return nil, true, err
}

func (s *GenerationService) run(ctx context.Context, stage *models.Stage, log *slog.Logger) (*models.Stage, error) {
	out, err := s.produce(ctx, stage, log)
	if err != nil {
		return nil, err
	}

	if err := s.checkCancel(ctx, stage.ID); err != nil {
		return nil, err
	}

	if out.data != nil {
		key, err := s.store.Put(ctx, out.key, out.data, out.contentType)
		if err != nil {
			if !errors.Is(err, ErrStorageFailure) {
				err = fmt.Errorf("%w: %w", ErrStorageFailure, err)
			}
			return nil, err
		}
		out.artifact.Content = key
	}

	completed, err := s.fulfillment.Complete(ctx, stage.ID, out.artifact)
	if errors.Is(err, ErrInvalidTransition) {
		// The guard also refuses a stage flagged for cancellation.
		if cerr := s.checkCancel(ctx, stage.ID); cerr != nil {
			return nil, cerr
		}
	}
	return completed, err
}

// produce calls the provider for the stage's type and applies the content policy.
func (s *GenerationService) produce(ctx context.Context, stage *models.Stage, log *slog.Logger) (*output, error) {
	switch stage.Type {
	case models.StageTypePoem:
		return s.producePoem(ctx, stage, log)
	case models.StageTypeVoice:
		return s.produceVoice(ctx, stage, log)
	}
	return nil, fmt.Errorf("%w: no provider capability for %s", ErrProviderUnavailable, stage.Type)
}

func (s *GenerationService) producePoem(ctx context.Context, stage *models.Stage, log *slog.Logger) (*output, error) {
	resolved, err := s.providers.ResolveText(ctx, stage.Type)
	if err != nil {
		return nil, err
	}
	order, err := s.repos.Order.GetByID(ctx, stage.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, stage.OrderID)
	}

	prompt := BuildPoemPrompt(order.ContextMap())
	log.Debug("generating poem", "provider", resolved.Kind, "model", resolved.Params.Model, "prompt_chars", len(prompt))

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	start := time.Now()
	text, err := resolved.Generator.GeneratePoem(callCtx, prompt, resolved.Params)
	cancel()
	s.recordCall(ctx, stage.Type, resolved.Kind, start, err)
	if err != nil {
		return nil, fromProvider(err)
	}

	text = policy.Clean(text)
	if err := s.checkPolicy(ctx, text); err != nil {
		log.Warn("generated poem rejected by content policy", "error", err)
		return nil, err
	}

	return &output{artifact: &models.Artifact{
		Type:     models.ArtifactTypeText,
		Content:  text,
		Provider: string(resolved.Kind),
		Model:    resolved.Params.Model,
	}}, nil
}

func (s *GenerationService) produceVoice(ctx context.Context, stage *models.Stage, log *slog.Logger) (*output, error) {
	text := strings.TrimSpace(stage.InputString("text"))
	if text == "" {
		poem, err := s.repos.Artifact.LatestByOrderAndType(ctx, stage.OrderID, models.ArtifactTypeText)
		if err != nil {
			return nil, err
		}
		if poem == nil {
			return nil, fmt.Errorf("%w: order %s has no text to voice", ErrInvalidInput, stage.OrderID)
		}
		text = poem.Content
	}

	resolved, err := s.providers.ResolveAudio(ctx, stage.Type)
	if err != nil {
		return nil, err
	}
	log.Debug("synthesizing voice", "provider", resolved.Kind, "voice", resolved.Params.Voice, "text_chars", len(text))

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	start := time.Now()
	audio, err := resolved.Synthesizer.Synthesize(callCtx, text, resolved.Params)
	cancel()
	s.recordCall(ctx, stage.Type, resolved.Kind, start, err)
	if err != nil {
		return nil, fromProvider(err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: %s returned no audio", ErrProviderError, resolved.Kind)
	}

	return &output{
		artifact: &models.Artifact{
			Type:     models.ArtifactTypeAudio,
			Provider: string(resolved.Kind),
			Model:    resolved.Params.Model,
		},
		data:        audio,
		key:         VoiceKey(stage.OrderID, stage.ID),
		contentType: "audio/mpeg",
	}, nil
}

// VoiceKey is the storage key of a VOICE stage's audio.
func VoiceKey(orderID, stageID string) string {
	return fmt.Sprintf("orders/%s/voice_%s.mp3", orderID, stageID)
}

func (s *GenerationService) checkPolicy(ctx context.Context, text string) error {
	cp, err := s.repos.Settings.GetContentPolicy(ctx)
	if err != nil {
		return fmt.Errorf("failed to load content policy: %w", err)
	}
	var words []string
	if cp != nil {
		words = cp.StopWords
	}
	return fromPolicy(policy.New(words).Check(text))
}

// checkCancel returns ErrStageCancelled if an operator asked to stop the stage.
func (s *GenerationService) checkCancel(ctx context.Context, stageID string) error {
	current, err := s.repos.Stage.GetByID(ctx, stageID)
	if err != nil {
		return err
	}
	if current != nil && current.CancelRequested {
		return fmt.Errorf("%w: %s", ErrStageCancelled, cancelledByOperator)
	}
	return nil
}

func (s *GenerationService) recordCall(ctx context.Context, stageType models.StageType, kind provider.Kind, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var pe *provider.Error
		if errors.As(err, &pe) && errors.Is(err, provider.ErrUnavailable) && pe.StatusCode != 0 {
			// The provider rejected the stored credential.
			s.providers.MarkInvalid(ctx, stageType, pe.Error())
		}
	}
	metrics.ProviderCall(string(kind), outcome, time.Since(start))
}

func (s *GenerationService) notify(ctx context.Context, stage *models.Stage) {
	if s.notifier != nil && stage != nil {
		s.notifier.StageFinished(ctx, stage)
	}
}

func failureReason(err error) string {
	if errors.Is(err, ErrStageCancelled) {
		return cancelledByOperator
	}
	msg := []rune(err.Error())
	if len(msg) > maxReasonLength {
		msg = msg[:maxReasonLength]
	}
	return string(msg)
}
