package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/jmylchreest/versery-api/internal/models"
)

// Completion event types.
const (
	EventStageCompleted = "stage.completed"
	EventStageFailed    = "stage.failed"
)

// Notifier is told when a stage reaches COMPLETED or FAILED.
type Notifier interface {
	StageFinished(ctx context.Context, stage *models.Stage)
}

// StageEvent is the body of a completion notification.
type StageEvent struct {
	Type      string             `json:"type"`
	OrderID   string             `json:"order_id"`
	StageID   string             `json:"stage_id"`
	StageType models.StageType   `json:"stage_type"`
	Status    models.StageStatus `json:"status"`
	Message   string             `json:"message,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// NotifyService posts signed stage events to the customer-facing frontend.
// Bodies are signed with the Standard Webhooks scheme (webhook-id,
// webhook-timestamp, webhook-signature headers).
type NotifyService struct {
	url    string
	signer *svix.Webhook
	client *http.Client
	logger *slog.Logger

	// retryDelay returns the wait before attempt (1-based retries).
	retryDelay func(attempt int) time.Duration
}

// NewNotifyService creates a notifier. An empty url disables it; an empty
// secret sends unsigned events.
func NewNotifyService(url, secret string, logger *slog.Logger) (*NotifyService, error) {
	s := &NotifyService{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With("component", "notifier"),
		retryDelay: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
	if secret != "" {
		wh, err := svix.NewWebhook(secret)
		if err != nil {
			return nil, fmt.Errorf("invalid notify secret: %w", err)
		}
		s.signer = wh
	}
	return s, nil
}

// Enabled reports whether a destination is configured.
func (s *NotifyService) Enabled() bool {
	return s != nil && s.url != ""
}

// StageFinished sends the event for stage without blocking the caller.
func (s *NotifyService) StageFinished(ctx context.Context, stage *models.Stage) {
	if !s.Enabled() || stage == nil {
		return
	}
	event := NewStageEvent(stage)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		_ = s.Deliver(ctx, event)
	}()
}

// NewStageEvent builds the public event for a finished stage. Internal
// failure reasons are replaced by the generic message.
func NewStageEvent(stage *models.Stage) StageEvent {
	e := StageEvent{
		Type:      EventStageCompleted,
		OrderID:   stage.OrderID,
		StageID:   stage.ID,
		StageType: stage.Type,
		Status:    stage.Status,
		Timestamp: time.Now().UTC(),
	}
	if stage.Status == models.StageStatusFailed {
		e.Type = EventStageFailed
		e.Message = GenericFailureMessage
	}
	return e
}

// Deliver posts event, retrying up to three times.
func (s *NotifyService) Deliver(ctx context.Context, event StageEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("notify: failed to marshal event", "error", err)
		return err
	}
	msgID := "msg_" + ulid.Make().String()

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay(attempt)):
			}
		}

		req, err := s.newRequest(ctx, msgID, body)
		if err != nil {
			s.logger.Error("notify: failed to create request", "error", err)
			return err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			s.logger.Warn("notify: delivery failed", "stage_id", event.StageID, "attempt", attempt+1, "error", err)
			continue
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.logger.Info("notify: delivered", "stage_id", event.StageID, "type", event.Type, "status", resp.StatusCode)
			return nil
		}

		lastErr = &NotifyError{StatusCode: resp.StatusCode}
		s.logger.Warn("notify: non-success status", "stage_id", event.StageID, "status", resp.StatusCode, "attempt", attempt+1)
	}

	s.logger.Error("notify: delivery failed after retries", "stage_id", event.StageID, "error", lastErr)
	return lastErr
}

func (s *NotifyService) newRequest(ctx context.Context, msgID string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Versery-Webhook/1.0")

	if s.signer != nil {
		now := time.Now()
		sig, err := s.signer.Sign(msgID, now, body)
		if err != nil {
			return nil, fmt.Errorf("failed to sign event: %w", err)
		}
		req.Header.Set("webhook-id", msgID)
		req.Header.Set("webhook-timestamp", strconv.FormatInt(now.Unix(), 10))
		req.Header.Set("webhook-signature", sig)
	}
	return req, nil
}

// NotifyError is a non-2xx response from the notification endpoint.
type NotifyError struct {
	StatusCode int
}

func (e *NotifyError) Error() string {
	return "notification delivery failed with status: " + http.StatusText(e.StatusCode)
}
