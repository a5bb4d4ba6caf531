// Package models defines the domain models for the fulfillment pipeline.
// Amounts are integer minor currency units (kopecks for RUB).
package models

import (
	"encoding/json"
	"time"
)

// OrderStatus represents the status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// StageType is the fixed set of generatable stage kinds.
type StageType string

const (
	StageTypePoem  StageType = "POEM"
	StageTypeVoice StageType = "VOICE"
	StageTypeSong  StageType = "SONG"
	StageTypeClip  StageType = "CLIP"
)

// StageTypes lists every stage type in display order.
var StageTypes = []StageType{StageTypePoem, StageTypeVoice, StageTypeSong, StageTypeClip}

// Valid reports whether t is a known stage type.
func (t StageType) Valid() bool {
	switch t {
	case StageTypePoem, StageTypeVoice, StageTypeSong, StageTypeClip:
		return true
	}
	return false
}

// StageStatus represents the lifecycle state of a stage.
type StageStatus string

const (
	StageStatusPending    StageStatus = "PENDING"
	StageStatusPaid       StageStatus = "PAID"
	StageStatusProcessing StageStatus = "PROCESSING"
	StageStatusCompleted  StageStatus = "COMPLETED"
	StageStatusFailed     StageStatus = "FAILED"
	StageStatusCancelled  StageStatus = "CANCELLED"
)

// stageEdges is the complete set of legal stage transitions.
// FAILED -> PAID is the requeue edge; it skips payment because the stage was already paid.
var stageEdges = map[StageStatus][]StageStatus{
	StageStatusPending:    {StageStatusPaid, StageStatusCancelled},
	StageStatusPaid:       {StageStatusProcessing, StageStatusCancelled},
	StageStatusProcessing: {StageStatusCompleted, StageStatusFailed},
	StageStatusFailed:     {StageStatusPaid},
}

// CanTransition reports whether a stage may move from s to next.
func (s StageStatus) CanTransition(next StageStatus) bool {
	for _, to := range stageEdges[s] {
		if to == next {
			return true
		}
	}
	return false
}

// SourcesFor returns every status that may legally transition into next.
func SourcesFor(next StageStatus) []StageStatus {
	var from []StageStatus
	for _, s := range []StageStatus{
		StageStatusPending, StageStatusPaid, StageStatusProcessing,
		StageStatusCompleted, StageStatusFailed, StageStatusCancelled,
	} {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}
	return from
}

// IsPaidOrBeyond reports whether the stage has been paid for.
func (s StageStatus) IsPaidOrBeyond() bool {
	switch s {
	case StageStatusPaid, StageStatusProcessing, StageStatusCompleted, StageStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves s.
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusCancelled
}

// PaymentStatus represents the status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusCanceled  PaymentStatus = "CANCELED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// IsTerminal reports whether the payment can no longer change state.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// PaymentGateway identifies the payment provider a payment was created with.
type PaymentGateway string

const (
	PaymentGatewayYooKassa PaymentGateway = "yookassa"
	PaymentGatewayStripe   PaymentGateway = "stripe"
)

// ArtifactType is the media type of a generated artifact.
type ArtifactType string

const (
	ArtifactTypeText  ArtifactType = "TEXT"
	ArtifactTypeAudio ArtifactType = "AUDIO"
	ArtifactTypeImage ArtifactType = "IMAGE"
	ArtifactTypeVideo ArtifactType = "VIDEO"
)

// IsBinary reports whether the artifact content is a storage key rather than inline data.
func (t ArtifactType) IsBinary() bool {
	return t != ArtifactTypeText
}

// Order is a customer request owning one or more stages.
type Order struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Context    json.RawMessage `json:"context"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ContextMap decodes the free-form order context into string fields.
// Non-string values are ignored.
func (o *Order) ContextMap() map[string]string {
	out := make(map[string]string)
	if len(o.Context) == 0 {
		return out
	}
	var raw map[string]any
	if err := json.Unmarshal(o.Context, &raw); err != nil {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Stage is one payable, generatable unit of work within an order.
type Stage struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	Type            StageType       `json:"type"`
	Status          StageStatus     `json:"status"`
	Price           int64           `json:"price"`
	Input           json.RawMessage `json:"input,omitempty"`
	ErrorReason     string          `json:"error_reason,omitempty"` // internal detail, admin only
	Attempts        int             `json:"attempts"`
	CancelRequested bool            `json:"cancel_requested"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// InputString returns a string field from the stage input JSON.
func (s *Stage) InputString(key string) string {
	if len(s.Input) == 0 {
		return ""
	}
	var raw map[string]any
	if err := json.Unmarshal(s.Input, &raw); err != nil {
		return ""
	}
	v, _ := raw[key].(string)
	return v
}

// Payment is a payment attempt for a stage.
type Payment struct {
	ID              string         `json:"id"`
	OrderID         string         `json:"order_id"`
	StageID         string         `json:"stage_id"`
	ExternalID      string         `json:"external_id"`
	IdempotencyKey  string         `json:"idempotency_key"`
	Gateway         PaymentGateway `json:"gateway"`
	Status          PaymentStatus  `json:"status"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	ConfirmationURL string         `json:"confirmation_url,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Artifact is the immutable output of a completed generation.
// Content holds the text itself for TEXT artifacts and a storage key otherwise.
type Artifact struct {
	ID        string       `json:"id"`
	OrderID   string       `json:"order_id"`
	StageID   string       `json:"stage_id,omitempty"`
	Type      ArtifactType `json:"type"`
	Content   string       `json:"content"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ProviderStatus is the health of a provider configuration.
type ProviderStatus string

const (
	ProviderStatusActive  ProviderStatus = "active"
	ProviderStatusInvalid ProviderStatus = "invalid"
	ProviderStatusError   ProviderStatus = "error"
)

// ProviderConfig is the provider selection for one stage type.
type ProviderConfig struct {
	StageType           StageType      `json:"stage_type"`
	Provider            string         `json:"provider"`
	CredentialEncrypted string         `json:"-"`
	FolderID            string         `json:"folder_id,omitempty"`
	SelectedModel       string         `json:"selected_model"`
	AvailableModels     []string       `json:"available_models"`
	ModelsRefreshedAt   *time.Time     `json:"models_refreshed_at,omitempty"`
	Status              ProviderStatus `json:"status"`
	StatusMessage       string         `json:"status_message,omitempty"`
	AutoReassignedFrom  string         `json:"auto_reassigned_from,omitempty"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// ProductConfig holds the price of a purchasable product.
type ProductConfig struct {
	Code      string    `json:"code"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContentPolicy is the operator-maintained stop-word list.
type ContentPolicy struct {
	StopWords []string  `json:"stop_words"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobStatus represents the status of a queued generation job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusClaimed JobStatus = "claimed"
	JobStatusDone    JobStatus = "done"
)

// Job is a queued request to generate a stage, identified by stage id.
type Job struct {
	ID          string     `json:"id"`
	StageID     string     `json:"stage_id"`
	Status      JobStatus  `json:"status"`
	Deliveries  int        `json:"deliveries"`
	LastError   string     `json:"last_error,omitempty"`
	AvailableAt time.Time  `json:"available_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
