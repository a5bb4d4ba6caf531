package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/versery-api/internal/crypto"
	"github.com/jmylchreest/versery-api/internal/database/migrations"
	"github.com/jmylchreest/versery-api/internal/models"
	"github.com/jmylchreest/versery-api/internal/payments"
	"github.com/jmylchreest/versery-api/internal/provider"
	"github.com/jmylchreest/versery-api/internal/queue"
	"github.com/jmylchreest/versery-api/internal/repository"
)

var testCipherKey = []byte("0123456789abcdef0123456789abcdef")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestDB creates a migrated in-memory database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func testCipher(t *testing.T) *crypto.Cipher {
	t.Helper()
	c, err := crypto.NewCipher(testCipherKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	return c
}

// memStore is an in-memory ArtifactStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memStore) URL(ctx context.Context, key string) (string, error) {
	return "https://storage.test/bucket/" + key, nil
}

func (m *memStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

// recordingNotifier remembers every finished stage.
type recordingNotifier struct {
	mu     sync.Mutex
	stages []*models.Stage
}

func (r *recordingNotifier) StageFinished(ctx context.Context, stage *models.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recordingNotifier) finished() []*models.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Stage(nil), r.stages...)
}

// scriptedBackend returns the queued errors in order, then succeeds.
type scriptedBackend struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	poem   string
	models []string
	hook   func()
}

func (b *scriptedBackend) next() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.hook != nil {
		b.hook()
	}
	if len(b.errs) == 0 {
		return nil
	}
	err := b.errs[0]
	b.errs = b.errs[1:]
	return err
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *scriptedBackend) ListModels(ctx context.Context) ([]string, error) {
	if err := b.next(); err != nil {
		return nil, err
	}
	return b.models, nil
}

func (b *scriptedBackend) GeneratePoem(ctx context.Context, prompt string, params provider.Params) (string, error) {
	if err := b.next(); err != nil {
		return "", err
	}
	if b.poem != "" {
		return b.poem, nil
	}
	return provider.DummyPoem, nil
}

func (b *scriptedBackend) Synthesize(ctx context.Context, text string, params provider.Params) ([]byte, error) {
	if err := b.next(); err != nil {
		return nil, err
	}
	return append([]byte("ID3"), text...), nil
}

// registryWith returns a registry whose dummy kind is backed by b.
func registryWith(b *scriptedBackend) *provider.Registry {
	r := provider.NewDefaultRegistry()
	r.Register(provider.KindDummy, func(provider.Credentials) (provider.ModelLister, error) {
		return b, nil
	})
	return r
}

// fakeGateway opens payments with sequential ids.
type fakeGateway struct {
	mu       sync.Mutex
	name     models.PaymentGateway
	requests []payments.CreateRequest
	err      error
}

func (g *fakeGateway) Name() models.PaymentGateway {
	if g.name == "" {
		return models.PaymentGatewayYooKassa
	}
	return g.name
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req payments.CreateRequest) (*payments.CreateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	return &payments.CreateResult{
		ExternalID:      fmt.Sprintf("ext-%d", len(g.requests)),
		Status:          "pending",
		ConfirmationURL: "https://pay.test/" + req.IdempotencyKey,
	}, nil
}

// harness wires the services over one in-memory database.
type harness struct {
	db          *sql.DB
	repos       *repository.Repositories
	queue       *queue.Memory
	store       *memStore
	notifier    *recordingNotifier
	backend     *scriptedBackend
	gateway     *fakeGateway
	fulfillment *FulfillmentService
	dispatcher  *Dispatcher
	orders      *OrderService
	events      *PaymentEventService
	providers   *ProviderConfigService
	generation  *GenerationService
	status      *StatusService
	registry    *provider.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := testLogger()
	db := setupTestDB(t)
	repos := repository.NewRepositories(db)

	h := &harness{
		db:       db,
		repos:    repos,
		queue:    queue.NewMemory(),
		store:    newMemStore(),
		notifier: &recordingNotifier{},
		backend:  &scriptedBackend{models: []string{"dummy-v1"}},
		gateway:  &fakeGateway{},
	}
	h.registry = registryWith(h.backend)
	h.fulfillment = NewFulfillmentService(repos, logger)
	h.dispatcher = NewDispatcher(h.queue, logger)
	h.orders = NewOrderService(repos, OrderServiceConfig{
		Currency:         "RUB",
		DefaultPoemPrice: 4900,
		Gateways:         []payments.Gateway{h.gateway},
	}, logger)
	h.events = NewPaymentEventService(repos, h.fulfillment, h.dispatcher, "RUB", logger)
	h.providers = NewProviderConfigService(repos.ProviderConfig, testCipher(t), h.registry, logger)
	h.generation = NewGenerationService(repos, h.fulfillment, h.providers, h.store, h.notifier, GenerationConfig{
		ProviderTimeout: 0,
		MaxAttempts:     3,
		BackoffInitial:  1,
	}, logger)
	h.status = NewStatusService(repos, h.store, logger)
	return h
}

// configure selects the dummy backend for stageType.
func (h *harness) configure(t *testing.T, stageType models.StageType) {
	t.Helper()
	if _, err := h.providers.Upsert(context.Background(), ProviderConfigInput{
		StageType: stageType,
		Provider:  provider.KindDummy,
		Model:     "dummy-v1",
	}); err != nil {
		t.Fatalf("Upsert(%s) error = %v", stageType, err)
	}
}

// newPendingOrder creates a poem order with a started payment.
func (h *harness) newPendingOrder(t *testing.T) (*models.Stage, *models.Payment) {
	t.Helper()
	ctx := context.Background()
	_, stage, err := h.orders.CreateOrder(ctx, CreateOrderInput{
		CustomerID: "tg:1001",
		Context:    []byte(`{"occasion":"юбилей","recipient":"маме"}`),
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	payment, err := h.orders.StartPayment(ctx, stage.ID, "")
	if err != nil {
		t.Fatalf("StartPayment() error = %v", err)
	}
	return stage, payment
}

// newPaidStage creates a poem stage and pays for it.
func (h *harness) newPaidStage(t *testing.T) *models.Stage {
	t.Helper()
	stage, payment := h.newPendingOrder(t)
	if _, err := h.fulfillment.MarkPaid(context.Background(), stage.ID, payment.ExternalID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	return stage
}

func (h *harness) stage(t *testing.T, id string) *models.Stage {
	t.Helper()
	st, err := h.repos.Stage.GetByID(context.Background(), id)
	if err != nil || st == nil {
		t.Fatalf("Stage.GetByID(%s) = %v, %v", id, st, err)
	}
	return st
}

func succeeded(paymentID, amount, currency string) *payments.Notification {
	return &payments.Notification{
		Event:       payments.EventPaymentSucceeded,
		PaymentID:   paymentID,
		Status:      "succeeded",
		AmountValue: amount,
		Currency:    currency,
	}
}
