package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmylchreest/versery-api/internal/models"
)

func TestOrderRepository_CreateAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	order := &models.Order{
		CustomerID: "customer-42",
		Context:    json.RawMessage(`{"occasion":"свадьба"}`),
	}
	if err := repos.Order.Create(ctx, order); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if order.ID == "" || order.Status != models.OrderStatusPending {
		t.Fatalf("Create() did not apply defaults: %+v", order)
	}

	got, err := repos.Order.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.CustomerID != "customer-42" || got.ContextMap()["occasion"] != "свадьба" {
		t.Errorf("GetByID() = %+v", got)
	}

	missing, err := repos.Order.GetByID(ctx, "missing")
	if err != nil || missing != nil {
		t.Errorf("GetByID(missing) = %v, %v; want nil, nil", missing, err)
	}

	list, err := repos.Order.ListByCustomer(ctx, "customer-42", 10)
	if err != nil {
		t.Fatalf("ListByCustomer() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListByCustomer() len = %d, want 1", len(list))
	}
}

func TestOrderRepository_CreateWithStage(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	order := &models.Order{CustomerID: "customer-7"}
	stage := &models.Stage{Type: models.StageTypePoem, Price: 4900}
	if err := repos.Order.CreateWithStage(ctx, order, stage); err != nil {
		t.Fatalf("CreateWithStage() error = %v", err)
	}
	if stage.OrderID != order.ID {
		t.Errorf("stage.OrderID = %q, want %q", stage.OrderID, order.ID)
	}
	stages, err := repos.Stage.ListByOrder(ctx, order.ID)
	if err != nil || len(stages) != 1 {
		t.Fatalf("ListByOrder() = %v, %v; want one stage", stages, err)
	}

	// A failing stage insert must not leave an order without stages.
	orphan := &models.Order{CustomerID: "customer-7"}
	dup := &models.Stage{ID: stage.ID, Type: models.StageTypePoem, Price: 4900}
	if err := repos.Order.CreateWithStage(ctx, orphan, dup); err == nil {
		t.Fatal("CreateWithStage() with duplicate stage id succeeded")
	}
	if got, err := repos.Order.GetByID(ctx, orphan.ID); err != nil || got != nil {
		t.Errorf("GetByID(rolled back order) = %v, %v; want nil, nil", got, err)
	}
}

func TestOrderRepository_List(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	db := repos.Order.(*SQLiteOrderRepository).db

	first, _ := seedPendingStage(t, repos, "")
	second, _ := seedPendingStage(t, repos, "")
	if _, err := db.Exec(`UPDATE orders SET status = ? WHERE id = ?`, models.OrderStatusPaid, second.ID); err != nil {
		t.Fatalf("failed to force order status: %v", err)
	}

	tests := []struct {
		name   string
		status models.OrderStatus
		want   int
	}{
		{"all", "", 2},
		{"pending", models.OrderStatusPending, 1},
		{"paid", models.OrderStatusPaid, 1},
		{"cancelled", models.OrderStatusCancelled, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repos.Order.List(ctx, tt.status, 10)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List(%q) len = %d, want %d", tt.status, len(got), tt.want)
			}
		})
	}

	pending, _ := repos.Order.List(ctx, models.OrderStatusPending, 10)
	if len(pending) == 1 && pending[0].ID != first.ID {
		t.Errorf("List(PENDING) = %s, want %s", pending[0].ID, first.ID)
	}
}

func TestStageRepository_ListStale(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	db := repos.Stage.(*SQLiteStageRepository).db
	_, stage := seedPendingStage(t, repos, "")
	forceStageStatus(t, db, stage.ID, models.StageStatusPaid)

	old := formatTime(time.Now().Add(-time.Hour))
	if _, err := db.Exec(`UPDATE stages SET updated_at = ? WHERE id = ?`, old, stage.ID); err != nil {
		t.Fatalf("failed to age stage: %v", err)
	}

	stale, err := repos.Stage.ListStale(ctx, models.StageStatusPaid, time.Now().Add(-10*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStale() error = %v", err)
	}
	if len(stale) != 1 || stale[0].ID != stage.ID {
		t.Errorf("ListStale() = %v, want [%s]", stale, stage.ID)
	}

	fresh, err := repos.Stage.ListStale(ctx, models.StageStatusPaid, time.Now().Add(-2*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListStale() error = %v", err)
	}
	if len(fresh) != 0 {
		t.Errorf("ListStale() returned %d stages newer than cutoff", len(fresh))
	}

	if err := repos.Stage.MarkDispatched(ctx, stage.ID, time.Now()); err != nil {
		t.Fatalf("MarkDispatched() error = %v", err)
	}
	redispatched, err := repos.Stage.ListStale(ctx, models.StageStatusPaid, time.Now().Add(-10*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStale() error = %v", err)
	}
	if len(redispatched) != 0 {
		t.Errorf("ListStale() returned %d recently dispatched stages", len(redispatched))
	}

	counts, err := repos.Stage.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[models.StageStatusPaid] != 1 {
		t.Errorf("CountByStatus()[PAID] = %d, want 1", counts[models.StageStatusPaid])
	}
}

func TestPaymentRepository(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	_, stage := seedPendingStage(t, repos, "ext-pay")

	pending, err := repos.Payment.GetPendingByStage(ctx, stage.ID)
	if err != nil {
		t.Fatalf("GetPendingByStage() error = %v", err)
	}
	if pending == nil || pending.ExternalID != "ext-pay" {
		t.Fatalf("GetPendingByStage() = %+v", pending)
	}

	ok, err := repos.Payment.MarkCanceled(ctx, "ext-pay")
	if err != nil || !ok {
		t.Fatalf("MarkCanceled() = %v, %v", ok, err)
	}
	ok, err = repos.Payment.MarkCanceled(ctx, "ext-pay")
	if err != nil || ok {
		t.Errorf("second MarkCanceled() = %v, %v; want false", ok, err)
	}

	dup := &models.Payment{
		OrderID:        stage.OrderID,
		StageID:        stage.ID,
		ExternalID:     "ext-pay",
		IdempotencyKey: "pay_" + stage.ID,
		Amount:         4900,
		Currency:       "RUB",
	}
	if err := repos.Payment.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create(duplicate external id) error = %v, want ErrConflict", err)
	}

	total, err := repos.Payment.SumSucceeded(ctx, "RUB")
	if err != nil {
		t.Fatalf("SumSucceeded() error = %v", err)
	}
	if total != 0 {
		t.Errorf("SumSucceeded() = %d, want 0", total)
	}
}

func TestProviderConfigRepository_UpsertAndHealth(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	cfg := &models.ProviderConfig{
		StageType:           models.StageTypePoem,
		Provider:            "yandexgpt",
		CredentialEncrypted: "sealed",
		FolderID:            "folder",
		SelectedModel:       "yandexgpt/latest",
		AvailableModels:     []string{"yandexgpt/latest", "yandexgpt-lite/latest"},
	}
	if err := repos.ProviderConfig.Upsert(ctx, cfg); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	health := &models.ProviderConfig{
		StageType:          models.StageTypePoem,
		SelectedModel:      "yandexgpt-lite/latest",
		AvailableModels:    []string{"yandexgpt-lite/latest"},
		ModelsRefreshedAt:  &now,
		Status:             models.ProviderStatusActive,
		AutoReassignedFrom: "yandexgpt/latest",
	}
	if err := repos.ProviderConfig.UpdateHealth(ctx, health); err != nil {
		t.Fatalf("UpdateHealth() error = %v", err)
	}

	got, err := repos.ProviderConfig.Get(ctx, models.StageTypePoem)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CredentialEncrypted != "sealed" {
		t.Errorf("UpdateHealth() touched credential: %q", got.CredentialEncrypted)
	}
	if got.SelectedModel != "yandexgpt-lite/latest" || got.AutoReassignedFrom != "yandexgpt/latest" {
		t.Errorf("Get() = %+v", got)
	}
	if len(got.AvailableModels) != 1 || got.ModelsRefreshedAt == nil {
		t.Errorf("Get() models = %v refreshed = %v", got.AvailableModels, got.ModelsRefreshedAt)
	}

	err = repos.ProviderConfig.UpdateHealth(ctx, &models.ProviderConfig{StageType: models.StageTypeClip})
	if err != ErrNotFound {
		t.Errorf("UpdateHealth(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSettingsRepository(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	poem, err := repos.Settings.GetProduct(ctx, "poem")
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if poem == nil || poem.Price != 4900 {
		t.Fatalf("seeded poem product = %+v, want price 4900", poem)
	}

	poem.Price = 5900
	if err := repos.Settings.UpsertProduct(ctx, poem); err != nil {
		t.Fatalf("UpsertProduct() error = %v", err)
	}
	poem, _ = repos.Settings.GetProduct(ctx, "poem")
	if poem.Price != 5900 {
		t.Errorf("price = %d, want 5900", poem.Price)
	}

	if err := repos.Settings.SetStopWords(ctx, []string{"spam", "ерунда"}); err != nil {
		t.Fatalf("SetStopWords() error = %v", err)
	}
	policy, err := repos.Settings.GetContentPolicy(ctx)
	if err != nil {
		t.Fatalf("GetContentPolicy() error = %v", err)
	}
	if len(policy.StopWords) != 2 || policy.StopWords[1] != "ерунда" {
		t.Errorf("stop words = %v", policy.StopWords)
	}
}
