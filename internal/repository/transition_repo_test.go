package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmylchreest/versery-api/internal/models"
)

func TestMarkPaid_AdvancesPendingStage(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	order, stage := seedPendingStage(t, repos, "ext-1")

	res, err := repos.Transition.MarkPaid(ctx, stage.ID, "ext-1")
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if !res.PaymentUpdated || !res.StageAdvanced || res.StageCancelled {
		t.Errorf("MarkPaid() result = %+v, want payment updated and stage advanced", res)
	}
	if res.Stage.Status != models.StageStatusPaid {
		t.Errorf("stage status = %s, want PAID", res.Stage.Status)
	}
	if res.Stage.PaidAt == nil {
		t.Error("expected paid_at to be set")
	}
	if res.Payment.Status != models.PaymentStatusSucceeded {
		t.Errorf("payment status = %s, want SUCCEEDED", res.Payment.Status)
	}

	got, err := repos.Order.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("Order.GetByID() error = %v", err)
	}
	if got.Status != models.OrderStatusPaid {
		t.Errorf("order status = %s, want PAID", got.Status)
	}
}

func TestMarkPaid_IsIdempotent(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	_, stage := seedPendingStage(t, repos, "ext-dup")

	if _, err := repos.Transition.MarkPaid(ctx, stage.ID, "ext-dup"); err != nil {
		t.Fatalf("first MarkPaid() error = %v", err)
	}
	res, err := repos.Transition.MarkPaid(ctx, stage.ID, "ext-dup")
	if err != nil {
		t.Fatalf("second MarkPaid() error = %v", err)
	}
	if res.PaymentUpdated || res.StageAdvanced {
		t.Errorf("second MarkPaid() changed state: %+v", res)
	}
	if res.Stage.Status != models.StageStatusPaid {
		t.Errorf("stage status = %s, want PAID", res.Stage.Status)
	}
}

func TestMarkPaid_ConcurrentDeliveriesAdvanceOnce(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	_, stage := seedPendingStage(t, repos, "ext-race")

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	advanced := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repos.Transition.MarkPaid(ctx, stage.ID, "ext-race")
			if err != nil {
				t.Errorf("MarkPaid() error = %v", err)
				return
			}
			if res.StageAdvanced {
				mu.Lock()
				advanced++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if advanced != 1 {
		t.Errorf("stage advanced %d times, want 1", advanced)
	}
}

func TestMarkPaid_UnknownPayment(t *testing.T) {
	repos := setupTestRepos(t)
	_, stage := seedPendingStage(t, repos, "ext-known")

	_, err := repos.Transition.MarkPaid(context.Background(), stage.ID, "ext-unknown")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkPaid() error = %v, want ErrNotFound", err)
	}
}

func TestMarkPaid_StageMismatch(t *testing.T) {
	repos := setupTestRepos(t)
	seedPendingStage(t, repos, "ext-a")
	_, other := seedPendingStage(t, repos, "ext-b")

	_, err := repos.Transition.MarkPaid(context.Background(), other.ID, "ext-a")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("MarkPaid() error = %v, want ErrConflict", err)
	}
}

func TestMarkPaid_CancelledOrderRecordsPaymentOnly(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	order, stage := seedPendingStage(t, repos, "ext-late")

	if _, err := repos.Transition.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}

	res, err := repos.Transition.MarkPaid(ctx, stage.ID, "ext-late")
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if !res.StageCancelled || res.StageAdvanced {
		t.Errorf("MarkPaid() result = %+v, want cancelled and not advanced", res)
	}
	if !res.PaymentUpdated || res.Payment.Status != models.PaymentStatusSucceeded {
		t.Errorf("payment = %+v, want SUCCEEDED", res.Payment)
	}
	if res.Stage.Status != models.StageStatusCancelled {
		t.Errorf("stage status = %s, want CANCELLED", res.Stage.Status)
	}
}

func TestTransition_Matrix(t *testing.T) {
	all := []models.StageStatus{
		models.StageStatusPending, models.StageStatusPaid, models.StageStatusProcessing,
		models.StageStatusCompleted, models.StageStatusFailed, models.StageStatusCancelled,
	}

	for _, from := range all {
		for _, to := range all {
			if from == to {
				continue
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				repos := setupTestRepos(t)
				db := repos.Stage.(*SQLiteStageRepository).db
				_, stage := seedPendingStage(t, repos, "")
				forceStageStatus(t, db, stage.ID, from)

				got, err := repos.Transition.Transition(context.Background(), stage.ID, []models.StageStatus{from}, to, "boom")
				if from.CanTransition(to) {
					if err != nil {
						t.Fatalf("Transition() error = %v", err)
					}
					if got.Status != to {
						t.Errorf("status = %s, want %s", got.Status, to)
					}
				} else if !errors.Is(err, ErrConflict) {
					t.Errorf("Transition() error = %v, want ErrConflict", err)
				}
			})
		}
	}
}

func TestTransition_WrongSourceConflicts(t *testing.T) {
	repos := setupTestRepos(t)
	_, stage := seedPendingStage(t, repos, "")

	_, err := repos.Transition.Transition(context.Background(), stage.ID,
		[]models.StageStatus{models.StageStatusPaid}, models.StageStatusProcessing, "")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Transition() error = %v, want ErrConflict", err)
	}
}

func TestTransition_MissingStage(t *testing.T) {
	repos := setupTestRepos(t)

	_, err := repos.Transition.Transition(context.Background(), "nope",
		[]models.StageStatus{models.StageStatusPaid}, models.StageStatusProcessing, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Transition() error = %v, want ErrNotFound", err)
	}
}

func TestTransition_ProcessingCountsAttempts(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	db := repos.Stage.(*SQLiteStageRepository).db
	_, stage := seedPendingStage(t, repos, "")
	forceStageStatus(t, db, stage.ID, models.StageStatusPaid)

	paid := []models.StageStatus{models.StageStatusPaid}
	processing := []models.StageStatus{models.StageStatusProcessing}
	failed := []models.StageStatus{models.StageStatusFailed}

	if _, err := repos.Transition.Transition(ctx, stage.ID, paid, models.StageStatusProcessing, ""); err != nil {
		t.Fatalf("Transition(PROCESSING) error = %v", err)
	}
	got, err := repos.Transition.Transition(ctx, stage.ID, processing, models.StageStatusFailed, "")
	if err != nil {
		t.Fatalf("Transition(FAILED) error = %v", err)
	}
	if got.ErrorReason != "unknown error" {
		t.Errorf("error_reason = %q, want %q", got.ErrorReason, "unknown error")
	}
	got, err = repos.Transition.Transition(ctx, stage.ID, failed, models.StageStatusPaid, "")
	if err != nil {
		t.Fatalf("Transition(requeue) error = %v", err)
	}
	if got.ErrorReason != "" {
		t.Errorf("requeue kept error_reason %q", got.ErrorReason)
	}
	got, err = repos.Transition.Transition(ctx, stage.ID, paid, models.StageStatusProcessing, "")
	if err != nil {
		t.Fatalf("second Transition(PROCESSING) error = %v", err)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
}

func TestTransition_ConcurrentClaimSingleWinner(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	db := repos.Stage.(*SQLiteStageRepository).db
	_, stage := seedPendingStage(t, repos, "")
	forceStageStatus(t, db, stage.ID, models.StageStatusPaid)

	const n = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.Transition.Transition(ctx, stage.ID,
				[]models.StageStatus{models.StageStatusPaid}, models.StageStatusProcessing, "")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrConflict) {
				t.Errorf("Transition() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("claims won = %d, want 1", wins)
	}
}

func TestComplete_PersistsArtifact(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	db := repos.Stage.(*SQLiteStageRepository).db
	order, stage := seedPendingStage(t, repos, "")
	forceStageStatus(t, db, stage.ID, models.StageStatusProcessing)

	got, err := repos.Transition.Complete(ctx, stage.ID, &models.Artifact{
		Type:     models.ArtifactTypeText,
		Content:  "roses are red",
		Provider: "dummy",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Status != models.StageStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}

	artifact, err := repos.Artifact.LatestByOrderAndType(ctx, order.ID, models.ArtifactTypeText)
	if err != nil {
		t.Fatalf("LatestByOrderAndType() error = %v", err)
	}
	if artifact == nil || artifact.Content != "roses are red" || artifact.StageID != stage.ID {
		t.Errorf("artifact = %+v", artifact)
	}
}

func TestComplete_RejectsNonProcessing(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	order, stage := seedPendingStage(t, repos, "")

	_, err := repos.Transition.Complete(ctx, stage.ID, &models.Artifact{Type: models.ArtifactTypeText, Content: "x"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Complete() error = %v, want ErrConflict", err)
	}

	artifacts, err := repos.Artifact.ListByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("ListByOrder() error = %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("artifacts = %d, want 0 after rejected completion", len(artifacts))
	}
}

func TestComplete_RespectsCancelRequest(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	db := repos.Stage.(*SQLiteStageRepository).db
	_, stage := seedPendingStage(t, repos, "")
	forceStageStatus(t, db, stage.ID, models.StageStatusProcessing)

	ok, err := repos.Transition.RequestCancel(ctx, stage.ID)
	if err != nil || !ok {
		t.Fatalf("RequestCancel() = %v, %v", ok, err)
	}
	_, err = repos.Transition.Complete(ctx, stage.ID, &models.Artifact{Type: models.ArtifactTypeText, Content: "x"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Complete() error = %v, want ErrConflict", err)
	}
}

func TestCancelOrder(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	db := repos.Stage.(*SQLiteStageRepository).db
	order, pending := seedPendingStage(t, repos, "")

	running := &models.Stage{OrderID: order.ID, Type: models.StageTypeVoice, Price: 9900}
	if err := repos.Stage.Create(ctx, running); err != nil {
		t.Fatalf("Stage.Create() error = %v", err)
	}
	forceStageStatus(t, db, running.ID, models.StageStatusProcessing)

	n, err := repos.Transition.CancelOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if n != 1 {
		t.Errorf("cancelled = %d, want 1", n)
	}

	got, _ := repos.Stage.GetByID(ctx, pending.ID)
	if got.Status != models.StageStatusCancelled {
		t.Errorf("pending stage status = %s, want CANCELLED", got.Status)
	}
	got, _ = repos.Stage.GetByID(ctx, running.ID)
	if got.Status != models.StageStatusProcessing || !got.CancelRequested {
		t.Errorf("running stage = %s cancel_requested=%v, want PROCESSING with cancel requested", got.Status, got.CancelRequested)
	}

	if _, err := repos.Transition.CancelOrder(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CancelOrder(missing) error = %v, want ErrNotFound", err)
	}
}

func TestTransition_CancelledOrderBlocksRequeue(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	db := repos.Stage.(*SQLiteStageRepository).db
	order, stage := seedPendingStage(t, repos, "")
	forceStageStatus(t, db, stage.ID, models.StageStatusFailed)

	if _, err := repos.Transition.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	_, err := repos.Transition.Transition(ctx, stage.ID,
		[]models.StageStatus{models.StageStatusFailed}, models.StageStatusPaid, "")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Transition() error = %v, want ErrConflict", err)
	}
}
