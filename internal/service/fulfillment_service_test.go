package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmylchreest/versery-api/internal/models"
)

func TestFulfillmentService_MarkPaidOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stage, payment := h.newPendingOrder(t)

	applied, err := h.fulfillment.MarkPaid(ctx, stage.ID, payment.ExternalID)
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if !applied {
		t.Error("first MarkPaid() applied = false, want true")
	}

	applied, err = h.fulfillment.MarkPaid(ctx, stage.ID, payment.ExternalID)
	if err != nil {
		t.Fatalf("second MarkPaid() error = %v", err)
	}
	if applied {
		t.Error("second MarkPaid() applied = true, want false")
	}

	got := h.stage(t, stage.ID)
	if got.Status != models.StageStatusPaid {
		t.Errorf("status = %s, want PAID", got.Status)
	}
	if got.PaidAt == nil {
		t.Error("PaidAt not set")
	}
}

func TestFulfillmentService_MarkPaidConcurrent(t *testing.T) {
	h := newHarness(t)
	stage, payment := h.newPendingOrder(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := h.fulfillment.MarkPaid(context.Background(), stage.ID, payment.ExternalID)
			if err != nil {
				t.Errorf("MarkPaid() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("applied %d times, want 1", applied)
	}
}

func TestFulfillmentService_MarkPaidUnknownPayment(t *testing.T) {
	h := newHarness(t)
	stage, _ := h.newPendingOrder(t)

	_, err := h.fulfillment.MarkPaid(context.Background(), stage.ID, "no-such-payment")
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("MarkPaid() error = %v, want ErrPaymentNotFound", err)
	}
	if got := h.stage(t, stage.ID); got.Status != models.StageStatusPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
}

func TestFulfillmentService_MarkPaidCancelledStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stage, payment := h.newPendingOrder(t)

	if _, err := h.fulfillment.Cancel(ctx, stage.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	applied, err := h.fulfillment.MarkPaid(ctx, stage.ID, payment.ExternalID)
	if !errors.Is(err, ErrStageCancelled) {
		t.Errorf("MarkPaid() error = %v, want ErrStageCancelled", err)
	}
	if applied {
		t.Error("MarkPaid() applied = true for cancelled stage")
	}
	if got := h.stage(t, stage.ID); got.Status != models.StageStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	p, err := h.repos.Payment.GetByExternalID(ctx, payment.ExternalID)
	if err != nil {
		t.Fatalf("GetByExternalID() error = %v", err)
	}
	if p.Status != models.PaymentStatusSucceeded {
		t.Errorf("payment status = %s, want SUCCEEDED", p.Status)
	}
}

func TestFulfillmentService_Lifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stage := h.newPaidStage(t)

	if _, err := h.fulfillment.Fail(ctx, stage.ID, "x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail() from PAID error = %v, want ErrInvalidTransition", err)
	}

	if _, err := h.fulfillment.BeginProcessing(ctx, stage.ID); err != nil {
		t.Fatalf("BeginProcessing() error = %v", err)
	}
	if _, err := h.fulfillment.BeginProcessing(ctx, stage.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second BeginProcessing() error = %v, want ErrInvalidTransition", err)
	}

	failed, err := h.fulfillment.Fail(ctx, stage.ID, "provider exploded")
	if err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if failed.Status != models.StageStatusFailed || failed.ErrorReason != "provider exploded" {
		t.Errorf("Fail() = %s %q", failed.Status, failed.ErrorReason)
	}

	requeued, err := h.fulfillment.Requeue(ctx, stage.ID)
	if err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	if requeued.Status != models.StageStatusPaid {
		t.Errorf("Requeue() status = %s, want PAID", requeued.Status)
	}

	if _, err := h.fulfillment.BeginProcessing(ctx, stage.ID); err != nil {
		t.Fatalf("BeginProcessing() after requeue error = %v", err)
	}
	if _, err := h.fulfillment.Complete(ctx, stage.ID, &models.Artifact{Type: models.ArtifactTypeText}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete() with empty artifact error = %v, want ErrInvalidTransition", err)
	}
	done, err := h.fulfillment.Complete(ctx, stage.ID, &models.Artifact{Type: models.ArtifactTypeText, Content: "стих"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if done.Status != models.StageStatusCompleted || done.FinishedAt == nil {
		t.Errorf("Complete() = %s finished=%v", done.Status, done.FinishedAt)
	}

	if _, err := h.fulfillment.Cancel(ctx, stage.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Cancel() of completed stage error = %v, want ErrInvalidTransition", err)
	}
}

func TestFulfillmentService_CancelInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stage := h.newPaidStage(t)
	if _, err := h.fulfillment.BeginProcessing(ctx, stage.ID); err != nil {
		t.Fatalf("BeginProcessing() error = %v", err)
	}

	inFlight, err := h.fulfillment.Cancel(ctx, stage.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !inFlight {
		t.Error("Cancel() inFlight = false for PROCESSING stage")
	}
	got := h.stage(t, stage.ID)
	if got.Status != models.StageStatusProcessing || !got.CancelRequested {
		t.Errorf("stage = %s cancel_requested=%v", got.Status, got.CancelRequested)
	}
}

func TestFulfillmentService_CancelOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stage, _ := h.newPendingOrder(t)

	n, err := h.fulfillment.CancelOrder(ctx, stage.OrderID)
	if err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CancelOrder() cancelled %d stages, want 1", n)
	}
	order, _ := h.repos.Order.GetByID(ctx, stage.OrderID)
	if order.Status != models.OrderStatusCancelled {
		t.Errorf("order status = %s, want CANCELLED", order.Status)
	}
}
