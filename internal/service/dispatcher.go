package service

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/versery-api/internal/metrics"
	"github.com/jmylchreest/versery-api/internal/queue"
)

// Dispatcher hands paid stages to the generation queue. Dispatch never fails
// the caller: a dropped enqueue is logged and counted, and the reconcile
// sweep picks the stage up later because it stays PAID.
type Dispatcher struct {
	queue  queue.Dispatcher
	logger *slog.Logger
}

// NewDispatcher wraps a queue backend.
func NewDispatcher(q queue.Dispatcher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{queue: q, logger: logger.With("component", "dispatcher")}
}

// Dispatch enqueues stageID.
func (d *Dispatcher) Dispatch(ctx context.Context, stageID string) {
	if d == nil || d.queue == nil {
		return
	}
	if err := d.queue.Enqueue(ctx, stageID); err != nil {
		metrics.DispatchFailed()
		d.logger.Error("failed to enqueue stage", "stage_id", stageID, "error", err)
		return
	}
	d.logger.Debug("stage enqueued", "stage_id", stageID)
}
