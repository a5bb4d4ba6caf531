// Package worker runs the generation pool that drains the job queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/versery-api/internal/queue"
)

// Processor generates the artifact for one stage.
type Processor interface {
	Process(ctx context.Context, stageID string) error
}

// Worker polls a queue and hands stage ids to a Processor.
type Worker struct {
	source       queue.Source
	processor    Processor
	pollInterval time.Duration
	concurrency  int
	stop         chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
}

// New creates a new worker.
func New(source queue.Source, processor Processor, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		source:       source,
		processor:    processor,
		pollInterval: cfg.PollInterval,
		concurrency:  cfg.Concurrency,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "worker"),
	}
}

// Start begins processing jobs.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "concurrency", w.concurrency, "poll_interval", w.pollInterval.String())

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}
}

// Stop gracefully stops the worker. Jobs already running are finished first.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx, workerID)
		}
	}
}

// drain processes jobs until the queue is empty or the worker is stopping.
func (w *Worker) drain(ctx context.Context, workerID int) {
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		if ctx.Err() != nil {
			return
		}
		if !w.processNextJob(ctx, workerID) {
			return
		}
	}
}

// processNextJob handles one delivery and reports whether there was one.
func (w *Worker) processNextJob(ctx context.Context, workerID int) bool {
	d, err := w.source.Next(ctx)
	if err != nil {
		if !errors.Is(err, queue.ErrClosed) {
			w.logger.Error("failed to fetch job", "worker_id", workerID, "error", err)
		}
		return false
	}
	if d == nil {
		return false
	}

	log := w.logger.With("worker_id", workerID, "stage_id", d.StageID)
	log.Debug("processing job")

	// Generation failures are recorded on the stage itself, so those
	// deliveries are settled. A job that never started goes back to the
	// queue, and the caller stops draining so it is not picked up at once.
	err = w.processor.Process(ctx, d.StageID)
	settleCtx := context.WithoutCancel(ctx)
	if errors.Is(err, queue.ErrRedeliver) {
		log.Warn("job not started, returning to queue", "error", err)
		if nerr := d.Nack(settleCtx, err); nerr != nil {
			log.Error("failed to nack job", "error", nerr)
		}
		return false
	}
	if err != nil {
		log.Warn("job finished with error", "error", err)
	}
	if err := d.Ack(settleCtx); err != nil {
		log.Error("failed to ack job", "error", err)
	}
	return true
}
