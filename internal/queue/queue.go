// Package queue carries generation jobs, identified by stage id, from the
// webhook path to the workers. Delivery is at-least-once; the worker's
// PAID -> PROCESSING claim makes duplicates harmless.
package queue

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by Next after the queue has been closed.
	ErrClosed = errors.New("queue closed")
	// ErrRedeliver is wrapped by a processor whose job never started and
	// should be handed out again after the backend's retry delay.
	ErrRedeliver = errors.New("redeliver job")
)

// Dispatcher accepts stage ids for generation.
type Dispatcher interface {
	Enqueue(ctx context.Context, stageID string) error
}

// Source hands out queued stage ids. Next returns (nil, nil) when nothing is
// available right now; it never blocks waiting for work.
type Source interface {
	Next(ctx context.Context) (*Delivery, error)
}

// Queue is a backend that is both a Dispatcher and a Source.
type Queue interface {
	Dispatcher
	Source
	Close() error
}

// Delivery is one handed-out job. Exactly one of Ack or Nack should be called.
type Delivery struct {
	StageID string

	ack  func(ctx context.Context) error
	nack func(ctx context.Context, reason string) error
}

// NewDelivery builds a delivery with backend-specific settlement functions.
func NewDelivery(stageID string, ack func(context.Context) error, nack func(context.Context, string) error) *Delivery {
	return &Delivery{StageID: stageID, ack: ack, nack: nack}
}

// Ack marks the job done.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Nack returns the job to the queue for redelivery.
func (d *Delivery) Nack(ctx context.Context, cause error) error {
	if d.nack == nil {
		return nil
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return d.nack(ctx, reason)
}
