package queue

import (
	"context"
	"sync"
)

// Memory is an in-process queue for tests and single-binary local runs.
type Memory struct {
	mu      sync.Mutex
	pending []string
	acked   []string
	nacked  []string
	closed  bool
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Enqueue(ctx context.Context, stageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.pending = append(m.pending, stageID)
	return nil
}

func (m *Memory) Next(ctx context.Context) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if len(m.pending) == 0 {
		return nil, nil
	}
	stageID := m.pending[0]
	m.pending = m.pending[1:]

	return NewDelivery(stageID,
		func(context.Context) error {
			m.mu.Lock()
			m.acked = append(m.acked, stageID)
			m.mu.Unlock()
			return nil
		},
		func(context.Context, string) error {
			m.mu.Lock()
			m.nacked = append(m.nacked, stageID)
			m.pending = append(m.pending, stageID)
			m.mu.Unlock()
			return nil
		},
	), nil
}

// Pending returns the stage ids waiting to be delivered.
func (m *Memory) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.pending...)
}

// Acked returns the stage ids acknowledged so far.
func (m *Memory) Acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

// Nacked returns the stage ids returned for redelivery so far.
func (m *Memory) Nacked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.nacked...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
