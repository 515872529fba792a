package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for:
//   - Testing and development
//   - Short-lived workflows where persistence isn't required
//
// MemStore is thread-safe. It satisfies the Store contract except for
// durability: data is lost when the process terminates, so it cannot carry
// crash recovery across restarts.
//
// Type parameter S is the state type to persist.
type MemStore[S any] struct {
	mu          sync.RWMutex
	checkpoints map[string][]Checkpoint[S] // runID -> checkpoints in seq order
}

// NewMemStore creates a new in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{checkpoints: make(map[string][]Checkpoint[S])}
}

// Save appends a checkpoint, enforcing strictly increasing sequence numbers
// per run.
func (m *MemStore[S]) Save(_ context.Context, cp Checkpoint[S]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.checkpoints[cp.RunID]
	if len(history) > 0 && cp.Seq <= history[len(history)-1].Seq {
		return ErrStaleSequence
	}

	m.checkpoints[cp.RunID] = append(history, cp)
	return nil
}

// LoadLatest returns the run's most recent checkpoint.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.checkpoints[runID]
	if len(history) == 0 {
		var zero Checkpoint[S]
		return zero, ErrNotFound
	}
	return history[len(history)-1], nil
}

// History returns all retained checkpoints for a run in sequence order.
func (m *MemStore[S]) History(_ context.Context, runID string) ([]Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.checkpoints[runID]
	out := make([]Checkpoint[S], len(history))
	copy(out, history)
	return out, nil
}

// Drop removes a run's checkpoints. Retention/reaping is a collaborator
// concern; this is the hook it uses.
func (m *MemStore[S]) Drop(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checkpoints, runID)
	return nil
}
