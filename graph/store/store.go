// Package store provides durable checkpoint persistence for workflow runs.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run has no checkpoints.
var ErrNotFound = errors.New("not found")

// ErrStaleSequence is returned when saving a checkpoint whose sequence
// number does not exceed the latest one for the run. Sequence numbers are
// strictly increasing per run; a stale save indicates two writers or a
// logic error, never something to resolve silently.
var ErrStaleSequence = errors.New("checkpoint sequence not increasing")

// Checkpoint is an immutable snapshot of a run: its state envelope plus the
// cursor naming the step about to execute. One is written after every
// successful step application and after every intervention resolution;
// none is ever mutated after creation.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Checkpoint[S any] struct {
	// RunID identifies the run this checkpoint belongs to.
	RunID string `json:"run_id"`

	// Seq is the checkpoint sequence number, strictly increasing per run.
	Seq int `json:"seq"`

	// Cursor names the step about to execute when resuming from this
	// checkpoint (or the terminal step, for a completed run).
	Cursor string `json:"cursor"`

	// Status is the run status at checkpoint time ("running", "completed").
	// Failures are not checkpointed, so a failed run's latest checkpoint
	// still reads "running" — that is what makes administrative restart
	// after a fix possible.
	Status string `json:"status"`

	// State is the envelope snapshot.
	State S `json:"state"`

	// CreatedAt records when this checkpoint was written.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists run checkpoints with write-ahead discipline: Save must not
// return until the checkpoint is durable (to the backend's durability
// level), because the executor acknowledges a step to subscribers only
// after the save returns.
//
// Retention beyond the latest checkpoint per run is an implementation
// choice; correctness needs only the latest.
//
// Implementations in this package:
//   - MemStore: in-memory, for tests (does not survive restarts)
//   - SQLiteStore: single-file durability, zero-setup local persistence
//   - MySQLStore: production persistence with connection pooling
type Store[S any] interface {
	// Save appends a checkpoint. Returns ErrStaleSequence if cp.Seq does
	// not exceed the run's latest sequence number.
	Save(ctx context.Context, cp Checkpoint[S]) error

	// LoadLatest returns the run's most recent checkpoint, or ErrNotFound.
	LoadLatest(ctx context.Context, runID string) (Checkpoint[S], error)

	// History returns the run's retained checkpoints in sequence order.
	// An empty history is not an error.
	History(ctx context.Context, runID string) ([]Checkpoint[S], error)
}
