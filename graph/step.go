package graph

import (
	"context"
	"sync"

	"github.com/nortide/regflow/graph/oracle"
)

// ApplyFunc is a step's state transformation. It receives the current
// envelope (read-only by convention; the executor merges the returned
// update) and the oracle collaborator, and returns the partial update the
// step produced.
//
// Steps must tolerate at-least-once application: after a crash, the executor
// conservatively re-executes the step recorded as in-flight in the last
// durable checkpoint.
//
// A step that cannot parse the oracle's output against its declared shape
// must return a *MalformedResponseError carrying the raw text, never a
// guessed or partial update.
type ApplyFunc func(ctx context.Context, env *Envelope, orc oracle.Oracle) (StepResult, error)

// StepResult is the output of one step application.
type StepResult struct {
	// Update is the partial state update to merge into the envelope.
	// Every field it touches must appear in the step's declared contract.
	Update Update

	// Note summarizes the application for the envelope's progress log.
	// The executor, not the step, appends the log record, so the log entry
	// is a core guarantee rather than a step-author obligation.
	Note string
}

type stepDef struct {
	id       string
	contract map[Field]bool
	apply    ApplyFunc
}

// Registry holds the named units of work a graph executes.
//
// Each step registers with an update contract: the closed set of fields its
// updates may write. Contracts make field ownership explicit — every field
// mutation during a run is produced by exactly one step's contract — and turn
// a mistyped field name into a registration-time or execution-time error
// instead of a silent no-op.
//
// Registry performs no persistence; its only side effect is invoking the
// oracle collaborator through the step.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]*stepDef
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]*stepDef)}
}

// Register adds a step under a unique ID with its update contract.
//
// Returns a BuildError if the ID is empty or duplicated, or the apply
// function is nil. An empty contract is valid for pure steps that only
// route or log.
func (r *Registry) Register(id string, contract []Field, fn ApplyFunc) error {
	if id == "" {
		return &BuildError{Message: "step ID cannot be empty", Code: "EMPTY_STEP_ID"}
	}
	if fn == nil {
		return &BuildError{Message: "apply function cannot be nil: " + id, Code: "NIL_APPLY"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[id]; exists {
		return &BuildError{Message: "duplicate step ID: " + id, Code: "DUPLICATE_STEP"}
	}

	set := make(map[Field]bool, len(contract))
	for _, f := range contract {
		set[f] = true
	}
	r.steps[id] = &stepDef{id: id, contract: set, apply: fn}
	return nil
}

// Contract returns the declared update contract of a step, or nil if the
// step is unknown.
func (r *Registry) Contract(id string) []Field {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.steps[id]
	if !ok {
		return nil
	}
	out := make([]Field, 0, len(def.contract))
	for f := range def.contract {
		out = append(out, f)
	}
	return out
}

// Has reports whether a step is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.steps[id]
	return ok
}

// Execute runs a step against the envelope and oracle and returns its
// partial update.
//
// The returned update is verified against the step's declared contract; a
// field outside it fails with a ContractViolationError. Errors from the
// apply function (including MalformedResponseError and oracle failures)
// propagate unchanged — Execute neither retries nor persists anything.
func (r *Registry) Execute(ctx context.Context, id string, env *Envelope, orc oracle.Oracle) (StepResult, error) {
	r.mu.RLock()
	def, ok := r.steps[id]
	r.mu.RUnlock()

	if !ok {
		return StepResult{}, &BuildError{Message: "step not registered: " + id, Code: "STEP_NOT_FOUND"}
	}

	res, err := def.apply(ctx, env, orc)
	if err != nil {
		return StepResult{}, err
	}

	for f := range res.Update {
		if !def.contract[f] {
			return StepResult{}, &ContractViolationError{StepID: id, Field: f}
		}
	}

	return res, nil
}
