package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nortide/regflow/graph/emit"
	"github.com/nortide/regflow/graph/oracle"
	"github.com/nortide/regflow/graph/store"
)

// Status is a run's lifecycle state.
type Status string

// Run lifecycle states. Running and Suspended are live; Completed and
// Failed are terminal.
const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultMaxSteps bounds a run's step applications when Options.MaxSteps is
// zero. Generous for linear pipelines; the ceiling exists to stop routing
// loops (revision cycles that never converge), not to ration normal work.
const DefaultMaxSteps = 100

// Options configures an Executor.
type Options struct {
	// MaxSteps caps step applications per run (not per graph node), so a
	// cycle traversed repeatedly consumes budget on every pass. Zero means
	// DefaultMaxSteps.
	MaxSteps int

	// Metrics, when set, receives run and step observations. Nil disables
	// metrics collection.
	Metrics *PrometheusMetrics
}

// run is the executor's in-memory handle for one workflow execution.
type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	// snapshot holds a clone of the last committed envelope, swapped in
	// after every checkpoint. Query reads it without touching the fiber.
	snapshot atomic.Pointer[Envelope]

	mu     sync.Mutex
	status Status
	err    error
}

func (r *run) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func (r *run) state() (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.err
}

func (r *run) terminal() bool {
	s, _ := r.state()
	return s == StatusCompleted || s == StatusFailed
}

// Executor drives workflow runs over a validated graph.
//
// Each run executes on its own fiber (goroutine): Start returns as soon as
// the initial checkpoint is durable, and the run proceeds concurrently.
// Runs never share mutable state; an executor can drive any number of them.
//
// Execution discipline per step:
//
//  1. If the cursor step carries a gate whose predicate holds, suspend and
//     wait for Resolve, the deadline, or cancellation.
//  2. Execute the step and merge its update into the envelope.
//  3. Append the progress log record.
//  4. Resolve the successor (router consulted exactly once per application).
//  5. Persist the checkpoint. Only after the save returns are subscribers
//     notified, so an observed step is never lost to a crash.
//
// Failures (malformed oracle output, unroutable labels, contract
// violations, gate timeouts, budget exhaustion) stop the fiber without
// writing a checkpoint: the run's latest durable state stays at the last
// successful step, which is what makes Resume after an operator fix
// possible.
type Executor struct {
	graph   *Graph
	store   store.Store[*Envelope]
	oracle  oracle.Oracle
	emitter emit.Emitter
	broker  *emit.Broker
	gate    *Gate
	opts    Options

	mu   sync.Mutex
	runs map[string]*run
}

// NewExecutor creates an executor over a graph, a checkpoint store, and an
// oracle. The graph is validated here; wiring errors surface before any run
// starts.
//
// The emitter receives lifecycle events alongside the executor's own
// subscription broker; pass nil for broker-only delivery.
func NewExecutor(g *Graph, st store.Store[*Envelope], orc oracle.Oracle, emitter emit.Emitter, opts Options) (*Executor, error) {
	if g == nil {
		return nil, &BuildError{Message: "graph cannot be nil", Code: "NIL_GRAPH"}
	}
	if st == nil {
		return nil, &BuildError{Message: "store cannot be nil", Code: "NIL_STORE"}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	return &Executor{
		graph:   g,
		store:   st,
		oracle:  orc,
		emitter: emitter,
		broker:  emit.NewBroker(),
		gate:    NewGate(),
		opts:    opts,
		runs:    make(map[string]*run),
	}, nil
}

// Start begins a new run from the graph's entry step with the given initial
// fields.
//
// The initial checkpoint (sequence 1, cursor at the entry step) is durable
// before Start returns; the run then executes concurrently. Track it with
// Subscribe, Query, or Wait.
//
// Returns ErrDuplicateRun if the run ID is already known, in memory or in
// the store.
func (x *Executor) Start(ctx context.Context, runID string, initial Update) error {
	if runID == "" {
		return &BuildError{Message: "run ID cannot be empty", Code: "EMPTY_RUN_ID"}
	}

	if _, err := x.store.LoadLatest(ctx, runID); err == nil {
		return ErrDuplicateRun
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check run %s: %w", runID, err)
	}

	env := NewEnvelope(initial)
	env.SetCursor(x.graph.Entry())

	if err := x.checkpoint(ctx, runID, 1, env, StatusRunning); err != nil {
		return err
	}

	return x.launch(runID, env, 1)
}

// Resume continues a run from its latest durable checkpoint, typically in a
// fresh process after a crash, or after an operator fixed the cause of a
// failure.
//
// Semantics by durable status:
//   - completed: nothing to do; Resume returns nil without side effects.
//   - running: the step named by the cursor executes (again, if a crash
//     interrupted it mid-flight; steps are applied at least once). A run
//     that failed earlier also reads "running", because failures are not
//     checkpointed; resuming it re-attempts the failed step.
//
// Returns ErrRunNotFound for an unknown ID and ErrRunActive if the run is
// still executing in this process.
func (x *Executor) Resume(ctx context.Context, runID string) error {
	x.mu.Lock()
	if r, ok := x.runs[runID]; ok && !r.terminal() {
		x.mu.Unlock()
		return ErrRunActive
	}
	x.mu.Unlock()

	cp, err := x.store.LoadLatest(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	if Status(cp.Status) == StatusCompleted {
		return nil
	}

	env, err := cp.State.Clone()
	if err != nil {
		return fmt.Errorf("failed to restore run %s: %w", runID, err)
	}
	// An intervention open at crash time did not survive the process; the
	// gate re-opens with a fresh deadline when the fiber reaches the step.
	env.SetPending(nil)

	return x.launch(runID, env, cp.Seq)
}

// launch registers the run handle and starts its fiber.
func (x *Executor) launch(runID string, env *Envelope, seq int) error {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     runID,
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusRunning,
	}
	snap, err := env.Clone()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to snapshot run %s: %w", runID, err)
	}
	r.snapshot.Store(snap)

	x.mu.Lock()
	if prev, ok := x.runs[runID]; ok && !prev.terminal() {
		x.mu.Unlock()
		cancel()
		return ErrDuplicateRun
	}
	x.runs[runID] = r
	x.mu.Unlock()

	x.opts.Metrics.RunStarted()
	go x.loop(ctx, r, env, seq)
	return nil
}

// Resolve delivers an external decision to a run suspended at an
// intervention gate. Overrides are merged onto the envelope with overwrite
// semantics before the gated step executes.
//
// Returns ErrNoIntervention if the run has no open request (never opened,
// already resolved, or expired).
func (x *Executor) Resolve(runID string, overrides Update) error {
	return x.gate.Resolve(runID, overrides)
}

// Pending returns the open intervention request for a run, if any. This is
// the read-only view a transport exposes to external actors.
func (x *Executor) Pending(runID string) (Request, bool) {
	return x.gate.Pending(runID)
}

// Cancel stops a live run. The fiber observes the cancellation at its next
// step boundary (or immediately, if suspended at a gate) and fails the run
// with ErrCancelled. Cancelling an unknown or already-terminal run is a
// no-op.
func (x *Executor) Cancel(runID string) {
	x.mu.Lock()
	r, ok := x.runs[runID]
	x.mu.Unlock()
	if ok {
		r.cancel()
	}
}

// Query returns a consistent snapshot of a run's envelope and its status.
//
// For runs live in this process the snapshot is the last committed
// envelope: mid-step changes are never visible, and a run suspended at a
// gate shows the state awaiting the decision (including the pending
// intervention reference). For runs known only to the store, the latest
// checkpoint is returned.
func (x *Executor) Query(ctx context.Context, runID string) (*Envelope, Status, error) {
	x.mu.Lock()
	r, ok := x.runs[runID]
	x.mu.Unlock()

	if ok {
		status, _ := r.state()
		env, err := r.snapshot.Load().Clone()
		if err != nil {
			return nil, "", fmt.Errorf("failed to clone snapshot: %w", err)
		}
		return env, status, nil
	}

	cp, err := x.store.LoadLatest(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrRunNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	env, err := cp.State.Clone()
	if err != nil {
		return nil, "", fmt.Errorf("failed to clone checkpoint state: %w", err)
	}
	return env, Status(cp.Status), nil
}

// Subscribe returns a channel of the run's lifecycle events from this
// moment on, in order. The channel is closed after the terminal event. A
// slow subscriber misses events rather than slowing the run.
func (x *Executor) Subscribe(runID string) <-chan emit.Event {
	return x.broker.Subscribe(runID)
}

// Wait blocks until the run reaches a terminal state or the context ends.
// It returns the terminal status and, for failed runs, the causal error.
func (x *Executor) Wait(ctx context.Context, runID string) (Status, error) {
	x.mu.Lock()
	r, ok := x.runs[runID]
	x.mu.Unlock()
	if !ok {
		return "", ErrRunNotFound
	}

	select {
	case <-r.done:
		return r.state()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// loop is the run fiber: it walks the graph from the envelope's cursor
// until a terminal step, a failure, or cancellation.
func (x *Executor) loop(ctx context.Context, r *run, env *Envelope, seq int) {
	var finalErr error
	steps := 0

	for {
		if ctx.Err() != nil {
			finalErr = fmt.Errorf("run %s: %w", r.id, ErrCancelled)
			break
		}
		if steps >= x.opts.MaxSteps {
			finalErr = fmt.Errorf("run %s: %d steps: %w", r.id, steps, ErrStepBudgetExceeded)
			break
		}

		cur := env.Cursor()

		if policy, gated := x.graph.gate(cur); gated {
			if policy.When == nil || policy.When(env) {
				newSeq, err := x.suspend(ctx, r, env, seq, cur, policy)
				if err != nil {
					finalErr = err
					break
				}
				seq = newSeq
			}
		}

		start := time.Now()
		res, err := x.graph.registry.Execute(ctx, cur, env, x.oracle)
		if err != nil {
			x.opts.Metrics.RecordStep(cur, time.Since(start), "error")
			finalErr = fmt.Errorf("run %s: step %s: %w", r.id, cur, err)
			break
		}

		env.Apply(res.Update)
		env.AppendLog(LogRecord{StepID: cur, Note: res.Note, Timestamp: time.Now().UTC()})

		next, err := x.graph.ResolveNext(cur, env)
		if err != nil {
			x.opts.Metrics.RecordStep(cur, time.Since(start), "error")
			finalErr = fmt.Errorf("run %s: %w", r.id, err)
			break
		}

		steps++
		seq++
		status := StatusRunning
		if next == "" {
			status = StatusCompleted
		} else {
			env.SetCursor(next)
		}

		if err := x.checkpoint(ctx, r.id, seq, env, status); err != nil {
			finalErr = fmt.Errorf("run %s: %w", r.id, err)
			break
		}

		x.opts.Metrics.RecordStep(cur, time.Since(start), "success")
		x.publish(r, env)

		changed := make([]string, 0, len(res.Update))
		for f := range res.Update {
			changed = append(changed, string(f))
		}
		x.emit(emit.Event{
			RunID:  r.id,
			Seq:    seq,
			StepID: cur,
			Kind:   emit.KindStepCompleted,
			Msg:    res.Note,
			Meta: map[string]interface{}{
				"changed":    changed,
				"latency_ms": time.Since(start).Milliseconds(),
			},
			Timestamp: time.Now().UTC(),
		})

		if next == "" {
			x.emit(emit.Event{
				RunID:     r.id,
				Seq:       seq,
				StepID:    cur,
				Kind:      emit.KindCompleted,
				Timestamp: time.Now().UTC(),
			})
			x.finish(r, StatusCompleted, nil)
			return
		}
	}

	if ctx.Err() != nil && !errors.Is(finalErr, ErrCancelled) {
		finalErr = fmt.Errorf("run %s: %w", r.id, ErrCancelled)
	}

	x.emit(emit.Event{
		RunID:  r.id,
		StepID: env.Cursor(),
		Kind:   emit.KindFailed,
		Msg:    finalErr.Error(),
		Meta: map[string]interface{}{
			"error": finalErr.Error(),
		},
		Timestamp: time.Now().UTC(),
	})
	x.finish(r, StatusFailed, finalErr)
}

// suspend parks the fiber at an intervention gate until a decision, the
// deadline, or cancellation. On a decision (or a DefaultAccept timeout) the
// resolved envelope is checkpointed before the gated step executes, so a
// crash after resolution does not lose the decision.
func (x *Executor) suspend(ctx context.Context, r *run, env *Envelope, seq int, stepID string, policy GatePolicy) (int, error) {
	var payload map[string]string
	if policy.Payload != nil {
		payload = policy.Payload(env)
	}

	req, ch, err := x.gate.Open(r.id, stepID, payload, policy.Timeout)
	if err != nil {
		return seq, err
	}

	env.SetPending(&InterventionRef{StepID: stepID, OpenedAt: req.OpenedAt, Deadline: req.Deadline})
	r.setStatus(StatusSuspended)
	x.opts.Metrics.InterventionOpened()
	x.publish(r, env)
	x.emit(emit.Event{
		RunID:  r.id,
		Seq:    seq,
		StepID: stepID,
		Kind:   emit.KindSuspended,
		Meta: map[string]interface{}{
			"deadline": req.Deadline.Format(time.RFC3339),
		},
		Timestamp: time.Now().UTC(),
	})

	timer := time.NewTimer(time.Until(req.Deadline))
	defer timer.Stop()

	var resp Response
	resolved := false

	select {
	case resp = <-ch:
		resolved = true
	case <-timer.C:
		x.gate.expire(r.id)
		// A Resolve racing the deadline may have delivered already.
		select {
		case resp = <-ch:
			resolved = true
		default:
		}
	case <-ctx.Done():
		x.gate.expire(r.id)
		x.opts.Metrics.InterventionClosed(time.Since(req.OpenedAt))
		return seq, fmt.Errorf("run %s: intervention at %s: %w", r.id, stepID, ErrCancelled)
	}

	x.opts.Metrics.InterventionClosed(time.Since(req.OpenedAt))

	meta := map[string]interface{}{}
	if resolved {
		env.Apply(resp.Overrides)
		overridden := make([]string, 0, len(resp.Overrides))
		for f := range resp.Overrides {
			overridden = append(overridden, string(f))
		}
		meta["overrides"] = overridden
	} else if policy.DefaultAccept {
		meta["timeout_default"] = true
	} else {
		return seq, &InterventionTimeoutError{StepID: stepID, Deadline: req.Deadline}
	}

	env.Apply(policy.OnResolve)
	env.SetPending(nil)
	r.setStatus(StatusRunning)

	seq++
	if err := x.checkpoint(ctx, r.id, seq, env, StatusRunning); err != nil {
		return seq, fmt.Errorf("run %s: %w", r.id, err)
	}
	x.publish(r, env)
	x.emit(emit.Event{
		RunID:     r.id,
		Seq:       seq,
		StepID:    stepID,
		Kind:      emit.KindResumed,
		Meta:      meta,
		Timestamp: time.Now().UTC(),
	})

	return seq, nil
}

// checkpoint persists an immutable snapshot of the envelope. The clone
// decouples the stored state from the live envelope the fiber keeps
// mutating.
func (x *Executor) checkpoint(ctx context.Context, runID string, seq int, env *Envelope, status Status) error {
	clone, err := env.Clone()
	if err != nil {
		return fmt.Errorf("failed to snapshot envelope: %w", err)
	}
	cp := store.Checkpoint[*Envelope]{
		RunID:     runID,
		Seq:       seq,
		Cursor:    env.Cursor(),
		Status:    string(status),
		State:     clone,
		CreatedAt: time.Now().UTC(),
	}
	if err := x.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint %d: %w", seq, err)
	}
	return nil
}

// publish swaps the run's query snapshot for a clone of the current
// envelope. Best effort: a clone failure leaves the previous snapshot in
// place rather than failing the run.
func (x *Executor) publish(r *run, env *Envelope) {
	if snap, err := env.Clone(); err == nil {
		r.snapshot.Store(snap)
	}
}

// emit delivers an event to the broker and the configured emitter.
func (x *Executor) emit(ev emit.Event) {
	x.broker.Emit(ev)
	x.emitter.Emit(ev)
}

// finish records the terminal outcome and releases waiters. The handle
// stays registered so Query and Wait keep answering for finished runs; a
// failed run's handle is replaced if the run is later resumed.
func (x *Executor) finish(r *run, status Status, err error) {
	r.mu.Lock()
	r.status = status
	r.err = err
	r.mu.Unlock()

	switch {
	case status == StatusCompleted:
		x.opts.Metrics.RunFinished("completed")
	case errors.Is(err, ErrCancelled):
		x.opts.Metrics.RunFinished("cancelled")
	default:
		x.opts.Metrics.RunFinished("failed")
	}

	r.cancel()
	close(r.done)
}
