package graph

import (
	"sync"
	"time"
)

// Request is the pending-decision record exposed to an external actor while
// a run is suspended at an intervention gate.
type Request struct {
	RunID    string            `json:"run_id"`
	StepID   string            `json:"step_id"`
	Payload  map[string]string `json:"payload,omitempty"`
	OpenedAt time.Time         `json:"opened_at"`
	Deadline time.Time         `json:"deadline"`
}

// Response is an external actor's decision on an open request. Overrides
// are merged onto the envelope with overwrite semantics: an override always
// replaces the prior value of its field.
type Response struct {
	RunID     string    `json:"run_id"`
	Overrides Update    `json:"overrides,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

type pendingRequest struct {
	req Request
	ch  chan Response
}

// Gate tracks open intervention requests, at most one per run.
//
// The executor opens a request and parks the run's fiber on the response
// channel; an external actor (typically the transport collaborator) resolves
// it. Suspension never blocks other runs and never involves a blocking read
// inside the execution fiber — resolution is pure message passing.
type Gate struct {
	mu   sync.Mutex
	open map[string]*pendingRequest
}

// NewGate creates an empty intervention gate.
func NewGate() *Gate {
	return &Gate{open: make(map[string]*pendingRequest)}
}

// Open registers a pending request for a run and returns it together with
// the channel the resolution will arrive on. Opening a second request while
// one is open is a caller error (ErrInterventionOpen).
//
// Open does not block; the executor owns the wait (response vs. deadline
// vs. cancellation).
func (g *Gate) Open(runID, stepID string, payload map[string]string, timeout time.Duration) (Request, <-chan Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.open[runID]; exists {
		return Request{}, nil, ErrInterventionOpen
	}

	now := time.Now()
	req := Request{
		RunID:    runID,
		StepID:   stepID,
		Payload:  payload,
		OpenedAt: now,
		Deadline: now.Add(timeout),
	}
	p := &pendingRequest{req: req, ch: make(chan Response, 1)}
	g.open[runID] = p
	return req, p.ch, nil
}

// Resolve delivers an external decision to the run suspended on the given
// request. Exactly one Resolve succeeds per open request; once resolved
// (or expired) the request is closed and further calls return
// ErrNoIntervention.
func (g *Gate) Resolve(runID string, overrides Update) error {
	g.mu.Lock()
	p, ok := g.open[runID]
	if ok {
		delete(g.open, runID)
	}
	g.mu.Unlock()

	if !ok {
		return ErrNoIntervention
	}

	p.ch <- Response{RunID: runID, Overrides: overrides, DecidedAt: time.Now()}
	return nil
}

// Pending returns the open request for a run, if any. Serves read-only
// inspection (the transport's pending-decision view) without touching the
// request's lifecycle.
func (g *Gate) Pending(runID string) (Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.open[runID]
	if !ok {
		return Request{}, false
	}
	return p.req, true
}

// expire closes an open request without a response; called by the executor
// on deadline or run cancellation. A concurrent Resolve that already removed
// the request wins, and its response (already buffered) is ignored by the
// caller.
func (g *Gate) expire(runID string) {
	g.mu.Lock()
	delete(g.open, runID)
	g.mu.Unlock()
}
