package graph

import (
	"time"
)

// Label is a router outcome. Each conditional edge declares a closed set of
// labels; a router returning anything outside that set is an UnroutableError
// at run time, and the set itself is validated at build time so an empty or
// dangling label map never reaches execution.
type Label string

// RouterFunc selects the next hop for a conditional edge by inspecting the
// current envelope. Routers should be pure: deterministic and side-effect
// free.
type RouterFunc func(env *Envelope) Label

// GatePolicy configures an intervention gate on a step. The executor
// consults the policy when the step is about to execute: if When holds (or
// is nil), the run suspends until an external actor resolves the request or
// the deadline elapses.
type GatePolicy struct {
	// Timeout is the wall-clock deadline for the external decision.
	// Zero means DefaultGateTimeout.
	Timeout time.Duration

	// When guards the gate. Nil gates unconditionally; otherwise the gate
	// opens only when the predicate holds for the current envelope.
	When func(env *Envelope) bool

	// Payload builds the request payload shown to the external actor,
	// typically the proposal awaiting review. Nil means an empty payload.
	Payload func(env *Envelope) map[string]string

	// DefaultAccept, when true, lets a timed-out gate fall through as if it
	// had been resolved with no overrides, instead of failing the run.
	DefaultAccept bool

	// OnResolve is merged into the envelope whenever the gate is passed —
	// on resolution and on a DefaultAccept timeout. Use it to clear the
	// flag that When tested, so a resumed run does not re-open a gate that
	// was already decided.
	OnResolve Update
}

// DefaultGateTimeout applies when a GatePolicy leaves Timeout zero.
const DefaultGateTimeout = 10 * time.Minute

// edgeDef is the single outgoing transition of a step: either an
// unconditional target, or a router with a closed label map.
type edgeDef struct {
	to     string
	router RouterFunc
	labels map[Label]string
}

// Graph is the wiring of registered steps: one entry point, unconditional
// and conditional edges, terminal markers, and gate policies.
//
// Build a graph, then call Validate before execution; the executor refuses
// unvalidated graphs. Self-loops and back edges are permitted — they are the
// retry/re-ask mechanism — and are bounded by the executor's step budget,
// not by the graph.
type Graph struct {
	registry  *Registry
	entry     string
	edges     map[string]edgeDef
	terminals map[string]bool
	gates     map[string]GatePolicy
	validated bool
}

// NewGraph creates an empty graph over the given step registry.
func NewGraph(registry *Registry) *Graph {
	return &Graph{
		registry:  registry,
		edges:     make(map[string]edgeDef),
		terminals: make(map[string]bool),
		gates:     make(map[string]GatePolicy),
	}
}

// SetEntry names the step execution starts at.
func (g *Graph) SetEntry(stepID string) error {
	if !g.registry.Has(stepID) {
		return &BuildError{Message: "entry step not registered: " + stepID, Code: "STEP_NOT_FOUND"}
	}
	g.entry = stepID
	g.validated = false
	return nil
}

// Entry returns the entry step ID.
func (g *Graph) Entry() string {
	return g.entry
}

// MarkTerminal marks a step as a graph exit: after it executes, the run
// completes. ResolveNext returns no successor for terminal steps even if
// edges exist.
func (g *Graph) MarkTerminal(stepID string) error {
	if !g.registry.Has(stepID) {
		return &BuildError{Message: "terminal step not registered: " + stepID, Code: "STEP_NOT_FOUND"}
	}
	g.terminals[stepID] = true
	g.validated = false
	return nil
}

// Terminal reports whether a step is marked terminal.
func (g *Graph) Terminal(stepID string) bool {
	return g.terminals[stepID]
}

// AddEdge wires an unconditional transition. A step has exactly one
// outgoing transition (unconditional or conditional); wiring a second is a
// build error.
func (g *Graph) AddEdge(from, to string) error {
	if err := g.checkFrom(from); err != nil {
		return err
	}
	if !g.registry.Has(to) {
		return &BuildError{Message: "edge target not registered: " + to, Code: "STEP_NOT_FOUND"}
	}
	g.edges[from] = edgeDef{to: to}
	g.validated = false
	return nil
}

// AddConditionalEdge wires a routed transition: at run time the router is
// evaluated against the envelope and its label looked up in the map. The
// label set is closed — every declared label must target a registered step,
// and an undeclared label at run time is an UnroutableError.
func (g *Graph) AddConditionalEdge(from string, router RouterFunc, routes map[Label]string) error {
	if err := g.checkFrom(from); err != nil {
		return err
	}
	if router == nil {
		return &BuildError{Message: "router cannot be nil: " + from, Code: "NIL_ROUTER"}
	}
	if len(routes) == 0 {
		return &BuildError{Message: "conditional edge needs at least one label: " + from, Code: "EMPTY_LABEL_MAP"}
	}
	for label, to := range routes {
		if !g.registry.Has(to) {
			return &BuildError{
				Message: "label " + string(label) + " targets unregistered step: " + to,
				Code:    "STEP_NOT_FOUND",
			}
		}
	}
	copied := make(map[Label]string, len(routes))
	for label, to := range routes {
		copied[label] = to
	}
	g.edges[from] = edgeDef{router: router, labels: copied}
	g.validated = false
	return nil
}

func (g *Graph) checkFrom(from string) error {
	if !g.registry.Has(from) {
		return &BuildError{Message: "edge source not registered: " + from, Code: "STEP_NOT_FOUND"}
	}
	if _, exists := g.edges[from]; exists {
		return &BuildError{Message: "step already has an outgoing edge: " + from, Code: "DUPLICATE_EDGE"}
	}
	return nil
}

// Gate attaches an intervention gate to a step. When the executor is about
// to run the step and the policy's predicate holds, the run suspends
// awaiting an external decision.
func (g *Graph) Gate(stepID string, policy GatePolicy) error {
	if !g.registry.Has(stepID) {
		return &BuildError{Message: "gated step not registered: " + stepID, Code: "STEP_NOT_FOUND"}
	}
	if policy.Timeout == 0 {
		policy.Timeout = DefaultGateTimeout
	}
	g.gates[stepID] = policy
	g.validated = false
	return nil
}

func (g *Graph) gate(stepID string) (GatePolicy, bool) {
	p, ok := g.gates[stepID]
	return p, ok
}

// Validate checks the graph wiring. A step with neither an outgoing edge
// nor a terminal mark is a configuration error here, at build time — never a
// run-time surprise.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return &BuildError{Message: "entry step not set (call SetEntry)", Code: "NO_ENTRY"}
	}
	for from := range g.edges {
		if g.terminals[from] {
			return &BuildError{
				Message: "terminal step cannot have an outgoing edge: " + from,
				Code:    "TERMINAL_EDGE",
			}
		}
	}
	// Every step reachable as an edge target or entry must either be
	// terminal or have an outgoing transition.
	check := func(id string) error {
		if g.terminals[id] {
			return nil
		}
		if _, ok := g.edges[id]; !ok {
			return &BuildError{
				Message: "step has no outgoing edge and is not terminal: " + id,
				Code:    "DEAD_END",
			}
		}
		return nil
	}
	if err := check(g.entry); err != nil {
		return err
	}
	for _, e := range g.edges {
		if e.to != "" {
			if err := check(e.to); err != nil {
				return err
			}
			continue
		}
		for _, to := range e.labels {
			if err := check(to); err != nil {
				return err
			}
		}
	}
	g.validated = true
	return nil
}

// ResolveNext returns the successor of a step for the current envelope.
//
// Terminal steps have no successor ("" with nil error). Unconditional edges
// return their target; conditional edges evaluate the router and look the
// label up in the declared map. An undeclared label fails fast with an
// UnroutableError — it is never routed silently.
func (g *Graph) ResolveNext(stepID string, env *Envelope) (string, error) {
	if g.terminals[stepID] {
		return "", nil
	}

	e, ok := g.edges[stepID]
	if !ok {
		// Unreachable on a validated graph.
		return "", &BuildError{Message: "no route from step: " + stepID, Code: "NO_ROUTE"}
	}

	if e.router == nil {
		return e.to, nil
	}

	label := e.router(env)
	to, declared := e.labels[label]
	if !declared {
		return "", &UnroutableError{StepID: stepID, Label: label}
	}
	return to, nil
}
