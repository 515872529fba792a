// Package emit provides observability events for workflow run execution.
package emit

import "time"

// Kind classifies a run lifecycle event.
type Kind string

const (
	// KindStepCompleted is emitted after a step's update has been applied
	// and the resulting checkpoint is durable. Subscribers therefore never
	// observe a step that could be lost to a crash.
	KindStepCompleted Kind = "step_completed"

	// KindSuspended is emitted when a run parks at an intervention gate
	// and a pending decision is opened.
	KindSuspended Kind = "suspended"

	// KindResumed is emitted when an intervention is resolved (or times
	// out onto its default path) and the run continues.
	KindResumed Kind = "resumed"

	// KindCompleted is emitted once, when the run reaches a terminal step.
	KindCompleted Kind = "completed"

	// KindFailed is emitted once, when the run stops on an error. Meta
	// carries the error detail under "error".
	KindFailed Kind = "failed"
)

// Event represents an observability event emitted during run execution.
//
// Events provide insight into run behavior:
//   - Step completion with the fields each step changed
//   - Suspension and resumption at intervention gates
//   - Terminal outcomes (completed, failed)
//
// Events are emitted to an Emitter which can:
//   - Log to stdout/stderr
//   - Send to OpenTelemetry
//   - Fan out to live subscribers (Broker)
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Seq is the checkpoint sequence the event corresponds to. Zero for
	// events that do not advance the checkpoint stream (failures).
	Seq int

	// StepID identifies which step the event concerns. Empty for
	// run-level events.
	StepID string

	// Kind classifies the event.
	Kind Kind

	// Msg is a human-readable description of the event.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "changed": Fields the step wrote
	//   - "route": Label the router chose
	//   - "error": Error details for failed events
	//   - "deadline": Intervention deadline (RFC 3339)
	//   - "latency_ms": Step execution latency in milliseconds
	Meta map[string]interface{}

	// Timestamp records when the event was emitted.
	Timestamp time.Time
}

// Terminal reports whether the event ends the run's event stream.
// Subscribers can stop reading after a terminal event; the Broker closes
// their channels on one.
func (e Event) Terminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindFailed
}
