package graph

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the run-failure taxonomy. Structured error types below
// match these through errors.Is, so callers can classify a terminal error
// without depending on the concrete type:
//
//	if errors.Is(err, graph.ErrInterventionTimeout) { ... }
var (
	// ErrMalformedOracleResponse indicates a step could not parse the oracle
	// output against its declared shape. The run is not advanced with
	// partial data.
	ErrMalformedOracleResponse = errors.New("malformed oracle response")

	// ErrUnroutableState indicates a router returned a label with no
	// declared target. This is a graph configuration bug; the run fails.
	ErrUnroutableState = errors.New("unroutable state")

	// ErrInterventionTimeout indicates no external decision arrived before
	// the intervention deadline.
	ErrInterventionTimeout = errors.New("intervention timeout")

	// ErrStepBudgetExceeded indicates the run hit the executor's iteration
	// ceiling, the guard against unbounded routing loops.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")

	// ErrCancelled indicates the run was cancelled externally.
	ErrCancelled = errors.New("run cancelled")

	// ErrContractViolation indicates a step returned an update touching a
	// field outside its declared contract.
	ErrContractViolation = errors.New("update outside step contract")

	// ErrInterventionOpen is returned when opening an intervention while one
	// is already open for the run. At most one request may be open per run.
	ErrInterventionOpen = errors.New("intervention request already open")

	// ErrNoIntervention is returned when resolving a run that has no open
	// intervention request.
	ErrNoIntervention = errors.New("no open intervention request")

	// ErrRunNotFound is returned for operations on an unknown run ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateRun is returned when starting a run whose ID is already
	// registered.
	ErrDuplicateRun = errors.New("duplicate run ID")

	// ErrRunActive is returned when resuming a run that is still executing
	// in this process.
	ErrRunActive = errors.New("run is active")
)

// MalformedResponseError reports a step's failure to parse oracle output.
// It carries the raw text so the caller can inspect what came back; the core
// never guesses or partially applies an unparseable result.
type MalformedResponseError struct {
	StepID string
	Raw    string
	Cause  error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("step %s: malformed oracle response: %v", e.StepID, e.Cause)
}

// Unwrap returns the underlying parse error.
func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// Is matches ErrMalformedOracleResponse.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedOracleResponse
}

// UnroutableError reports a router label with no declared target.
type UnroutableError struct {
	StepID string
	Label  Label
}

// Error implements the error interface.
func (e *UnroutableError) Error() string {
	return fmt.Sprintf("step %s: router returned undeclared label %q", e.StepID, e.Label)
}

// Is matches ErrUnroutableState.
func (e *UnroutableError) Is(target error) bool {
	return target == ErrUnroutableState
}

// ContractViolationError reports an update field outside a step's declared
// contract.
type ContractViolationError struct {
	StepID string
	Field  Field
}

// Error implements the error interface.
func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("step %s: update field %q outside declared contract", e.StepID, e.Field)
}

// Is matches ErrContractViolation.
func (e *ContractViolationError) Is(target error) bool {
	return target == ErrContractViolation
}

// InterventionTimeoutError reports an intervention request whose deadline
// elapsed with no response.
type InterventionTimeoutError struct {
	StepID   string
	Deadline time.Time
}

// Error implements the error interface.
func (e *InterventionTimeoutError) Error() string {
	return fmt.Sprintf("step %s: intervention deadline %s elapsed without a response",
		e.StepID, e.Deadline.Format(time.RFC3339))
}

// Is matches ErrInterventionTimeout.
func (e *InterventionTimeoutError) Is(target error) bool {
	return target == ErrInterventionTimeout
}

// BuildError reports an invalid graph or registry construction call.
// These are authoring errors caught at build time, never at run time.
type BuildError struct {
	Message string
	Code    string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
