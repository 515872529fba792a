// Package oracle defines the external reasoning collaborator that workflow
// steps consult, along with adapters for the major LLM providers.
package oracle

import (
	"context"
	"errors"
)

// ErrUnavailable indicates a transient oracle failure (network error, rate
// limit, service overload). The workflow core does not retry on its own;
// callers may wrap an Oracle with a retry policy and treat this sentinel as
// the retryable class.
var ErrUnavailable = errors.New("oracle unavailable")

// Oracle is the opaque reasoning service a step consults.
//
// Implementations should:
//   - Respect context cancellation and deadlines (an invoke tied to a
//     cancelled run must abort, not complete into a discarded result)
//   - Translate provider-specific transient failures into ErrUnavailable
//     via error wrapping
//   - Make no retry guarantees of their own
//
// The core treats the returned text as opaque; parsing it against a step's
// declared shape is the step's job.
type Oracle interface {
	// Invoke sends a prompt to the reasoning service and returns its response.
	Invoke(ctx context.Context, prompt string) (Result, error)
}

// Result is the raw outcome of one oracle invocation.
type Result struct {
	// Text is the oracle's response verbatim.
	Text string

	// TokensIn and TokensOut report usage when the provider exposes it.
	// Zero when unknown.
	TokensIn  int
	TokensOut int

	// Model names the model that produced the response, when known.
	Model string
}

// Func adapts a plain function to the Oracle interface.
//
// Example:
//
//	orc := oracle.Func(func(ctx context.Context, prompt string) (oracle.Result, error) {
//	    return oracle.Result{Text: "canned"}, nil
//	})
type Func func(ctx context.Context, prompt string) (Result, error)

// Invoke implements the Oracle interface for Func.
func (f Func) Invoke(ctx context.Context, prompt string) (Result, error) {
	return f(ctx, prompt)
}
