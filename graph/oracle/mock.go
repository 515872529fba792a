package oracle

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Mock is a test implementation of Oracle.
//
// Use Mock in tests to verify workflow behavior without making actual LLM
// API calls. It provides:
//   - Scripted responses (returned in order, last one repeats)
//   - Keyword routing (respond based on prompt content)
//   - Call history tracking
//   - Error injection
//   - Optional latency simulation
//   - Thread-safe operation
//
// Example with scripted responses:
//
//	mock := &oracle.Mock{
//	    Responses: []string{"first", "second"},
//	}
//	out, _ := mock.Invoke(ctx, "prompt")
//	// Returns "first", then "second" on subsequent calls
//
// Example with keyword routing:
//
//	mock := &oracle.Mock{
//	    Routes: map[string]string{
//	        "extract_terms":  "FCA, REP-CRIM",
//	        "classify_theme": `{"theme": "Financial Crime", "reasoning": "..."}`,
//	    },
//	}
//	// Invoke returns the value whose key appears in the prompt.
type Mock struct {
	// Responses contains the sequence of responses to return.
	// If all responses are consumed, the last response repeats.
	Responses []string

	// Routes maps a prompt substring to a response. Checked before
	// Responses. Keys should be mutually exclusive per prompt; when several
	// match, which one wins is unspecified.
	Routes map[string]string

	// Err, if set, is returned by Invoke instead of a response.
	Err error

	// Latency, if set, delays each Invoke (respecting ctx cancellation).
	// Useful for exercising cancellation paths.
	Latency time.Duration

	// Calls records every prompt passed to Invoke.
	Calls []string

	mu        sync.Mutex
	callIndex int
}

// Invoke implements the Oracle interface.
//
// Always records the prompt in Calls, regardless of success or failure.
func (m *Mock) Invoke(ctx context.Context, prompt string) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, prompt)

	if m.Err != nil {
		return Result{}, m.Err
	}

	for key, resp := range m.Routes {
		if strings.Contains(prompt, key) {
			return Result{Text: resp, Model: "mock"}, nil
		}
	}

	if len(m.Responses) == 0 {
		return Result{Model: "mock"}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}

	return Result{Text: m.Responses[idx], Model: "mock"}, nil
}

// Reset clears the call history and resets the response index.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of times Invoke has been called.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
