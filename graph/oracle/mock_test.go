package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestMock_Responses verifies scripted responses return in order with the
// last one repeating.
func TestMock_Responses(t *testing.T) {
	ctx := context.Background()
	m := &Mock{Responses: []string{"first", "second"}}

	for _, want := range []string{"first", "second", "second"} {
		res, err := m.Invoke(ctx, "prompt")
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if res.Text != want {
			t.Errorf("expected %q, got %q", want, res.Text)
		}
	}
	if m.CallCount() != 3 {
		t.Errorf("expected 3 calls recorded, got %d", m.CallCount())
	}
}

// TestMock_Routes verifies keyword routing takes precedence.
func TestMock_Routes(t *testing.T) {
	ctx := context.Background()
	m := &Mock{
		Responses: []string{"fallback"},
		Routes: map[string]string{
			"classify": `{"theme": "Financial Crime"}`,
		},
	}

	res, _ := m.Invoke(ctx, "please classify this obligation")
	if res.Text != `{"theme": "Financial Crime"}` {
		t.Errorf("expected routed response, got %q", res.Text)
	}

	res, _ = m.Invoke(ctx, "something else")
	if res.Text != "fallback" {
		t.Errorf("expected fallback response, got %q", res.Text)
	}
}

// TestMock_ErrorInjection verifies injected errors still record calls.
func TestMock_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	m := &Mock{Err: boom}

	if _, err := m.Invoke(ctx, "prompt"); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
	if m.CallCount() != 1 {
		t.Errorf("expected call recorded despite error, got %d", m.CallCount())
	}
}

// TestMock_LatencyCancellation verifies a cancelled context aborts a slow
// invoke.
func TestMock_LatencyCancellation(t *testing.T) {
	m := &Mock{Responses: []string{"late"}, Latency: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Invoke(ctx, "prompt")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Invoke did not abort promptly on cancellation")
	}
}

// TestMock_Reset verifies history and index reset.
func TestMock_Reset(t *testing.T) {
	ctx := context.Background()
	m := &Mock{Responses: []string{"a", "b"}}
	_, _ = m.Invoke(ctx, "one")
	_, _ = m.Invoke(ctx, "two")

	m.Reset()

	if m.CallCount() != 0 {
		t.Errorf("expected empty history after Reset, got %d", m.CallCount())
	}
	res, _ := m.Invoke(ctx, "again")
	if res.Text != "a" {
		t.Errorf("expected response index reset, got %q", res.Text)
	}
}

// TestFunc verifies the function adapter.
func TestFunc(t *testing.T) {
	orc := Func(func(_ context.Context, prompt string) (Result, error) {
		return Result{Text: "echo: " + prompt}, nil
	})

	res, err := orc.Invoke(context.Background(), "hi")
	if err != nil || res.Text != "echo: hi" {
		t.Errorf("unexpected result: %+v (%v)", res, err)
	}
}
