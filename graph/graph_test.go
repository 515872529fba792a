package graph

import (
	"errors"
	"testing"
)

func testRegistry(t *testing.T, ids ...string) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, id := range ids {
		if err := reg.Register(id, nil, noopStep); err != nil {
			t.Fatalf("Register(%s) failed: %v", id, err)
		}
	}
	return reg
}

// TestGraph_Build verifies wiring validation at construction time.
func TestGraph_Build(t *testing.T) {
	t.Run("edge to unregistered step rejected", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a"))
		if err := g.AddEdge("a", "ghost"); err == nil {
			t.Error("expected error for unregistered target")
		}
	})

	t.Run("second outgoing edge rejected", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "b", "c"))
		if err := g.AddEdge("a", "b"); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
		if err := g.AddEdge("a", "c"); err == nil {
			t.Error("expected error for second outgoing edge")
		}
	})

	t.Run("conditional edge needs labels and router", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "b"))
		if err := g.AddConditionalEdge("a", nil, map[Label]string{"x": "b"}); err == nil {
			t.Error("expected error for nil router")
		}
		if err := g.AddConditionalEdge("a", func(*Envelope) Label { return "x" }, nil); err == nil {
			t.Error("expected error for empty label map")
		}
	})

	t.Run("label targeting unregistered step rejected", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a"))
		err := g.AddConditionalEdge("a", func(*Envelope) Label { return "x" }, map[Label]string{"x": "ghost"})
		if err == nil {
			t.Error("expected error for unregistered label target")
		}
	})
}

// TestGraph_Validate verifies whole-graph checks.
func TestGraph_Validate(t *testing.T) {
	t.Run("missing entry", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a"))
		_ = g.MarkTerminal("a")
		if err := g.Validate(); err == nil {
			t.Error("expected error for missing entry")
		}
	})

	t.Run("dead end detected", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "b"))
		_ = g.SetEntry("a")
		_ = g.AddEdge("a", "b")
		// b has no edge and is not terminal.
		if err := g.Validate(); err == nil {
			t.Error("expected dead-end error")
		}
	})

	t.Run("terminal with outgoing edge rejected", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "b"))
		_ = g.SetEntry("a")
		_ = g.AddEdge("a", "b")
		_ = g.MarkTerminal("a")
		_ = g.MarkTerminal("b")
		if err := g.Validate(); err == nil {
			t.Error("expected error for terminal with outgoing edge")
		}
	})

	t.Run("valid linear graph", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "b"))
		_ = g.SetEntry("a")
		_ = g.AddEdge("a", "b")
		_ = g.MarkTerminal("b")
		if err := g.Validate(); err != nil {
			t.Errorf("Validate failed: %v", err)
		}
	})

	t.Run("cycle is valid", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "b", "end"))
		_ = g.SetEntry("a")
		_ = g.AddEdge("a", "b")
		_ = g.AddConditionalEdge("b", func(*Envelope) Label { return "again" }, map[Label]string{
			"again": "a",
			"done":  "end",
		})
		_ = g.MarkTerminal("end")
		if err := g.Validate(); err != nil {
			t.Errorf("Validate failed on cyclic graph: %v", err)
		}
	})
}

// TestGraph_ResolveNext verifies routing semantics.
func TestGraph_ResolveNext(t *testing.T) {
	t.Run("unconditional edge", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "b"))
		_ = g.SetEntry("a")
		_ = g.AddEdge("a", "b")
		_ = g.MarkTerminal("b")
		if err := g.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}

		next, err := g.ResolveNext("a", NewEnvelope(nil))
		if err != nil || next != "b" {
			t.Errorf("expected next 'b', got %q (%v)", next, err)
		}
	})

	t.Run("terminal has no successor", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "b"))
		_ = g.SetEntry("a")
		_ = g.AddEdge("a", "b")
		_ = g.MarkTerminal("b")
		_ = g.Validate()

		next, err := g.ResolveNext("b", NewEnvelope(nil))
		if err != nil || next != "" {
			t.Errorf("expected no successor for terminal, got %q (%v)", next, err)
		}
	})

	t.Run("router label lookup", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "yes", "no"))
		_ = g.SetEntry("a")
		router := func(env *Envelope) Label {
			if v, _ := env.Get("flag"); v.IsTrue() {
				return "hit"
			}
			return "miss"
		}
		_ = g.AddConditionalEdge("a", router, map[Label]string{"hit": "yes", "miss": "no"})
		_ = g.MarkTerminal("yes")
		_ = g.MarkTerminal("no")
		if err := g.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}

		env := NewEnvelope(Update{"flag": Bool(true)})
		if next, _ := g.ResolveNext("a", env); next != "yes" {
			t.Errorf("expected 'yes', got %q", next)
		}
		if next, _ := g.ResolveNext("a", NewEnvelope(nil)); next != "no" {
			t.Errorf("expected 'no', got %q", next)
		}
	})

	t.Run("undeclared label is unroutable", func(t *testing.T) {
		g := NewGraph(testRegistry(t, "a", "b"))
		_ = g.SetEntry("a")
		_ = g.AddConditionalEdge("a", func(*Envelope) Label { return "surprise" }, map[Label]string{"known": "b"})
		_ = g.MarkTerminal("b")
		_ = g.Validate()

		_, err := g.ResolveNext("a", NewEnvelope(nil))
		if !errors.Is(err, ErrUnroutableState) {
			t.Fatalf("expected ErrUnroutableState, got %v", err)
		}
		var ur *UnroutableError
		if !errors.As(err, &ur) || ur.Label != "surprise" {
			t.Errorf("expected label 'surprise' in error, got %v", err)
		}
	})
}

// TestGraph_Gate verifies gate policy attachment and defaulting.
func TestGraph_Gate(t *testing.T) {
	g := NewGraph(testRegistry(t, "a"))

	if err := g.Gate("ghost", GatePolicy{}); err == nil {
		t.Error("expected error for gating an unregistered step")
	}

	if err := g.Gate("a", GatePolicy{}); err != nil {
		t.Fatalf("Gate failed: %v", err)
	}
	policy, ok := g.gate("a")
	if !ok {
		t.Fatal("expected gate on 'a'")
	}
	if policy.Timeout != DefaultGateTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultGateTimeout, policy.Timeout)
	}
}
