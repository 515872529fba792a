package regulatory

import (
	"errors"
	"testing"

	"github.com/nortide/regflow/graph"
)

// TestParseReact verifies thought/result extraction.
func TestParseReact(t *testing.T) {
	t.Run("well-formed response", func(t *testing.T) {
		raw := "Thought: scan for terms\nAction: extract_terms\nAction Result: FCA, REP-CRIM"
		r, err := parseReact("extract_terms", raw)
		if err != nil {
			t.Fatalf("parseReact failed: %v", err)
		}
		if r.Thought != "scan for terms" {
			t.Errorf("unexpected thought: %q", r.Thought)
		}
		if r.Result != "FCA, REP-CRIM" {
			t.Errorf("unexpected result: %q", r.Result)
		}
	})

	t.Run("missing result is malformed", func(t *testing.T) {
		_, err := parseReact("extract_terms", "Thought: hmm\nAction: extract_terms")
		if !errors.Is(err, graph.ErrMalformedOracleResponse) {
			t.Fatalf("expected ErrMalformedOracleResponse, got %v", err)
		}
		var mr *graph.MalformedResponseError
		if !errors.As(err, &mr) || mr.StepID != "extract_terms" {
			t.Errorf("expected step attribution, got %v", err)
		}
	})

	t.Run("unknown lines ignored", func(t *testing.T) {
		raw := "preamble\nThought: t\nnoise\nAction Result: r\ntrailer"
		r, err := parseReact("x", raw)
		if err != nil || r.Result != "r" {
			t.Errorf("unexpected parse: %+v (%v)", r, err)
		}
	})
}

// TestParseJSONResult verifies malformed JSON is surfaced with the raw
// response attached.
func TestParseJSONResult(t *testing.T) {
	var out struct {
		Theme string `json:"theme"`
	}
	if err := parseJSONResult("classify_theme", "raw", `{"theme": "X"}`, &out); err != nil {
		t.Fatalf("valid JSON rejected: %v", err)
	}
	if out.Theme != "X" {
		t.Errorf("unexpected decode: %+v", out)
	}

	err := parseJSONResult("classify_theme", "full raw text", "not json", &out)
	if !errors.Is(err, graph.ErrMalformedOracleResponse) {
		t.Fatalf("expected ErrMalformedOracleResponse, got %v", err)
	}
	var mr *graph.MalformedResponseError
	if !errors.As(err, &mr) || mr.Raw != "full raw text" {
		t.Errorf("expected raw text preserved, got %v", err)
	}
}

// TestSplitTerms verifies comma splitting with trimming.
func TestSplitTerms(t *testing.T) {
	got := splitTerms(" FCA , REP-CRIM ,, GDPR ")
	want := []string{"FCA", "REP-CRIM", "GDPR"}
	if len(got) != len(want) {
		t.Fatalf("expected %d terms, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("term %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
