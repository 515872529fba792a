package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestLogEmitter_Text verifies the human-readable format.
func TestLogEmitter_Text(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)

	e.Emit(Event{
		RunID:  "run-1",
		Seq:    2,
		StepID: "classify_theme",
		Kind:   KindStepCompleted,
		Meta:   map[string]interface{}{"route": "approve"},
	})

	out := buf.String()
	for _, want := range []string{"[step_completed]", "runID=run-1", "seq=2", "stepID=classify_theme", `"route":"approve"`} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q: %s", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("expected trailing newline")
	}
}

// TestLogEmitter_JSON verifies one parseable JSON object per line.
func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)

	e.Emit(Event{RunID: "run-1", Seq: 1, StepID: "extract", Kind: KindStepCompleted, Timestamp: time.Now().UTC()})
	e.Emit(Event{RunID: "run-1", Seq: 0, Kind: KindFailed, Msg: "boom"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 not valid JSON: %v", err)
	}
	if first["runID"] != "run-1" || first["kind"] != "step_completed" {
		t.Errorf("unexpected first line: %v", first)
	}

	var second map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line 2 not valid JSON: %v", err)
	}
	if second["msg"] != "boom" {
		t.Errorf("unexpected second line: %v", second)
	}
}

// TestMulti verifies fan-out ordering and nil tolerance.
func TestMulti(t *testing.T) {
	a := &mockEmitter{}
	b := &mockEmitter{}
	m := Multi{a, nil, b}

	m.Emit(Event{RunID: "run-1", Kind: KindCompleted})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("expected both emitters to receive the event: %d, %d", len(a.events), len(b.events))
	}
}

// TestNullEmitter verifies the no-op emitter accepts events.
func TestNullEmitter(t *testing.T) {
	e := NewNullEmitter()
	e.Emit(Event{RunID: "run-1", Kind: KindFailed})
}

// mockEmitter captures events for assertions.
type mockEmitter struct {
	events []Event
}

func (m *mockEmitter) Emit(event Event) {
	m.events = append(m.events, event)
}
