package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

// TestOTelEmitter_Emit verifies each event becomes a span with the run
// attributes.
func TestOTelEmitter_Emit(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))

	emitter.Emit(Event{
		RunID:  "run-001",
		Seq:    2,
		StepID: "classify_theme",
		Kind:   KindStepCompleted,
		Meta: map[string]interface{}{
			"latency_ms": int64(42),
			"changed":    []string{"policy_theme"},
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name != "step_completed" {
		t.Errorf("span name = %q, want %q", span.Name, "step_completed")
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["regflow.run_id"]; got != "run-001" {
		t.Errorf("run_id = %v, want %q", got, "run-001")
	}
	if got := attrs["regflow.seq"]; got != int64(2) {
		t.Errorf("seq = %v, want %d", got, 2)
	}
	if got := attrs["regflow.step_id"]; got != "classify_theme" {
		t.Errorf("step_id = %v, want %q", got, "classify_theme")
	}
	if got := attrs["regflow.latency_ms"]; got != int64(42) {
		t.Errorf("latency_ms = %v, want %d", got, 42)
	}
}

// TestOTelEmitter_FailedEvent verifies failed events set error status.
func TestOTelEmitter_FailedEvent(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))

	emitter.Emit(Event{
		RunID: "run-001",
		Kind:  KindFailed,
		Msg:   "intervention timeout",
		Meta:  map[string]interface{}{"error": "intervention timeout"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("status code = %v, want Error", span.Status.Code)
	}
	if span.Status.Description != "intervention timeout" {
		t.Errorf("status description = %q", span.Status.Description)
	}
	if len(span.Events) == 0 {
		t.Error("expected recorded error event, got none")
	}
}

// TestOTelEmitter_Flush verifies flushing against an SDK provider.
func TestOTelEmitter_Flush(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{RunID: "run-001", Kind: KindCompleted})

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(exporter.GetSpans()) != 1 {
		t.Errorf("expected 1 exported span after flush, got %d", len(exporter.GetSpans()))
	}
}
