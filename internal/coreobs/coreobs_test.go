package coreobs

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWithRunID_RoundTrips(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	if got := RunID(ctx); got != "run-1" {
		t.Errorf("expected run-1, got %q", got)
	}
	if got := RunID(context.Background()); got != "" {
		t.Errorf("expected empty run id on bare context, got %q", got)
	}
}

func TestWithContextID_RoundTrips(t *testing.T) {
	ctx := WithContextID(context.Background(), "ctx-1")
	if got := ContextID(ctx); got != "ctx-1" {
		t.Errorf("expected ctx-1, got %q", got)
	}
}

func TestLogFields_OmitsMissingIDs(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	fields := LogFields(ctx)
	if len(fields) != 2 || fields[0] != "run_id" || fields[1] != "run-1" {
		t.Errorf("expected [run_id run-1], got %v", fields)
	}

	ctx = WithContextID(ctx, "ctx-1")
	fields = LogFields(ctx)
	if len(fields) != 4 {
		t.Errorf("expected 4 fields with both ids set, got %v", fields)
	}
}

func TestMetrics_ObserveTransition(t *testing.T) {
	m := New()
	m.ObserveTransition("idle", "processing_user_message", "user_message_received")
	if count := testutil.CollectAndCount(m.FSMTransitions); count != 1 {
		t.Errorf("expected 1 label combination, got %d", count)
	}
}

func TestMetrics_ObserveToolExec(t *testing.T) {
	m := New()
	m.ObserveToolExec("read_file", "success", 10*time.Millisecond)
	if count := testutil.CollectAndCount(m.ToolExecDuration); count != 1 {
		t.Errorf("expected 1 label combination, got %d", count)
	}
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTransition("a", "b", "c")
	m.ObserveToolExec("t", "success", time.Millisecond)
	m.ObserveDropped("ctx-1")
}

func TestNewMetrics_SeparateRegistriesDontCollide(t *testing.T) {
	a := New()
	b := New()
	a.ObserveTransition("idle", "idle", "noop")
	b.ObserveTransition("idle", "idle", "noop")
}

func TestNewTracer_StartsSpans(t *testing.T) {
	tracer, provider := NewTracer("convocore-test")
	defer provider.Shutdown(context.Background())

	ctx, span := tracer.StartTurn(context.Background(), "ctx-1")
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	span.End()

	_, toolSpan := tracer.StartToolExec(ctx, "read_file")
	toolSpan.End()
}

func TestNoopTracer_NeverPanics(t *testing.T) {
	tracer := NoopTracer()
	_, span := tracer.StartTurn(context.Background(), "ctx-1")
	RecordError(span, nil)
	span.End()
}
