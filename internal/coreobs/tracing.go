package coreobs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer scoped to the core. No exporter is
// wired by default: sampling everything into a provider with no span
// processor is a no-op, cheaper than special-casing "tracing disabled"
// everywhere a span is started. A caller who wants real export
// registers their own processor against the *sdktrace.TracerProvider
// returned by NewTracer before using the returned Tracer.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer named serviceName plus the TracerProvider
// backing it, so a caller can attach a span processor/exporter later.
func NewTracer(serviceName string) (*Tracer, *sdktrace.TracerProvider) {
	provider := sdktrace.NewTracerProvider()
	return &Tracer{tracer: provider.Tracer(serviceName)}, provider
}

// StartTurn starts a span for one send_message turn.
func (t *Tracer) StartTurn(ctx context.Context, contextID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "send_message", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("context_id", contextID)))
}

// StartToolExec starts a span for one tool call.
func (t *Tracer) StartToolExec(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "tool_exec."+toolName, trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("tool.name", toolName)))
}

// RecordError records err on span and marks it failed, a no-op if err is
// nil.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// noopTracer is used when an Orchestrator is constructed without a Tracer,
// so call sites never need a nil check before starting a span.
var noopTracer = &Tracer{tracer: otel.Tracer("noop")}

// NoopTracer returns a Tracer backed by OpenTelemetry's global no-op
// provider; spans it starts are never recorded or exported.
func NoopTracer() *Tracer { return noopTracer }
