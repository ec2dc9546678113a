// Package coreobs is the core's ambient observability surface: correlation
// IDs threaded through context.Context, Prometheus instrumentation, and a
// minimal OpenTelemetry tracer. No exporter or HTTP /metrics endpoint is
// stood up here, but the instrument wiring itself is real and exercised by
// the orchestrator and tool engine.
package coreobs

import "context"

// ContextKey namespaces the values this package stores on a
// context.Context, avoiding collisions with keys other packages define.
type ContextKey string

const (
	runIDKey    ContextKey = "core_run_id"
	contextIDKey ContextKey = "core_context_id"
)

// WithRunID attaches a run id (one send_message turn) to ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID retrieves the run id attached by WithRunID, or "" if none.
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// WithContextID attaches a conversation context id to ctx.
func WithContextID(ctx context.Context, contextID string) context.Context {
	return context.WithValue(ctx, contextIDKey, contextID)
}

// ContextID retrieves the context id attached by WithContextID, or "" if
// none.
func ContextID(ctx context.Context) string {
	if id, ok := ctx.Value(contextIDKey).(string); ok {
		return id
	}
	return ""
}

// LogFields returns the correlation ids on ctx as slog-style key/value
// pairs, ready to splice into a logger call: slog.Info("msg",
// coreobs.LogFields(ctx)...).
func LogFields(ctx context.Context) []any {
	var fields []any
	if id := RunID(ctx); id != "" {
		fields = append(fields, "run_id", id)
	}
	if id := ContextID(ctx); id != "" {
		fields = append(fields, "context_id", id)
	}
	return fields
}
