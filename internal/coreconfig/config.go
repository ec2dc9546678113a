// Package coreconfig is the core's plain-Go options layer: values supplied
// by a caller at construction time rather than a package-level global.
// There is no config file loader here; the conversation core never reads
// its own YAML/env source, only the wiring does. The shapes below still tag
// with `yaml` so a caller embedding them in a larger config document gets
// that for free; cmd/coredemo only renders them through Dump.
package coreconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kairoslabs/convocore/internal/broadcaster"
	"github.com/kairoslabs/convocore/internal/coreobs"
	"github.com/kairoslabs/convocore/internal/toolengine"
)

// OrchestratorOptions configures an Orchestrator's non-collaborator
// behavior: everything that isn't itself an external seam
// (store/LLM/workspace/registry). A plain struct merged against defaults,
// rather than threaded through as loose constructor parameters.
type OrchestratorOptions struct {
	// MaxToolRetries and MaxParseRetries seed the Tool Engine's per-tool and
	// parse-failure retry budgets.
	MaxToolRetries  int `yaml:"max_tool_retries"`
	MaxParseRetries int `yaml:"max_parse_retries"`

	// BroadcastBufferSize bounds each event subscriber's channel.
	BroadcastBufferSize int `yaml:"broadcast_buffer_size"`

	// EnableMetrics and EnableTracing toggle the ambient observability
	// surface; both default to off so a caller that doesn't want a
	// Prometheus registry or an OTel tracer provider doesn't pay for one.
	EnableMetrics bool `yaml:"enable_metrics"`
	EnableTracing bool `yaml:"enable_tracing"`
}

// DefaultOrchestratorOptions mirrors toolengine.New's and
// broadcaster.DefaultBufferSize's own defaults, so a caller that only
// wants to override one field can start from this rather than guessing at
// zero values.
func DefaultOrchestratorOptions() OrchestratorOptions {
	return OrchestratorOptions{
		MaxToolRetries:      3,
		MaxParseRetries:     3,
		BroadcastBufferSize: broadcaster.DefaultBufferSize,
	}
}

// ApplyToEngine sets the retry budgets named by these options onto an
// already-constructed Engine, falling back to the Engine's own zero-value
// defaults (set by toolengine.New) for any field left at its zero value.
func (o OrchestratorOptions) ApplyToEngine(e *toolengine.Engine) {
	if e == nil {
		return
	}
	if o.MaxToolRetries > 0 {
		e.MaxToolRetries = o.MaxToolRetries
	}
	if o.MaxParseRetries > 0 {
		e.MaxParseRetries = o.MaxParseRetries
	}
}

// ApplyToBroadcaster sets the subscriber buffer size named by these
// options onto an already-constructed Broadcaster.
func (o OrchestratorOptions) ApplyToBroadcaster(b *broadcaster.Broadcaster) {
	if b == nil {
		return
	}
	if o.BroadcastBufferSize > 0 {
		b.BufferSize = o.BroadcastBufferSize
	}
}

// Observability builds the Metrics and Tracer instances named by
// EnableMetrics/EnableTracing, suitable for assignment onto an
// Orchestrator's and Broadcaster's own Metrics/Tracer fields. Both are
// safe to assign even when disabled: Metrics stays nil (every Observe*
// call on a nil *Metrics is a no-op), and Tracer falls back to
// coreobs.NoopTracer(). When EnableTracing is set, the TracerProvider that
// coreobs.NewTracer returns alongside the Tracer is discarded here, so a
// caller of this helper cannot attach a span processor to it.
func (o OrchestratorOptions) Observability() (*coreobs.Metrics, *coreobs.Tracer) {
	var metrics *coreobs.Metrics
	if o.EnableMetrics {
		metrics = coreobs.New()
	}
	tracer := coreobs.NoopTracer()
	if o.EnableTracing {
		tracer, _ = coreobs.NewTracer("convocore")
	}
	return metrics, tracer
}

// Dump renders opts as YAML for debug logging, marshaling the live value
// back to YAML rather than hand-formatting each field.
func (o OrchestratorOptions) Dump() (string, error) {
	out, err := yaml.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("dump orchestrator options: %w", err)
	}
	return string(out), nil
}
