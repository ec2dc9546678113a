package coreobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the core's Prometheus instrument set. Each Orchestrator owns
// one Metrics (via New), registered against its own *prometheus.Registry
// rather than the global default registry, so constructing more than one
// Orchestrator in a process, or in a test suite, never panics on a
// duplicate registration.
type Metrics struct {
	Registry *prometheus.Registry

	// FSMTransitions counts every FSM.Fire call by source state, target
	// state, and event kind.
	FSMTransitions *prometheus.CounterVec

	// ToolExecDuration measures one tool call's wall-clock time, including
	// any in-place retries, labeled by tool name and outcome.
	ToolExecDuration *prometheus.HistogramVec

	// BroadcasterDropped counts events dropped by a full subscriber channel.
	BroadcasterDropped *prometheus.CounterVec
}

// New builds a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		FSMTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "core_fsm_transitions_total",
				Help: "Total FSM transitions by source state, target state, and event.",
			},
			[]string{"from", "to", "event"},
		),
		ToolExecDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "core_tool_exec_duration_seconds",
				Help:    "Tool call execution time in seconds, including in-place retries.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name", "outcome"},
		),
		BroadcasterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "core_broadcaster_dropped_total",
				Help: "Events dropped because a subscriber's channel was full.",
			},
			[]string{"context_id"},
		),
	}
}

// ObserveTransition records one FSM transition.
func (m *Metrics) ObserveTransition(from, to, event string) {
	if m == nil {
		return
	}
	m.FSMTransitions.WithLabelValues(from, to, event).Inc()
}

// ObserveToolExec records one tool call's duration and outcome.
func (m *Metrics) ObserveToolExec(toolName, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecDuration.WithLabelValues(toolName, outcome).Observe(d.Seconds())
}

// ObserveDropped records one dropped broadcast event for contextID.
func (m *Metrics) ObserveDropped(contextID string) {
	if m == nil {
		return
	}
	m.BroadcasterDropped.WithLabelValues(contextID).Inc()
}
