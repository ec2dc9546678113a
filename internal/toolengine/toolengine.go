// Package toolengine evaluates approval policy for tool calls, runs the
// auto-loop bookkeeping, and enforces per-tool and per-loop timeouts. It
// owns the decision of whether a tool call executes immediately, is denied,
// or is queued for a human decision; it does not execute tools itself. The
// concrete Invoker collaborator does, so filesystem/exec backends stay
// outside this package.
package toolengine

import (
	"context"
	"time"

	"github.com/kairoslabs/convocore/internal/coreerrors"
	"github.com/kairoslabs/convocore/pkg/models"
)

// Decision is the outcome of evaluating a tool call against the context's
// policy, before execution.
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionDenied  Decision = "denied"
	DecisionPending Decision = "pending"
)

// Evaluate applies the approval rule in order: a safety override forces
// Manual regardless of the configured policy; otherwise the configured
// ToolPolicy decides. AutoLoop additionally requires depth and tool-count
// headroom and that the loop has not already timed out.
func Evaluate(exec *models.ToolExecutionContext, toolName string) (Decision, string) {
	if isDangerous(exec.Safety, toolName) {
		return evaluatePolicy(models.ToolPolicy{Kind: models.ToolPolicyManual}, exec, toolName)
	}
	return evaluatePolicy(exec.Policy, exec, toolName)
}

func evaluatePolicy(policy models.ToolPolicy, exec *models.ToolExecutionContext, toolName string) (Decision, string) {
	switch policy.Kind {
	case models.ToolPolicyAutoApprove:
		return DecisionAllowed, "auto_approve policy"
	case models.ToolPolicyWhiteList:
		if contains(policy.WhiteList, toolName) {
			return DecisionAllowed, "tool in white_list"
		}
		return DecisionPending, "tool not in white_list"
	case models.ToolPolicyAutoLoop:
		if LoopTimedOut(exec) {
			return DecisionPending, "loop already timed out"
		}
		maxDepth := policy.MaxDepth
		if maxDepth <= 0 {
			maxDepth = 10
		}
		maxTools := policy.MaxTools
		if maxTools <= 0 {
			maxTools = 100
		}
		if exec.CurrentDepth >= maxDepth {
			return DecisionPending, "max_depth reached"
		}
		if exec.CurrentToolCount >= maxTools {
			return DecisionPending, "max_tools reached"
		}
		return DecisionAllowed, "auto_loop policy"
	default:
		return DecisionPending, "manual policy"
	}
}

func isDangerous(safety models.SafetyConfig, toolName string) bool {
	return contains(safety.DangerousTools, toolName)
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

// LoopTimedOut reports whether the auto-loop has exceeded its configured
// MaxLoopTimeoutMs since loop_started_at. A loop that has not started yet
// cannot be timed out.
func LoopTimedOut(exec *models.ToolExecutionContext) bool {
	if exec.LoopStartedAt == nil {
		return false
	}
	limit := exec.Timeouts.MaxLoopTimeoutMs
	if limit <= 0 {
		limit = 300_000
	}
	return time.Since(*exec.LoopStartedAt) > time.Duration(limit)*time.Millisecond
}

// BeginLoop marks loop_started_at on the first auto-approved call of a turn.
func BeginLoop(exec *models.ToolExecutionContext, now time.Time) {
	if exec.LoopStartedAt == nil {
		t := now
		exec.LoopStartedAt = &t
	}
}

// RecordExecution appends to executed_tools_history, increments the tool
// count, and updates the per-tool retry budget: a success resets the
// counter for that tool, a failure increments it.
func RecordExecution(exec *models.ToolExecutionContext, name string, depth int, startedAt time.Time, duration time.Duration, outcome string) {
	exec.ExecutedToolsHistory = append(exec.ExecutedToolsHistory, models.ExecutedToolRecord{
		ToolName:  name,
		Depth:     depth,
		StartedAt: startedAt,
		Duration:  duration,
		Outcome:   outcome,
	})
	exec.CurrentToolCount++

	if exec.ToolRetryCounts == nil {
		exec.ToolRetryCounts = make(map[string]int)
	}
	if outcome == "success" {
		exec.ToolRetryCounts[name] = 0
	} else {
		exec.ToolRetryCounts[name]++
	}
}

// RetryBudgetExhausted reports whether the named tool has consumed its
// per-tool retry budget (default 3).
func RetryBudgetExhausted(exec *models.ToolExecutionContext, name string, maxRetries int) bool {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return exec.ToolRetryCounts[name] >= maxRetries
}

// RecordParseFailure increments the parse-retry budget and reports whether
// it is now exhausted (default 3), independent of per-tool retry counts.
func RecordParseFailure(exec *models.ToolExecutionContext, maxRetries int) bool {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	exec.ParseRetryCount++
	return exec.ParseRetryCount >= maxRetries
}

// ToolTimeout resolves the scoped deadline for one tool call: an
// override-for-tool if configured, else the context's default.
func ToolTimeout(timeouts models.TimeoutConfig, toolName string) time.Duration {
	if ms, ok := timeouts.ToolTimeoutOverrides[toolName]; ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if timeouts.DefaultToolTimeoutMs > 0 {
		return time.Duration(timeouts.DefaultToolTimeoutMs) * time.Millisecond
	}
	return 30 * time.Second
}

// Invoker is the external collaborator that actually runs a tool. Concrete
// tool implementations live outside this package.
type Invoker interface {
	Invoke(ctx context.Context, call models.ToolCallRequest) (models.ToolCallResult, error)
}

// Engine wires policy evaluation, timeout enforcement, and auto-loop
// bookkeeping around an Invoker.
type Engine struct {
	Invoker          Invoker
	MaxToolRetries   int
	MaxParseRetries  int
}

// New builds an Engine with the default retry budgets.
func New(invoker Invoker) *Engine {
	return &Engine{Invoker: invoker, MaxToolRetries: 3, MaxParseRetries: 3}
}

// Outcome is the result of running one tool call through the engine,
// including the bookkeeping needed to reduce it back into a ContextSnapshot.
type Outcome struct {
	Decision Decision
	Reason   string
	Result   models.ToolCallResult
	TimedOut bool
	// LoopCancelled is set when this call discovered the loop had already
	// timed out; the FSM should transition to PermanentFailure for the turn.
	LoopCancelled bool
}

// Execute checks cancellation and the loop deadline first (both can flip
// mid-batch, independent of per-call policy), then evaluates approval for
// call, and if allowed, runs it under the tool's scoped deadline, updating
// exec's auto-loop bookkeeping in place. Cancellation is cooperative: if
// exec.CancelRequested is observed before dispatch, the call is skipped
// with a synthetic cancelled result rather than force-killed mid-flight,
// matching the "per-tool timeouts are the only forced termination
// mechanism" rule. A loop that has already timed out is reported via
// LoopCancelled regardless of which call in the batch discovers it.
func (e *Engine) Execute(ctx context.Context, exec *models.ToolExecutionContext, call models.ToolCallRequest, depth int) Outcome {
	if exec.CancelRequested {
		return Outcome{
			Decision: DecisionDenied,
			Reason:   "cancelled",
			Result: models.ToolCallResult{
				RequestID: call.ID,
				Success:   false,
				Error:     "tool call cancelled",
			},
		}
	}

	if LoopTimedOut(exec) {
		return Outcome{Decision: DecisionPending, Reason: "loop_timeout", LoopCancelled: true}
	}

	decision, reason := Evaluate(exec, call.ToolName)
	if decision != DecisionAllowed {
		return Outcome{Decision: decision, Reason: reason}
	}

	BeginLoop(exec, time.Now())
	exec.CurrentDepth = depth

	timeout := ToolTimeout(exec.Timeouts, call.ToolName)
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := e.Invoker.Invoke(toolCtx, call)
	duration := time.Since(start)

	timedOut := toolCtx.Err() != nil
	outcome := "success"
	switch {
	case exec.CancelRequested:
		outcome = "cancelled"
	case timedOut:
		outcome = "timeout"
	case err != nil || !result.Success:
		outcome = "failure"
	}

	RecordExecution(exec, call.ToolName, depth, start, duration, outcome)

	if exec.CancelRequested {
		return Outcome{
			Decision: DecisionDenied,
			Reason:   "cancelled",
			Result: models.ToolCallResult{
				RequestID: call.ID,
				Success:   false,
				Error:     "tool call cancelled, result discarded",
			},
		}
	}

	if timedOut {
		return Outcome{
			Decision: DecisionAllowed,
			Reason:   "tool_timeout",
			TimedOut: true,
			Result: models.ToolCallResult{
				RequestID: call.ID,
				Success:   false,
				Error:     coreerrors.New(coreerrors.KindToolTimeout, "tool execution timed out").Error(),
			},
		}
	}

	if err != nil {
		return Outcome{
			Decision: DecisionAllowed,
			Result: models.ToolCallResult{
				RequestID: call.ID,
				Success:   false,
				Error:     err.Error(),
			},
		}
	}

	return Outcome{Decision: DecisionAllowed, Result: result}
}

// Cancel sets the cooperative cancel flag observed at the next tool
// boundary (Execute). The pipeline processors do not check it.
func Cancel(exec *models.ToolExecutionContext) {
	exec.CancelRequested = true
}
