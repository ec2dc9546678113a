package models

import "time"

// AgentRole is the role a context plays; role-specific pipeline behavior and
// tool permissions key off of it.
type AgentRole string

const (
	RoleAgentPlanner AgentRole = "planner"
	RoleAgentActor   AgentRole = "actor"
)

// Mode is the operating mode of a context.
type Mode string

const (
	ModePlan Mode = "plan"
	ModeAct  Mode = "act"
	ModeCode Mode = "code"
)

// ContextConfig is supplied at context creation and never mutated in place;
// the core accepts it by value, per the "no global configuration
// singletons" design note.
type ContextConfig struct {
	ModelID       string         `json:"model_id" yaml:"model_id"`
	Mode          Mode           `json:"mode" yaml:"mode"`
	AgentRole     AgentRole      `json:"agent_role" yaml:"agent_role"`
	WorkspacePath string         `json:"workspace_path,omitempty" yaml:"workspace_path,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Validate reports a validation_failed-class error for a config that cannot
// seed a context.
func (c ContextConfig) Validate() error {
	if c.ModelID == "" {
		return ErrInvalidConfig
	}
	switch c.AgentRole {
	case RoleAgentPlanner, RoleAgentActor:
	default:
		return ErrInvalidConfig
	}
	return nil
}

// ToolPolicyKind selects how the Tool Engine decides approval for a tool
// call absent a safety override.
type ToolPolicyKind string

const (
	ToolPolicyManual      ToolPolicyKind = "manual"
	ToolPolicyAutoApprove ToolPolicyKind = "auto_approve"
	ToolPolicyWhiteList   ToolPolicyKind = "white_list"
	ToolPolicyAutoLoop    ToolPolicyKind = "auto_loop"
)

// ToolPolicy is the context's configured approval policy. Only the fields
// relevant to Kind are meaningful.
type ToolPolicy struct {
	Kind        ToolPolicyKind `json:"kind" yaml:"kind"`
	WhiteList   []string       `json:"white_list,omitempty" yaml:"white_list,omitempty"`
	MaxDepth    int            `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	MaxTools    int            `json:"max_tools,omitempty" yaml:"max_tools,omitempty"`
}

// SafetyConfig names tools and keywords the Tool Engine always forces to
// manual approval, regardless of the configured ToolPolicy.
type SafetyConfig struct {
	DangerousTools    []string `json:"dangerous_tools,omitempty" yaml:"dangerous_tools,omitempty"`
	DangerousKeywords []string `json:"dangerous_keywords,omitempty" yaml:"dangerous_keywords,omitempty"`
}

// TimeoutConfig bounds tool and loop execution time.
type TimeoutConfig struct {
	DefaultToolTimeoutMs int64            `json:"default_tool_timeout_ms" yaml:"default_tool_timeout_ms"`
	ToolTimeoutOverrides map[string]int64 `json:"tool_timeout_overrides,omitempty" yaml:"tool_timeout_overrides,omitempty"`
	MaxLoopTimeoutMs     int64            `json:"max_loop_timeout_ms" yaml:"max_loop_timeout_ms"`
}

// ExecutedToolRecord is one entry in a ToolExecutionContext's
// executed_tools_history.
type ExecutedToolRecord struct {
	ToolName   string        `json:"tool_name"`
	Depth      int           `json:"depth"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Outcome    string        `json:"outcome"` // "success" | "failure" | "timeout" | "cancelled"
}

// ToolExecutionContext is the per-context tool auto-loop bookkeeping block.
type ToolExecutionContext struct {
	Policy        ToolPolicy    `json:"policy" yaml:"policy"`
	Timeouts      TimeoutConfig `json:"timeouts" yaml:"timeouts"`
	Safety        SafetyConfig  `json:"safety" yaml:"safety"`

	LoopStartedAt      *time.Time           `json:"loop_started_at,omitempty"`
	ExecutedToolsHistory []ExecutedToolRecord `json:"executed_tools_history,omitempty"`
	CurrentDepth       int                  `json:"current_depth"`
	CurrentToolCount   int                  `json:"current_tool_count"`

	// ToolRetryCounts is the per-tool retry budget consumed so far, keyed by
	// tool name. A consecutive success resets the entry to 0.
	ToolRetryCounts map[string]int `json:"tool_retry_counts,omitempty"`

	// ParseRetryCount tracks JSON parse failures of the LLM's tool-call
	// syntax, independent of ToolRetryCounts.
	ParseRetryCount int `json:"parse_retry_count"`

	// CancelRequested is set by cancel_auto_loop; observed at the next tool
	// boundary. Pipeline processors do not check it.
	CancelRequested bool `json:"-"`
}

// ResetLoop clears auto-loop bookkeeping; called when a final text answer
// arrives or the loop is explicitly cancelled.
func (t *ToolExecutionContext) ResetLoop() {
	t.LoopStartedAt = nil
	t.CurrentDepth = 0
	t.CurrentToolCount = 0
	t.CancelRequested = false
}

// ContextSnapshot is the full, persistable state of one conversation
// context: its branches, active branch, FSM state and tool-execution
// bookkeeping, serialized as context.json.
type ContextSnapshot struct {
	ID               string                    `json:"id"`
	ParentID         string                    `json:"parent_id,omitempty"`
	Config           ContextConfig             `json:"config"`
	Branches         map[string]*Branch        `json:"branches"`
	ActiveBranchName string                    `json:"active_branch_name"`
	CurrentState     string                    `json:"current_state"`
	FailureDetail    *FailureDetail            `json:"failure_detail,omitempty"`
	ToolExec         ToolExecutionContext      `json:"tool_exec"`

	// PendingToolCalls holds the tool calls awaiting a decision while
	// CurrentState is awaiting_tool_approval; cleared once approve_tools
	// resolves them.
	PendingToolCalls []ToolCallRequest `json:"pending_tool_calls,omitempty"`

	// PendingAssistantMessageID names the in-flight assistant message the
	// pending tool calls belong to.
	PendingAssistantMessageID string `json:"pending_assistant_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FailureDetail carries the payload of TransientFailure/PermanentFailure
// states, which the distilled spec models as data-carrying state variants.
type FailureDetail struct {
	ErrorKind  string `json:"error_kind"`
	Message    string `json:"message"`
	Category   string `json:"category,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
}

// Clone deep-copies a ContextSnapshot so mutations made by a caller (e.g. a
// get_metadata response) never leak back into the orchestrator's state.
func (c *ContextSnapshot) Clone() *ContextSnapshot {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Config.Parameters != nil {
		clone.Config.Parameters = make(map[string]any, len(c.Config.Parameters))
		for k, v := range c.Config.Parameters {
			clone.Config.Parameters[k] = v
		}
	}
	if c.Branches != nil {
		clone.Branches = make(map[string]*Branch, len(c.Branches))
		for name, b := range c.Branches {
			clone.Branches[name] = b.Clone()
		}
	}
	if c.ToolExec.ExecutedToolsHistory != nil {
		clone.ToolExec.ExecutedToolsHistory = append([]ExecutedToolRecord(nil), c.ToolExec.ExecutedToolsHistory...)
	}
	if c.ToolExec.ToolRetryCounts != nil {
		clone.ToolExec.ToolRetryCounts = make(map[string]int, len(c.ToolExec.ToolRetryCounts))
		for k, v := range c.ToolExec.ToolRetryCounts {
			clone.ToolExec.ToolRetryCounts[k] = v
		}
	}
	if c.FailureDetail != nil {
		detail := *c.FailureDetail
		clone.FailureDetail = &detail
	}
	if c.PendingToolCalls != nil {
		clone.PendingToolCalls = append([]ToolCallRequest(nil), c.PendingToolCalls...)
	}
	return &clone
}

// Metadata is the lightweight snapshot returned by get_metadata.
type Metadata struct {
	ID            string `json:"id"`
	CurrentState  string `json:"current_state"`
	ActiveBranch  string `json:"active_branch"`
	MessageCount  int    `json:"message_count"`
	ModelID       string `json:"model_id"`
	Mode          Mode   `json:"mode"`
}
