// Package fsm is the sole authority on a context's conversation lifecycle.
// No external caller may mutate state directly; every transition goes
// through Machine.Fire and is looked up in a fixed table keyed by
// (state, event), so source state and event together always determine the
// target state deterministically.
package fsm

// State is a conversation context's lifecycle state. The string value is
// exactly the persisted, snake_case tag written to context.json.
type State string

const (
	StateIdle                  State = "idle"
	StateProcessingUserMessage State = "processing_user_message"
	StateAwaitingLLMResponse   State = "awaiting_l_l_m_response"
	StateStreamingLLMResponse  State = "streaming_l_l_m_response"
	StateProcessingLLMResponse State = "processing_l_l_m_response"
	StateAwaitingToolApproval  State = "awaiting_tool_approval"
	StateExecutingTool         State = "executing_tool"
	StateProcessingToolResult  State = "processing_tool_result"
	StateTransientFailure      State = "transient_failure"
	StatePermanentFailure      State = "permanent_failure"
)

// Terminal reports whether no further transition is possible from this
// state without a new user message resetting the conversation.
func (s State) Terminal() bool {
	return s == StatePermanentFailure
}

// EventKind tags the event variants the machine accepts. Payload fields on
// Event are only meaningful for the matching EventKind.
type EventKind string

const (
	EventUserMessageSent       EventKind = "user_message_sent"
	EventPipelineCompleted     EventKind = "pipeline_completed"
	EventLLMRequestInitiated   EventKind = "llm_request_initiated"
	EventLLMStreamChunkRecv    EventKind = "llm_stream_chunk_received"
	EventLLMStreamEnded        EventKind = "llm_stream_ended"
	EventLLMResponseProcessed  EventKind = "llm_response_processed"
	EventApprovalReceived      EventKind = "approval_received"
	EventToolExecutionComplete EventKind = "tool_execution_completed"
	EventToolAutoLoopCancelled EventKind = "tool_auto_loop_cancelled"
	EventTransientError        EventKind = "transient_error"
	EventFatalError            EventKind = "fatal_error"
	EventMaxRetriesExceeded    EventKind = "max_retries_exceeded"
)

// Event is the single envelope type Fire accepts. Only the fields relevant
// to Kind need be set.
type Event struct {
	Kind EventKind

	// LLMResponseProcessed
	HasTools bool
	AllAuto  bool

	// ApprovalReceived
	Approved bool

	// ToolExecutionCompleted
	Success   bool
	Cancelled bool

	// TransientError / FatalError
	ErrorKind string
	Category  string
}
