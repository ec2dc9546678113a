// Package models holds the wire and persistence types shared across the
// conversation core: messages, branches, streaming state, and the signaling
// events the broadcaster fans out.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// RichType tags the semantic variant an InternalMessage carries. Two messages
// with the same Role can carry different RichTypes (an assistant message
// mid-stream is StreamingResponse; once finalized callers still treat it as
// Text for display).
type RichType string

const (
	RichTypeText             RichType = "text"
	RichTypeImage            RichType = "image"
	RichTypeFileReference    RichType = "file_reference"
	RichTypeToolRequest      RichType = "tool_request"
	RichTypeToolResult       RichType = "tool_result"
	RichTypeStreamingResponse RichType = "streaming_response"
	RichTypeSystemControl    RichType = "system_control"
	RichTypeProcessing       RichType = "processing"
	RichTypeWorkflow         RichType = "workflow"
)

// ContentPartType tags the variant of a ContentPart.
type ContentPartType string

const (
	ContentPartText       ContentPartType = "text"
	ContentPartImage      ContentPartType = "image"
	ContentPartToolCall   ContentPartType = "tool_call"
	ContentPartToolResult ContentPartType = "tool_result"
)

// ContentPart is one element of an InternalMessage's ordered content list.
// Only the field matching Type is meaningful; the rest are zero.
type ContentPart struct {
	Type ContentPartType `json:"type"`

	// Text holds the literal text for Type==text.
	Text string `json:"text,omitempty"`

	// ImageRef identifies an image for Type==image; VisionMode controls how
	// the LLM adapter should treat it (see ImageVisionMode).
	ImageRef   string         `json:"image_ref,omitempty"`
	VisionMode ImageVisionMode `json:"vision_mode,omitempty"`

	// ToolCallID cross-references a ToolCallRequest/ToolCallResult for
	// Type==tool_call / Type==tool_result.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ImageVisionMode selects how an image ContentPart is presented to the LLM.
type ImageVisionMode string

const (
	ImageVisionInline ImageVisionMode = "vision_inline"
	ImageVisionOCR    ImageVisionMode = "ocr_then_text"
)

// ApprovalStatus is the per-tool-call lifecycle tag. It transitions only
// Pending -> {Approved, AutoApproved, Denied}; never reversed.
type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalApproved     ApprovalStatus = "approved"
	ApprovalDenied       ApprovalStatus = "denied"
	ApprovalAutoApproved ApprovalStatus = "auto_approved"
)

// ToolArgsKind tags which shape ToolCallRequest.Arguments carries.
type ToolArgsKind string

const (
	ToolArgsString     ToolArgsKind = "string"
	ToolArgsStringList ToolArgsKind = "string_list"
	ToolArgsStructured ToolArgsKind = "structured"
)

// ToolArgs is a tagged union over the three shapes a tool call's arguments
// may take: a bare string, a list of strings, or an arbitrary structured
// value (typically decoded from the LLM's JSON tool-call payload).
type ToolArgs struct {
	Kind       ToolArgsKind    `json:"kind"`
	String     string          `json:"string,omitempty"`
	StringList []string        `json:"string_list,omitempty"`
	Structured json.RawMessage `json:"structured,omitempty"`
}

// ToolCallRequest is one tool invocation the LLM asked for.
type ToolCallRequest struct {
	ID             string         `json:"id"`
	ToolName       string         `json:"tool_name"`
	Arguments      ToolArgs       `json:"arguments"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
}

// ToolCallResult is the outcome of executing a ToolCallRequest.
type ToolCallResult struct {
	RequestID string          `json:"request_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
}

// MessageMetadata carries advisory, non-authoritative bookkeeping about an
// InternalMessage. DisplayHint in particular must never gate semantics.
type MessageMetadata struct {
	Source        string         `json:"source,omitempty"`
	DisplayHint   string         `json:"display_hint,omitempty"`
	OriginalInput string         `json:"original_input,omitempty"`
	TraceID       string         `json:"trace_id,omitempty"`
	Streaming     *StreamingMeta `json:"streaming,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// StreamingMeta summarizes a finalized StreamingResponse for metadata
// display; it is populated by Finalize (see package streaming).
type StreamingMeta struct {
	ChunkCount      int    `json:"chunk_count"`
	TotalDurationMs int64  `json:"total_duration_ms"`
	FinishReason    string `json:"finish_reason,omitempty"`
}

// InternalMessage is the rich, internal representation of one turn's worth
// of content. The pipeline and FSM reason entirely in terms of
// InternalMessage; the LLM adapter only ever observes its ClassicalMessage
// projection (see ToClassical).
type InternalMessage struct {
	ID       string        `json:"id"`
	Role     Role          `json:"role"`
	RichType RichType      `json:"rich_type"`
	Content  []ContentPart `json:"content"`

	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolResult *ToolCallResult   `json:"tool_result,omitempty"`

	Streaming *StreamingResponse `json:"streaming,omitempty"`

	Metadata  MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Text concatenates every text ContentPart, in order. This is the
// authoritative "final accumulated text" for a non-streaming message.
func (m *InternalMessage) Text() string {
	if m == nil {
		return ""
	}
	var out []byte
	for _, part := range m.Content {
		if part.Type == ContentPartText {
			out = append(out, part.Text...)
		}
	}
	return string(out)
}

// MessageNode wraps an InternalMessage with its parent message id, used only
// for graph visualization. Branch sequences are the sole ordering authority.
type MessageNode struct {
	Message      *InternalMessage `json:"message"`
	ParentMsgID  string           `json:"parent_message_id,omitempty"`
}

// ClassicalMessage is the (role, content, tool_calls, tool_result) shape
// external LLM adapters expect. It is produced from an InternalMessage by
// ToClassical and never persisted on its own.
type ClassicalMessage struct {
	Role       Role                `json:"role"`
	Content    string              `json:"content"`
	ToolCalls  []ClassicalToolCall `json:"tool_calls,omitempty"`
	ToolResult *ToolCallResult     `json:"tool_result,omitempty"`
}

// ClassicalToolCall is the flattened, adapter-facing projection of a
// ToolCallRequest: a plain name plus a JSON payload, regardless of which
// ToolArgsKind the rich variant used internally.
type ClassicalToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToClassical projects an InternalMessage to the shape external LLM adapters
// observe. Text ContentParts are joined on concatenation, per the Message
// Model's content-part contract.
func ToClassical(msg *InternalMessage) ClassicalMessage {
	if msg == nil {
		return ClassicalMessage{}
	}
	out := ClassicalMessage{
		Role:       msg.Role,
		Content:    msg.Text(),
		ToolResult: msg.ToolResult,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ClassicalToolCall{
			ID:    tc.ID,
			Name:  tc.ToolName,
			Input: toolArgsToJSON(tc.Arguments),
		})
	}
	return out
}

func toolArgsToJSON(args ToolArgs) json.RawMessage {
	switch args.Kind {
	case ToolArgsString:
		b, _ := json.Marshal(args.String)
		return b
	case ToolArgsStringList:
		b, _ := json.Marshal(args.StringList)
		return b
	case ToolArgsStructured:
		if len(args.Structured) == 0 {
			return json.RawMessage("null")
		}
		return args.Structured
	default:
		return json.RawMessage("null")
	}
}
