package models

import "time"

// StreamChunk is one delta of an in-flight streaming assistant message,
// identified by a per-message sequence number. Sequence numbers are
// contiguous from 1..N with no gaps.
type StreamChunk struct {
	Sequence         int64     `json:"sequence"`
	Delta            string    `json:"delta"`
	Timestamp        time.Time `json:"timestamp"`
	AccumulatedChars int       `json:"accumulated_chars"`
	IntervalMs       int64     `json:"interval_ms"`
}

// TokenUsage summarizes token accounting for a completed LLM turn.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamingResponse is carried by an assistant message while it streams, and
// remains attached (frozen) after Finalize. It lives inside exactly one
// MessageNode.
type StreamingResponse struct {
	FinalText string        `json:"final_text"`
	Chunks    []StreamChunk `json:"chunks"`

	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	TotalDurationMs int64      `json:"total_duration_ms,omitempty"`

	Model        string      `json:"model,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// Completed reports whether Finalize has run.
func (s *StreamingResponse) Completed() bool {
	return s != nil && s.CompletedAt != nil
}

// CurrentSequence returns the sequence number of the last appended chunk, or
// 0 if none have been appended yet.
func (s *StreamingResponse) CurrentSequence() int64 {
	if s == nil || len(s.Chunks) == 0 {
		return 0
	}
	return s.Chunks[len(s.Chunks)-1].Sequence
}
