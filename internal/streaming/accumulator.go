// Package streaming owns the StreamingResponse lifecycle on an in-flight
// assistant message: begin, append, finalize, and the idempotent pull
// query clients use to fetch missed chunks.
package streaming

import (
	"errors"
	"time"

	"github.com/kairoslabs/convocore/pkg/models"
)

var (
	// ErrStreamingClosed is returned by Append after Finalize has run.
	ErrStreamingClosed = errors.New("streaming: append after finalize")

	// ErrNotStreaming is returned by Pull when the message never carried a
	// StreamingResponse.
	ErrNotStreaming = errors.New("streaming: message is not a streaming message")
)

// Begin attaches a fresh, empty StreamingResponse to msg, recording the
// start time. msg.RichType is set to streaming_response.
func Begin(msg *models.InternalMessage, model string) {
	now := time.Now()
	msg.RichType = models.RichTypeStreamingResponse
	msg.Streaming = &models.StreamingResponse{
		StartedAt: now,
		Model:     model,
	}
	msg.CreatedAt = now
	msg.UpdatedAt = now
}

// Append assigns the next sequence number to delta and appends it to msg's
// StreamingResponse, returning the assigned sequence. Sequence numbers
// start at 1 and increase by exactly 1 per call.
func Append(msg *models.InternalMessage, delta string) (int64, error) {
	resp := msg.Streaming
	if resp == nil {
		return 0, ErrNotStreaming
	}
	if resp.Completed() {
		return 0, ErrStreamingClosed
	}

	now := time.Now()
	seq := resp.CurrentSequence() + 1

	var intervalMs int64
	if len(resp.Chunks) > 0 {
		intervalMs = now.Sub(resp.Chunks[len(resp.Chunks)-1].Timestamp).Milliseconds()
	} else {
		intervalMs = now.Sub(resp.StartedAt).Milliseconds()
	}

	accumulated := 0
	for _, c := range resp.Chunks {
		accumulated += len(c.Delta)
	}
	accumulated += len(delta)

	resp.Chunks = append(resp.Chunks, models.StreamChunk{
		Sequence:         seq,
		Delta:            delta,
		Timestamp:        now,
		AccumulatedChars: accumulated,
		IntervalMs:       intervalMs,
	})
	resp.FinalText += delta
	msg.UpdatedAt = now
	return seq, nil
}

// Finalize closes msg's StreamingResponse: sets completed_at, total
// duration, usage, and populates metadata.streaming for display. After
// Finalize, Append always fails with ErrStreamingClosed.
func Finalize(msg *models.InternalMessage, finishReason string, usage *models.TokenUsage) error {
	resp := msg.Streaming
	if resp == nil {
		return ErrNotStreaming
	}
	if resp.Completed() {
		return nil
	}

	now := time.Now()
	resp.CompletedAt = &now
	resp.TotalDurationMs = now.Sub(resp.StartedAt).Milliseconds()
	resp.FinishReason = finishReason
	resp.Usage = usage

	msg.Content = []models.ContentPart{{Type: models.ContentPartText, Text: resp.FinalText}}
	msg.Metadata.Streaming = &models.StreamingMeta{
		ChunkCount:      len(resp.Chunks),
		TotalDurationMs: resp.TotalDurationMs,
		FinishReason:    finishReason,
	}
	msg.UpdatedAt = now
	return nil
}

// ChunkPage is the response to a pull query: every chunk with sequence >
// fromSequence, plus the message's current final sequence and completion
// state.
type ChunkPage struct {
	Chunks          []models.StreamChunk
	CurrentSequence int64
	Completed       bool
}

// Pull returns chunks with sequence > fromSequence, in order. Calling with
// fromSequence past the current sequence returns an empty, non-error page,
// so repeated polls are idempotent.
func Pull(msg *models.InternalMessage, fromSequence int64) (ChunkPage, error) {
	resp := msg.Streaming
	if resp == nil {
		return ChunkPage{}, ErrNotStreaming
	}

	var page []models.StreamChunk
	for _, c := range resp.Chunks {
		if c.Sequence > fromSequence {
			page = append(page, c)
		}
	}
	return ChunkPage{
		Chunks:          page,
		CurrentSequence: resp.CurrentSequence(),
		Completed:       resp.Completed(),
	}, nil
}
