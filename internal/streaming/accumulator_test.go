package streaming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/convocore/pkg/models"
)

func TestBeginAppendFinalize(t *testing.T) {
	msg := &models.InternalMessage{ID: "m1", Role: models.RoleAssistant}
	Begin(msg, "gpt-4")

	seq1, err := Append(msg, "Hel")
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq1)

	seq2, err := Append(msg, "lo")
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq2)

	require.NoError(t, Finalize(msg, "stop", &models.TokenUsage{InputTokens: 5, OutputTokens: 2}))

	assert.True(t, msg.Streaming.Completed())
	assert.Equal(t, "Hello", msg.Text())
	assert.Equal(t, 2, msg.Metadata.Streaming.ChunkCount)
}

func TestAppend_SequenceStrictlyIncreasing(t *testing.T) {
	msg := &models.InternalMessage{}
	Begin(msg, "gpt-4")

	var deltas []string
	for i := 0; i < 5; i++ {
		deltas = append(deltas, "x")
		seq, err := Append(msg, "x")
		require.NoError(t, err)
		assert.EqualValues(t, i+1, seq)
	}

	require.NoError(t, Finalize(msg, "stop", nil))
	assert.Equal(t, strings.Join(deltas, ""), msg.Text())
}

func TestAppend_AfterFinalizeFails(t *testing.T) {
	msg := &models.InternalMessage{}
	Begin(msg, "gpt-4")
	require.NoError(t, Finalize(msg, "stop", nil))

	_, err := Append(msg, "late")
	assert.ErrorIs(t, err, ErrStreamingClosed)
}

func TestAppend_NotStreaming(t *testing.T) {
	msg := &models.InternalMessage{}
	_, err := Append(msg, "x")
	assert.ErrorIs(t, err, ErrNotStreaming)
}

func TestPull_IncrementalAndIdempotent(t *testing.T) {
	msg := &models.InternalMessage{}
	Begin(msg, "gpt-4")
	_, _ = Append(msg, "a")
	_, _ = Append(msg, "b")
	_, _ = Append(msg, "c")

	page, err := Pull(msg, 0)
	require.NoError(t, err)
	require.Len(t, page.Chunks, 3)
	assert.EqualValues(t, 3, page.CurrentSequence)
	assert.False(t, page.Completed)

	page2, err := Pull(msg, 2)
	require.NoError(t, err)
	require.Len(t, page2.Chunks, 1)
	assert.EqualValues(t, 3, page2.Chunks[0].Sequence)

	// past current sequence: empty, not an error
	page3, err := Pull(msg, 10)
	require.NoError(t, err)
	assert.Empty(t, page3.Chunks)
}

func TestPull_NotStreaming(t *testing.T) {
	msg := &models.InternalMessage{}
	_, err := Pull(msg, 0)
	assert.ErrorIs(t, err, ErrNotStreaming)
}
