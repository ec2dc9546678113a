package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranch_Contains(t *testing.T) {
	b := &Branch{MessageIDs: []string{"m1", "m2", "m3"}}

	assert.True(t, b.Contains("m2"))
	assert.False(t, b.Contains("m4"))

	var nilBranch *Branch
	assert.False(t, nilBranch.Contains("m1"))
}

func TestBranch_Clone_IsIndependent(t *testing.T) {
	original := &Branch{Name: "main", MessageIDs: []string{"m1", "m2"}}
	clone := original.Clone()

	require.Equal(t, original.MessageIDs, clone.MessageIDs)

	clone.MessageIDs[0] = "mutated"
	assert.Equal(t, "m1", original.MessageIDs[0])
}

func TestNewBranch(t *testing.T) {
	b := NewBranch("main", "be helpful")

	assert.Equal(t, "main", b.Name)
	assert.Equal(t, "be helpful", b.SystemPrompt)
	assert.Empty(t, b.MessageIDs)
	assert.False(t, b.CreatedAt.IsZero())
}

func TestForkBranch(t *testing.T) {
	parent := NewBranch("main", "be helpful")
	parent.MessageIDs = []string{"m1", "m2", "m3", "m4"}

	t.Run("forks at message id", func(t *testing.T) {
		child, err := ForkBranch(parent, "alt", "m2", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"m1", "m2"}, child.MessageIDs)
		assert.Equal(t, "m2", child.ParentMessageID)
		assert.Equal(t, parent.SystemPrompt, child.SystemPrompt)
	})

	t.Run("empty fork point starts empty", func(t *testing.T) {
		child, err := ForkBranch(parent, "alt", "", "")
		require.NoError(t, err)
		assert.Empty(t, child.MessageIDs)
		assert.Empty(t, child.ParentMessageID)
	})

	t.Run("fork point not found", func(t *testing.T) {
		_, err := ForkBranch(parent, "alt", "missing", "")
		assert.ErrorIs(t, err, ErrForkPointNotFound)
	})

	t.Run("overrides system prompt", func(t *testing.T) {
		child, err := ForkBranch(parent, "alt", "m1", "different prompt")
		require.NoError(t, err)
		assert.Equal(t, "different prompt", child.SystemPrompt)
	})

	t.Run("fork does not share backing array with parent", func(t *testing.T) {
		child, err := ForkBranch(parent, "alt", "m3", "")
		require.NoError(t, err)
		child.MessageIDs[0] = "mutated"
		assert.Equal(t, "m1", parent.MessageIDs[0])
	})
}
