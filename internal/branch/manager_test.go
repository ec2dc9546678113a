package branch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/convocore/pkg/models"
)

func newTestSnapshot() *models.ContextSnapshot {
	return &models.ContextSnapshot{
		ID:       "ctx-1",
		Branches: map[string]*models.Branch{},
	}
}

func TestCreate(t *testing.T) {
	snapshot := newTestSnapshot()

	b, err := Create(snapshot, "main", "be helpful")
	require.NoError(t, err)
	assert.Equal(t, "main", b.Name)

	_, err = Create(snapshot, "main", "")
	assert.ErrorIs(t, err, ErrBranchAlreadyExists)
}

func TestForkAtMessageID(t *testing.T) {
	snapshot := newTestSnapshot()
	main, err := Create(snapshot, "main", "")
	require.NoError(t, err)
	main.MessageIDs = []string{"u1", "a1", "u2", "a2"}

	alt, err := Fork(snapshot, "main", "alt", "a1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1"}, alt.MessageIDs)

	// appending to alt never touches main
	require.NoError(t, Append(snapshot, "alt", "u3"))
	assert.Equal(t, []string{"u1", "a1", "u3"}, snapshot.Branches["alt"].MessageIDs)
	assert.Equal(t, []string{"u1", "a1", "u2", "a2"}, snapshot.Branches["main"].MessageIDs)
}

func TestFork_ParentNotFound(t *testing.T) {
	snapshot := newTestSnapshot()
	_, err := Fork(snapshot, "missing", "alt", "", "")
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestFork_NameAlreadyExists(t *testing.T) {
	snapshot := newTestSnapshot()
	_, err := Create(snapshot, "main", "")
	require.NoError(t, err)
	_, err = Create(snapshot, "alt", "")
	require.NoError(t, err)

	_, err = Fork(snapshot, "main", "alt", "", "")
	assert.ErrorIs(t, err, ErrBranchAlreadyExists)
}

func TestSwitchAndActive(t *testing.T) {
	snapshot := newTestSnapshot()
	_, err := Create(snapshot, "main", "")
	require.NoError(t, err)

	_, err = Active(snapshot)
	assert.ErrorIs(t, err, ErrNoActiveBranch)

	require.NoError(t, Switch(snapshot, "main"))
	active, err := Active(snapshot)
	require.NoError(t, err)
	assert.Equal(t, "main", active.Name)

	err = Switch(snapshot, "missing")
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestAppend_BranchNotFound(t *testing.T) {
	snapshot := newTestSnapshot()
	err := Append(snapshot, "missing", "m1")
	assert.ErrorIs(t, err, ErrBranchNotFound)
}
