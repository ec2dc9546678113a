// Package branch implements fork/switch/append over a context's branch
// map. A branch owns only its ordered message id list; the pool itself is
// never copied, so forking is an O(k) prefix copy of ids.
package branch

import (
	"errors"
	"time"

	"github.com/kairoslabs/convocore/pkg/models"
)

var (
	ErrBranchNotFound      = errors.New("branch: not found")
	ErrBranchAlreadyExists = errors.New("branch: name already exists")
	ErrNoActiveBranch      = errors.New("branch: context has no active branch")
)

// Create adds a new, empty branch to snapshot and returns it. Returns
// ErrBranchAlreadyExists if name is already in use.
func Create(snapshot *models.ContextSnapshot, name, systemPrompt string) (*models.Branch, error) {
	if _, exists := snapshot.Branches[name]; exists {
		return nil, ErrBranchAlreadyExists
	}
	b := models.NewBranch(name, systemPrompt)
	if snapshot.Branches == nil {
		snapshot.Branches = make(map[string]*models.Branch)
	}
	snapshot.Branches[name] = b
	snapshot.UpdatedAt = time.Now()
	return b, nil
}

// Fork creates a new branch by copying parent's message ids up to and
// including forkFromMessageID. An empty forkFromMessageID forks at the
// root (an empty branch).
func Fork(snapshot *models.ContextSnapshot, parentName, newName, forkFromMessageID, systemPrompt string) (*models.Branch, error) {
	if _, exists := snapshot.Branches[newName]; exists {
		return nil, ErrBranchAlreadyExists
	}
	parent, ok := snapshot.Branches[parentName]
	if !ok {
		return nil, ErrBranchNotFound
	}
	child, err := models.ForkBranch(parent, newName, forkFromMessageID, systemPrompt)
	if err != nil {
		return nil, err
	}
	if snapshot.Branches == nil {
		snapshot.Branches = make(map[string]*models.Branch)
	}
	snapshot.Branches[newName] = child
	snapshot.UpdatedAt = time.Now()
	return child, nil
}

// Switch changes the context's active branch. Returns ErrBranchNotFound if
// name does not exist.
func Switch(snapshot *models.ContextSnapshot, name string) error {
	if _, ok := snapshot.Branches[name]; !ok {
		return ErrBranchNotFound
	}
	snapshot.ActiveBranchName = name
	snapshot.UpdatedAt = time.Now()
	return nil
}

// Active returns the context's currently active branch.
func Active(snapshot *models.ContextSnapshot) (*models.Branch, error) {
	if snapshot.ActiveBranchName == "" {
		return nil, ErrNoActiveBranch
	}
	b, ok := snapshot.Branches[snapshot.ActiveBranchName]
	if !ok {
		return nil, ErrBranchNotFound
	}
	return b, nil
}

// Append records messageID at the end of the named branch's id list. It
// does not write the message itself; callers persist the message to the
// pool separately (see package store).
func Append(snapshot *models.ContextSnapshot, branchName, messageID string) error {
	b, ok := snapshot.Branches[branchName]
	if !ok {
		return ErrBranchNotFound
	}
	b.MessageIDs = append(b.MessageIDs, messageID)
	b.UpdatedAt = time.Now()
	snapshot.UpdatedAt = b.UpdatedAt
	return nil
}

// Get returns the named branch.
func Get(snapshot *models.ContextSnapshot, name string) (*models.Branch, error) {
	b, ok := snapshot.Branches[name]
	if !ok {
		return nil, ErrBranchNotFound
	}
	return b, nil
}

// List returns every branch name in snapshot, in no particular order.
func List(snapshot *models.ContextSnapshot) []string {
	names := make([]string, 0, len(snapshot.Branches))
	for name := range snapshot.Branches {
		names = append(names, name)
	}
	return names
}
