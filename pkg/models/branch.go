package models

import "time"

// Branch is an ordered view of message ids within a context. Multiple
// branches share the pool; a branch owns only its id list, never message
// data, so forking is a cheap prefix copy.
type Branch struct {
	Name            string    `json:"name"`
	MessageIDs      []string  `json:"message_ids"`
	SystemPrompt    string    `json:"system_prompt,omitempty"`
	ParentMessageID string    `json:"parent_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Contains reports whether id already appears in the branch's sequence.
func (b *Branch) Contains(id string) bool {
	if b == nil {
		return false
	}
	for _, existing := range b.MessageIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers mutating the result never leak
// changes back into a store's internal state.
func (b *Branch) Clone() *Branch {
	if b == nil {
		return nil
	}
	clone := *b
	if b.MessageIDs != nil {
		clone.MessageIDs = append([]string(nil), b.MessageIDs...)
	}
	return &clone
}

// NewBranch creates an empty, unforked branch.
func NewBranch(name, systemPrompt string) *Branch {
	now := time.Now()
	return &Branch{
		Name:         name,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ForkBranch creates a new branch by copying parent's message ids up to and
// including forkFromMessageID (the fork point). If forkFromMessageID is
// empty, the new branch starts empty. Copying is O(k) in the prefix length;
// no message data is duplicated, only the id list.
func ForkBranch(parent *Branch, name, forkFromMessageID, systemPrompt string) (*Branch, error) {
	branch := NewBranch(name, systemPrompt)
	if systemPrompt == "" {
		branch.SystemPrompt = parent.SystemPrompt
	}
	if forkFromMessageID == "" {
		return branch, nil
	}
	idx := -1
	for i, id := range parent.MessageIDs {
		if id == forkFromMessageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrForkPointNotFound
	}
	branch.MessageIDs = append([]string(nil), parent.MessageIDs[:idx+1]...)
	branch.ParentMessageID = forkFromMessageID
	return branch, nil
}
