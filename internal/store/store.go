// Package store is the MessagePool persistence layer: one file per message
// under a context's messages_pool directory, written atomically via a
// temp-file-then-rename, plus the context.json snapshot.
package store

import (
	"context"

	"github.com/kairoslabs/convocore/pkg/models"
)

// Store is the MessagePool contract. Implementations never mutate a
// message once Put has returned; a message is replaced wholesale (used by
// the streaming accumulator to persist accumulated chunks) or never again.
type Store interface {
	// CreateContext initializes a new, empty context folder/record and
	// persists snapshot.
	CreateContext(ctx context.Context, snapshot *models.ContextSnapshot) error

	// LoadContext reads the persisted snapshot, not found if absent.
	LoadContext(ctx context.Context, id string) (*models.ContextSnapshot, error)

	// SaveContext overwrites the persisted snapshot for an existing context.
	SaveContext(ctx context.Context, snapshot *models.ContextSnapshot) error

	// DeleteContext removes the context folder and every message under it.
	DeleteContext(ctx context.Context, id string) error

	// PutMessage writes (or overwrites) one message in the pool.
	PutMessage(ctx context.Context, contextID string, msg *models.InternalMessage) error

	// GetMessage reads one message by id, not found if absent.
	GetMessage(ctx context.Context, contextID, messageID string) (*models.InternalMessage, error)

	// GetMessagesBatch reads multiple messages, returning found messages in
	// the order requested plus the subset of ids that resolved to nothing.
	GetMessagesBatch(ctx context.Context, contextID string, ids []string) (found []*models.InternalMessage, missing []string, err error)

	// ListContexts enumerates all persisted context ids. Used by recovery
	// and administrative tooling, not the hot path.
	ListContexts(ctx context.Context) ([]string, error)
}
