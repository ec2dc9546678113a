package store

import (
	"context"
	"sync"

	"github.com/kairoslabs/convocore/internal/coreerrors"
	"github.com/kairoslabs/convocore/pkg/models"
)

// MemoryStore is an in-memory Store used by tests and the coredemo CLI's
// ephemeral mode. It mirrors FileStore's not_found semantics exactly so
// orchestrator tests can run against either implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	contexts  map[string]*models.ContextSnapshot
	messages  map[string]map[string]*models.InternalMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts: make(map[string]*models.ContextSnapshot),
		messages: make(map[string]map[string]*models.InternalMessage),
	}
}

func (m *MemoryStore) CreateContext(_ context.Context, snapshot *models.ContextSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[snapshot.ID] = snapshot.Clone()
	if _, ok := m.messages[snapshot.ID]; !ok {
		m.messages[snapshot.ID] = make(map[string]*models.InternalMessage)
	}
	return nil
}

func (m *MemoryStore) LoadContext(_ context.Context, id string) (*models.ContextSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot, ok := m.contexts[id]
	if !ok {
		return nil, coreerrors.NotFound("context", id)
	}
	return snapshot.Clone(), nil
}

func (m *MemoryStore) SaveContext(_ context.Context, snapshot *models.ContextSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contexts[snapshot.ID]; !ok {
		return coreerrors.NotFound("context", snapshot.ID)
	}
	m.contexts[snapshot.ID] = snapshot.Clone()
	return nil
}

func (m *MemoryStore) DeleteContext(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) PutMessage(_ context.Context, contextID string, msg *models.InternalMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.messages[contextID]
	if !ok {
		bucket = make(map[string]*models.InternalMessage)
		m.messages[contextID] = bucket
	}
	clone := *msg
	bucket[msg.ID] = &clone
	return nil
}

func (m *MemoryStore) GetMessage(_ context.Context, contextID, messageID string) (*models.InternalMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.messages[contextID]
	if !ok {
		return nil, coreerrors.NotFound("message", messageID)
	}
	msg, ok := bucket[messageID]
	if !ok {
		return nil, coreerrors.NotFound("message", messageID)
	}
	clone := *msg
	return &clone, nil
}

func (m *MemoryStore) GetMessagesBatch(ctx context.Context, contextID string, ids []string) ([]*models.InternalMessage, []string, error) {
	found := make([]*models.InternalMessage, 0, len(ids))
	var missing []string
	for _, id := range ids {
		msg, err := m.GetMessage(ctx, contextID, id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		found = append(found, msg)
	}
	return found, missing, nil
}

func (m *MemoryStore) ListContexts(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ Store = (*MemoryStore)(nil)
