package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/kairoslabs/convocore/internal/coreerrors"
	"github.com/kairoslabs/convocore/pkg/models"
)

const (
	contextFileName = "context.json"
	messagesDirName = "messages_pool"
	fileMode        = 0644
	dirMode         = 0755
)

// FileStore persists contexts and messages under baseDir, one subdirectory
// per context id. Writes use a temp-file-then-rename so a crash mid-write
// never leaves a half-written file visible under its final name.
type FileStore struct {
	baseDir string

	// writeMus serializes writes to a single context's files; the storage
	// layer permits concurrent writes across contexts, so the map holds one
	// mutex per context id rather than a single global lock.
	mu       sync.Mutex
	writeMus map[string]*sync.Mutex
}

// NewFileStore creates a FileStore rooted at baseDir, creating it if
// necessary.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, dirMode); err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStorageError, err, "create store base directory")
	}
	return &FileStore{baseDir: baseDir, writeMus: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) lockFor(contextID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.writeMus[contextID]
	if !ok {
		m = &sync.Mutex{}
		s.writeMus[contextID] = m
	}
	return m
}

func (s *FileStore) contextDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *FileStore) messagesDir(id string) string {
	return filepath.Join(s.contextDir(id), messagesDirName)
}

func (s *FileStore) contextFile(id string) string {
	return filepath.Join(s.contextDir(id), contextFileName)
}

func (s *FileStore) messageFile(contextID, messageID string) string {
	return filepath.Join(s.messagesDir(contextID), messageID+".json")
}

// writeJSONAtomic marshals v and writes it to path via a sibling .tmp file
// followed by an atomic rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindStorageError, err, "marshal")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, fileMode); err != nil {
		return coreerrors.Wrap(coreerrors.KindStorageError, err, "write temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return coreerrors.Wrap(coreerrors.KindStorageError, err, "rename into place")
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return coreerrors.NotFound("file", path)
		}
		return coreerrors.Wrap(coreerrors.KindStorageError, err, "read file")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return coreerrors.Wrap(coreerrors.KindStorageError, err, "parse file")
	}
	return nil
}

func (s *FileStore) CreateContext(_ context.Context, snapshot *models.ContextSnapshot) error {
	lock := s.lockFor(snapshot.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(s.messagesDir(snapshot.ID), dirMode); err != nil {
		return coreerrors.Wrap(coreerrors.KindStorageError, err, "create context directory")
	}
	return writeJSONAtomic(s.contextFile(snapshot.ID), snapshot)
}

func (s *FileStore) LoadContext(_ context.Context, id string) (*models.ContextSnapshot, error) {
	var snapshot models.ContextSnapshot
	if err := readJSON(s.contextFile(id), &snapshot); err != nil {
		if ce, ok := coreerrors.As(err); ok && ce.Kind == coreerrors.KindNotFound {
			return nil, coreerrors.NotFound("context", id)
		}
		return nil, err
	}
	return &snapshot, nil
}

func (s *FileStore) SaveContext(_ context.Context, snapshot *models.ContextSnapshot) error {
	lock := s.lockFor(snapshot.ID)
	lock.Lock()
	defer lock.Unlock()
	return writeJSONAtomic(s.contextFile(snapshot.ID), snapshot)
}

func (s *FileStore) DeleteContext(_ context.Context, id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.contextDir(id)); err != nil {
		return coreerrors.Wrap(coreerrors.KindStorageError, err, "remove context directory")
	}
	s.mu.Lock()
	delete(s.writeMus, id)
	s.mu.Unlock()
	return nil
}

func (s *FileStore) PutMessage(_ context.Context, contextID string, msg *models.InternalMessage) error {
	lock := s.lockFor(contextID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(s.messagesDir(contextID), dirMode); err != nil {
		return coreerrors.Wrap(coreerrors.KindStorageError, err, "create messages directory")
	}
	return writeJSONAtomic(s.messageFile(contextID, msg.ID), msg)
}

func (s *FileStore) GetMessage(_ context.Context, contextID, messageID string) (*models.InternalMessage, error) {
	var msg models.InternalMessage
	if err := readJSON(s.messageFile(contextID, messageID), &msg); err != nil {
		if ce, ok := coreerrors.As(err); ok && ce.Kind == coreerrors.KindNotFound {
			return nil, coreerrors.NotFound("message", messageID)
		}
		return nil, err
	}
	return &msg, nil
}

func (s *FileStore) GetMessagesBatch(ctx context.Context, contextID string, ids []string) ([]*models.InternalMessage, []string, error) {
	found := make([]*models.InternalMessage, 0, len(ids))
	var missing []string
	for _, id := range ids {
		msg, err := s.GetMessage(ctx, contextID, id)
		if err != nil {
			if ce, ok := coreerrors.As(err); ok && ce.Kind == coreerrors.KindNotFound {
				missing = append(missing, id)
				continue
			}
			return nil, nil, err
		}
		found = append(found, msg)
	}
	return found, missing, nil
}

func (s *FileStore) ListContexts(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStorageError, err, "list context directory")
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

var _ Store = (*FileStore)(nil)
