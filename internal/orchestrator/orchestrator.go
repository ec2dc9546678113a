// Package orchestrator is the Context Orchestrator (C9): the top-level
// public action API that composes the store, branch manager, FSM, pipeline,
// tool engine, streaming accumulator, and broadcaster into create_context,
// delete_context, send_message, approve_tools, cancel_auto_loop,
// get_metadata, get_messages_batch, get_streaming_chunks, and
// subscribe_events.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kairoslabs/convocore/internal/branch"
	"github.com/kairoslabs/convocore/internal/broadcaster"
	"github.com/kairoslabs/convocore/internal/coreerrors"
	"github.com/kairoslabs/convocore/internal/coreobs"
	"github.com/kairoslabs/convocore/internal/fsm"
	"github.com/kairoslabs/convocore/internal/pipeline"
	"github.com/kairoslabs/convocore/internal/store"
	"github.com/kairoslabs/convocore/internal/streaming"
	"github.com/kairoslabs/convocore/internal/toolengine"
	"github.com/kairoslabs/convocore/pkg/models"
)

// LLMChunk is one increment of an LLM adapter's streamed response. With
// Done false, Text carries the next fragment; with Done true, ToolCalls,
// FinishReason and Usage are final.
type LLMChunk struct {
	Text         string
	ToolCalls    []models.ToolCallRequest
	Done         bool
	FinishReason string
	Usage        *models.TokenUsage
	Err          error
}

// LLMAdapter is the external collaborator that actually talks to a model.
// The wire protocol client is explicitly out of scope for this core; this
// interface is the seam a concrete adapter implements.
type LLMAdapter interface {
	Stream(ctx context.Context, systemPrompt string, history []models.ClassicalMessage) (<-chan LLMChunk, error)
}

// Orchestrator wires C1-C8 into the public action surface. All fields are
// external collaborators except the per-context lock table, which this
// package owns outright.
type Orchestrator struct {
	Store        store.Store
	Broadcaster  *broadcaster.Broadcaster
	LLM          LLMAdapter
	ToolEngine   *toolengine.Engine
	Workspace    pipeline.Workspace
	ToolRegistry pipeline.ToolRegistry
	Packer       *pipeline.ContextPacking

	// Metrics and Tracer are the core's ambient observability surface. Both
	// are nil-safe: a zero-value Orchestrator records no metrics, and Tracer
	// defaults to coreobs.NoopTracer() in New so call sites never need a nil
	// check before starting a span.
	Metrics *coreobs.Metrics
	Tracer  *coreobs.Tracer

	// Logger receives structured key/value records at state transitions,
	// tool failures, and storage errors. A nil Logger falls back to
	// slog.Default() via the logger() accessor, so a zero-value Orchestrator
	// (as used in tests that don't call New) never panics on a nil dereference.
	Logger *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*contextLock
}

type contextLock struct {
	mu   sync.RWMutex
	refs int
}

// New builds an Orchestrator from its collaborators. LLM, ToolEngine,
// Workspace, and ToolRegistry may be nil for callers exercising only the
// actions that don't need them (e.g. create_context/get_metadata in tests).
func New(s store.Store, b *broadcaster.Broadcaster) *Orchestrator {
	return &Orchestrator{
		Store:       s,
		Broadcaster: b,
		Tracer:      coreobs.NoopTracer(),
		Logger:      slog.Default(),
		locks:       make(map[string]*contextLock),
	}
}

// logger returns o.Logger, falling back to slog.Default() so call sites
// never need a nil check.
func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) pipelineFor() *pipeline.Pipeline {
	return pipeline.Default(o.Workspace, o.ToolRegistry, o.Packer)
}

// lockContext acquires contextID's write lock and returns an unlock func.
func (o *Orchestrator) lockContext(contextID string) func() {
	return o.acquire(contextID, true)
}

// rLockContext acquires contextID's read lock and returns an unlock func.
func (o *Orchestrator) rLockContext(contextID string) func() {
	return o.acquire(contextID, false)
}

func (o *Orchestrator) acquire(contextID string, write bool) func() {
	o.locksMu.Lock()
	l := o.locks[contextID]
	if l == nil {
		l = &contextLock{}
		o.locks[contextID] = l
	}
	l.refs++
	o.locksMu.Unlock()

	if write {
		l.mu.Lock()
	} else {
		l.mu.RLock()
	}

	return func() {
		if write {
			l.mu.Unlock()
		} else {
			l.mu.RUnlock()
		}
		o.locksMu.Lock()
		l.refs--
		if l.refs <= 0 {
			delete(o.locks, contextID)
		}
		o.locksMu.Unlock()
	}
}

func (o *Orchestrator) dropLock(contextID string) {
	o.locksMu.Lock()
	delete(o.locks, contextID)
	o.locksMu.Unlock()
}

// CreateContext validates config, seeds a new context on an empty "main"
// branch in Idle, persists it, and returns its id.
func (o *Orchestrator) CreateContext(ctx context.Context, config models.ContextConfig) (string, error) {
	if err := config.Validate(); err != nil {
		return "", coreerrors.ValidationFailed(err.Error())
	}

	id := uuid.NewString()
	now := time.Now()
	snapshot := &models.ContextSnapshot{
		ID:               id,
		Config:           config,
		Branches:         map[string]*models.Branch{"main": models.NewBranch("main", "")},
		ActiveBranchName: "main",
		CurrentState:     string(fsm.StateIdle),
		ToolExec:         models.ToolExecutionContext{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	unlock := o.lockContext(id)
	defer unlock()

	if err := o.Store.CreateContext(ctx, snapshot); err != nil {
		o.logger().Error("storage error", "op", "create_context", "context_id", id, "error", err)
		return "", err
	}
	return id, nil
}

// DeleteContext removes the context's persisted state and notifies and
// closes its broadcast subscribers.
func (o *Orchestrator) DeleteContext(ctx context.Context, id string) error {
	unlock := o.lockContext(id)
	defer unlock()

	if err := o.Store.DeleteContext(ctx, id); err != nil {
		o.logger().Error("storage error", "op", "delete_context", "context_id", id, "error", err)
		return err
	}
	if o.Broadcaster != nil {
		o.Broadcaster.Close(id)
	}
	o.dropLock(id)
	return nil
}

// GetMetadata returns a lightweight, read-locked snapshot of a context.
func (o *Orchestrator) GetMetadata(ctx context.Context, id string) (models.Metadata, error) {
	unlock := o.rLockContext(id)
	defer unlock()

	snapshot, err := o.Store.LoadContext(ctx, id)
	if err != nil {
		return models.Metadata{}, err
	}
	activeBranch := snapshot.Branches[snapshot.ActiveBranchName]
	count := 0
	if activeBranch != nil {
		count = len(activeBranch.MessageIDs)
	}
	return models.Metadata{
		ID:           snapshot.ID,
		CurrentState: snapshot.CurrentState,
		ActiveBranch: snapshot.ActiveBranchName,
		MessageCount: count,
		ModelID:      snapshot.Config.ModelID,
		Mode:         snapshot.Config.Mode,
	}, nil
}

// GetMessagesBatch returns the requested messages in order plus the ids
// that resolved to nothing, under a read lock.
func (o *Orchestrator) GetMessagesBatch(ctx context.Context, id string, ids []string) ([]*models.InternalMessage, []string, error) {
	unlock := o.rLockContext(id)
	defer unlock()

	if _, err := o.Store.LoadContext(ctx, id); err != nil {
		return nil, nil, err
	}
	return o.Store.GetMessagesBatch(ctx, id, ids)
}

// GetStreamingChunks pulls the incremental chunks of an in-flight or
// completed streaming message past fromSequence.
func (o *Orchestrator) GetStreamingChunks(ctx context.Context, id, messageID string, fromSequence int64) (streaming.ChunkPage, error) {
	unlock := o.rLockContext(id)
	defer unlock()

	if _, err := o.Store.LoadContext(ctx, id); err != nil {
		return streaming.ChunkPage{}, err
	}
	msg, err := o.Store.GetMessage(ctx, id, messageID)
	if err != nil {
		return streaming.ChunkPage{}, err
	}
	page, err := streaming.Pull(msg, fromSequence)
	if err != nil {
		return streaming.ChunkPage{}, coreerrors.Wrap(coreerrors.KindValidationFailed, err, "message is not a streaming message")
	}
	return page, nil
}

// SubscribeEvents allocates an event stream for a context, returning it
// plus the unsubscribe function.
func (o *Orchestrator) SubscribeEvents(ctx context.Context, id string) (<-chan models.Event, func(), error) {
	unlock := o.rLockContext(id)
	defer unlock()

	if _, err := o.Store.LoadContext(ctx, id); err != nil {
		return nil, nil, err
	}
	ch, unsub := o.Broadcaster.Subscribe(id)
	return ch, unsub, nil
}

// CancelAutoLoop sets the cooperative cancel flag on a context's tool
// execution bookkeeping; observed at the next tool boundary. The pipeline
// processors do not check it.
func (o *Orchestrator) CancelAutoLoop(ctx context.Context, id, reason string) error {
	unlock := o.lockContext(id)
	defer unlock()

	snapshot, err := o.Store.LoadContext(ctx, id)
	if err != nil {
		return err
	}
	toolengine.Cancel(&snapshot.ToolExec)
	snapshot.UpdatedAt = time.Now()
	if err := o.Store.SaveContext(ctx, snapshot); err != nil {
		o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
		return err
	}
	return nil
}

func (o *Orchestrator) emit(contextID string, event models.Event) {
	if o.Broadcaster != nil {
		o.Broadcaster.Broadcast(contextID, event)
	}
}

func (o *Orchestrator) transition(snapshot *models.ContextSnapshot, machine *fsm.Machine, event fsm.Event) error {
	from := snapshot.CurrentState
	next, err := machine.Fire(event)
	snapshot.CurrentState = string(next)
	o.Metrics.ObserveTransition(from, string(next), string(event.Kind))
	if err != nil {
		o.logger().Warn("fsm transition rejected", "context_id", snapshot.ID, "from", from, "event", event.Kind, "error", err)
		return err
	}
	o.logger().Info("fsm transition", "context_id", snapshot.ID, "from", from, "to", next, "event", event.Kind)
	o.emit(snapshot.ID, models.NewStateChangedEvent(snapshot.ID, string(next), time.Now()))
	return nil
}

func loadMachine(snapshot *models.ContextSnapshot) *fsm.Machine {
	return fsm.Restore(fsm.State(snapshot.CurrentState))
}

func activeBranch(snapshot *models.ContextSnapshot) (*models.Branch, error) {
	b, err := branch.Active(snapshot)
	if err != nil {
		return nil, coreerrors.NotFound("branch", snapshot.ActiveBranchName)
	}
	return b, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
