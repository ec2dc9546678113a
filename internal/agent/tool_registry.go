// Package agent supplies a concrete, in-memory tool registry for the demo
// CLI: a registered Tool plus its permitted agent roles, satisfying the
// pipeline.ToolRegistry and toolengine.Invoker seams the core leaves open
// for callers to fill. The conversation core itself never imports this
// package; it lives alongside cmd/coredemo as one way to wire those seams.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kairoslabs/convocore/internal/jobs"
	"github.com/kairoslabs/convocore/internal/pipeline"
	"github.com/kairoslabs/convocore/pkg/models"
)

// Tool is one concrete tool implementation: it runs against ToolArgs and
// returns a raw JSON payload. Filesystem/exec backends are not part of this
// package; a Tool's Run closure supplies whatever backend the caller wants.
type Tool struct {
	Name        string
	Description string
	Roles       []models.AgentRole
	// Async marks a tool whose execution should not hold up FSM progression.
	// Registry.Invoke still returns synchronously (the toolengine.Invoker
	// seam is synchronous), but for an Async tool it returns a "queued"
	// success result immediately and completes the real work in a job
	// tracked by Jobs, rather than blocking on Run.
	Async bool
	Run   func(ctx context.Context, args models.ToolArgs) (json.RawMessage, error)
	// Schema is a tool's JSON Schema for its structured argument shape, used
	// by pipeline.ToolEnhancement.ValidateArguments to reject a malformed
	// structured tool call before dispatch. Nil skips schema validation.
	Schema json.RawMessage
}

// Registry is a thread-safe, name-keyed collection of Tools. It implements
// pipeline.ToolRegistry (ToolsForRole) and toolengine.Invoker (Invoke), so
// it can be wired directly into both the Pipeline's ToolEnhancement stage
// and an Engine without any adapter glue.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	// Jobs tracks async tool executions. Nil disables async dispatch: an
	// Async tool then runs synchronously like any other.
	Jobs jobs.Store
}

// NewRegistry builds an empty Registry. jobStore may be nil.
func NewRegistry(jobStore jobs.Store) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		Jobs:  jobStore,
	}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name and whether it was found.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ToolsForRole satisfies pipeline.ToolRegistry: only tools with no role
// restriction, or an explicit match for role, are visible to that role's
// prompt.
func (r *Registry) ToolsForRole(role models.AgentRole) []pipeline.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []pipeline.ToolDefinition
	for _, t := range r.tools {
		if !allowedForRole(t.Roles, role) {
			continue
		}
		defs = append(defs, pipeline.ToolDefinition{Name: t.Name, Description: t.Description})
	}
	return defs
}

// SchemaFor satisfies pipeline.SchemaProvider, supplying a tool's JSON
// Schema for structured-argument validation ahead of dispatch.
func (r *Registry) SchemaFor(toolName string) (json.RawMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[toolName]
	if !ok || len(t.Schema) == 0 {
		return nil, false
	}
	return t.Schema, true
}

func allowedForRole(roles []models.AgentRole, role models.AgentRole) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Invoke satisfies toolengine.Invoker. A synchronous tool runs in place and
// its result is returned directly. An Async tool with a non-nil Jobs store
// is handed to a background goroutine: Invoke returns immediately with a
// queued marker result carrying the job id, and the job store is updated
// once the tool actually finishes.
func (r *Registry) Invoke(ctx context.Context, call models.ToolCallRequest) (models.ToolCallResult, error) {
	tool, ok := r.Get(call.ToolName)
	if !ok {
		return models.ToolCallResult{
			RequestID: call.ID,
			Success:   false,
			Error:     fmt.Sprintf("tool not found: %s", call.ToolName),
		}, nil
	}

	if tool.Async && r.Jobs != nil {
		return r.invokeAsync(tool, call)
	}
	return r.invokeSync(ctx, tool, call)
}

func (r *Registry) invokeSync(ctx context.Context, tool Tool, call models.ToolCallRequest) (models.ToolCallResult, error) {
	raw, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		return models.ToolCallResult{RequestID: call.ID, Success: false, Error: err.Error()}, nil
	}
	return models.ToolCallResult{RequestID: call.ID, Success: true, Result: raw}, nil
}

func (r *Registry) invokeAsync(tool Tool, call models.ToolCallRequest) (models.ToolCallResult, error) {
	job := &jobs.Job{
		ID:         call.ID,
		ToolName:   tool.Name,
		ToolCallID: call.ID,
		Status:     jobs.StatusQueued,
		CreatedAt:  time.Now(),
	}
	if err := r.Jobs.Create(context.Background(), job); err != nil {
		return models.ToolCallResult{RequestID: call.ID, Success: false, Error: err.Error()}, nil
	}

	go r.runAsyncJob(tool, call, job)

	queued, _ := json.Marshal(map[string]string{"job_id": job.ID, "status": string(jobs.StatusQueued)})
	return models.ToolCallResult{RequestID: call.ID, Success: true, Result: queued}, nil
}

func (r *Registry) runAsyncJob(tool Tool, call models.ToolCallRequest, job *jobs.Job) {
	ctx := context.Background()
	job.Status = jobs.StatusRunning
	job.StartedAt = time.Now()
	_ = r.Jobs.Update(ctx, job)

	raw, err := tool.Run(ctx, call.Arguments)
	job.FinishedAt = time.Now()
	if err != nil {
		job.Status = jobs.StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = jobs.StatusSucceeded
		job.Result = &models.ToolCallResult{RequestID: call.ID, Success: true, Result: raw}
	}
	_ = r.Jobs.Update(ctx, job)
}
