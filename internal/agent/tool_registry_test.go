package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kairoslabs/convocore/internal/jobs"
	"github.com/kairoslabs/convocore/pkg/models"
)

func echoTool(name string, roles ...models.AgentRole) Tool {
	return Tool{
		Name:        name,
		Description: "echoes its string argument",
		Roles:       roles,
		Run: func(_ context.Context, args models.ToolArgs) (json.RawMessage, error) {
			return json.Marshal(args.String)
		},
	}
}

func TestRegistry_ToolsForRole_FiltersByRole(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("read_file", models.RoleAgentActor))
	r.Register(echoTool("make_plan", models.RoleAgentPlanner))
	r.Register(echoTool("read_any"))

	actorTools := r.ToolsForRole(models.RoleAgentActor)
	if len(actorTools) != 2 {
		t.Fatalf("expected 2 tools for actor, got %d", len(actorTools))
	}

	plannerTools := r.ToolsForRole(models.RoleAgentPlanner)
	if len(plannerTools) != 2 {
		t.Fatalf("expected 2 tools for planner, got %d", len(plannerTools))
	}
}

func TestRegistry_Invoke_UnknownToolFails(t *testing.T) {
	r := NewRegistry(nil)
	result, err := r.Invoke(context.Background(), models.ToolCallRequest{ID: "c1", ToolName: "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("expected unknown tool to fail")
	}
}

func TestRegistry_Invoke_SyncToolReturnsResult(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("echo"))

	result, err := r.Invoke(context.Background(), models.ToolCallRequest{
		ID:        "c1",
		ToolName:  "echo",
		Arguments: models.ToolArgs{Kind: models.ToolArgsString, String: "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	var got string
	if err := json.Unmarshal(result.Result, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got != "hi" {
		t.Errorf("expected echoed string, got %q", got)
	}
}

func TestRegistry_Invoke_SyncToolRunErrorIsNotAGoError(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(Tool{
		Name: "fails",
		Run: func(context.Context, models.ToolArgs) (json.RawMessage, error) {
			return nil, errors.New("boom")
		},
	})

	result, err := r.Invoke(context.Background(), models.ToolCallRequest{ID: "c1", ToolName: "fails"})
	if err != nil {
		t.Fatalf("tool failure must be carried in the result, not a Go error: %v", err)
	}
	if result.Success || result.Error != "boom" {
		t.Errorf("expected failure result with message boom, got %+v", result)
	}
}

func TestRegistry_Invoke_AsyncToolQueuesAndCompletesInBackground(t *testing.T) {
	jobStore := jobs.NewMemoryStore()
	r := NewRegistry(jobStore)

	started := make(chan struct{})
	finish := make(chan struct{})
	r.Register(Tool{
		Name:  "slow",
		Async: true,
		Run: func(context.Context, models.ToolArgs) (json.RawMessage, error) {
			close(started)
			<-finish
			return json.Marshal("done")
		},
	})

	result, err := r.Invoke(context.Background(), models.ToolCallRequest{ID: "job-1", ToolName: "slow"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected queued result to report success, got %+v", result)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("async tool never started")
	}

	job, err := jobStore.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job == nil || job.Status != jobs.StatusRunning {
		t.Fatalf("expected job running while tool is in flight, got %+v", job)
	}

	close(finish)

	deadline := time.After(time.Second)
	for {
		job, err = jobStore.Get(context.Background(), "job-1")
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == jobs.StatusSucceeded {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed, last status %v", job.Status)
		case <-time.After(time.Millisecond):
		}
	}
	if job.Result == nil || !job.Result.Success {
		t.Errorf("expected succeeded job to carry a success result, got %+v", job.Result)
	}
}
