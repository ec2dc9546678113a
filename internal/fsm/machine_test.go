package fsm

import (
	"testing"

	"github.com/kairoslabs/convocore/internal/coreerrors"
)

func TestMachine_PlainEchoTurn(t *testing.T) {
	m := New()

	steps := []struct {
		event EventKind
		want  State
	}{
		{EventUserMessageSent, StateProcessingUserMessage},
		{EventPipelineCompleted, StateAwaitingLLMResponse},
		{EventLLMStreamChunkRecv, StateStreamingLLMResponse},
		{EventLLMStreamChunkRecv, StateStreamingLLMResponse},
		{EventLLMStreamEnded, StateProcessingLLMResponse},
	}

	for _, s := range steps {
		got, err := m.Fire(Event{Kind: s.event})
		if err != nil {
			t.Fatalf("Fire(%s): unexpected error %v", s.event, err)
		}
		if got != s.want {
			t.Fatalf("Fire(%s) = %s, want %s", s.event, got, s.want)
		}
	}

	got, err := m.Fire(Event{Kind: EventLLMResponseProcessed, HasTools: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StateIdle {
		t.Fatalf("final state = %s, want %s", got, StateIdle)
	}
}

func TestMachine_AutoApprovedToolLoop(t *testing.T) {
	m := Restore(StateProcessingLLMResponse)

	got, err := m.Fire(Event{Kind: EventLLMResponseProcessed, HasTools: true, AllAuto: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StateExecutingTool {
		t.Fatalf("got %s, want %s", got, StateExecutingTool)
	}

	got, err = m.Fire(Event{Kind: EventToolExecutionComplete, Success: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StateProcessingToolResult {
		t.Fatalf("got %s, want %s", got, StateProcessingToolResult)
	}
}

func TestMachine_ManualApprovalDenied(t *testing.T) {
	m := Restore(StateProcessingLLMResponse)

	got, _ := m.Fire(Event{Kind: EventLLMResponseProcessed, HasTools: true, AllAuto: false})
	if got != StateAwaitingToolApproval {
		t.Fatalf("got %s, want %s", got, StateAwaitingToolApproval)
	}

	got, err := m.Fire(Event{Kind: EventApprovalReceived, Approved: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StateProcessingToolResult {
		t.Fatalf("got %s, want %s", got, StateProcessingToolResult)
	}
}

func TestMachine_LoopTimeoutCancelsToPermanentFailure(t *testing.T) {
	m := Restore(StateExecutingTool)

	got, err := m.Fire(Event{Kind: EventToolAutoLoopCancelled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StatePermanentFailure {
		t.Fatalf("got %s, want %s", got, StatePermanentFailure)
	}
	if !got.Terminal() {
		t.Fatalf("expected permanent_failure to be terminal")
	}
}

func TestMachine_TransientRetryThenMaxRetriesExceeded(t *testing.T) {
	m := Restore(StateAwaitingLLMResponse)

	got, err := m.Fire(Event{Kind: EventTransientError, ErrorKind: "llm_error"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StateTransientFailure {
		t.Fatalf("got %s, want %s", got, StateTransientFailure)
	}

	got, err = m.Fire(Event{Kind: EventLLMRequestInitiated})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StateAwaitingLLMResponse {
		t.Fatalf("got %s, want %s", got, StateAwaitingLLMResponse)
	}

	m2 := Restore(StateTransientFailure)
	got, err = m2.Fire(Event{Kind: EventMaxRetriesExceeded})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StatePermanentFailure {
		t.Fatalf("got %s, want %s", got, StatePermanentFailure)
	}
}

func TestMachine_ToolExecutionCancelledGoesToIdle(t *testing.T) {
	m := Restore(StateExecutingTool)

	got, err := m.Fire(Event{Kind: EventToolExecutionComplete, Cancelled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StateIdle {
		t.Fatalf("got %s, want %s", got, StateIdle)
	}
}

func TestMachine_TransientErrorFromIdle(t *testing.T) {
	m := New() // Idle

	got, err := m.Fire(Event{Kind: EventTransientError, ErrorKind: "pipeline_error", Category: "pipeline"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StateTransientFailure {
		t.Fatalf("got %s, want %s", got, StateTransientFailure)
	}
}

func TestMachine_InvalidTransitionIsRejected(t *testing.T) {
	m := New() // Idle

	before := m.State()
	_, err := m.Fire(Event{Kind: EventApprovalReceived, Approved: true})
	if err == nil {
		t.Fatalf("expected error firing approval_received from idle")
	}
	ce, ok := coreerrors.As(err)
	if !ok || ce.Kind != coreerrors.KindInvalidState {
		t.Fatalf("expected invalid_state CoreError, got %v", err)
	}
	if m.State() != before {
		t.Fatalf("state changed on rejected transition: %s != %s", m.State(), before)
	}
}

func TestMachine_FatalErrorFromAnyNonTerminalState(t *testing.T) {
	states := []State{
		StateIdle, StateProcessingUserMessage, StateAwaitingLLMResponse,
		StateStreamingLLMResponse, StateProcessingLLMResponse, StateAwaitingToolApproval,
		StateExecutingTool, StateProcessingToolResult, StateTransientFailure,
	}
	for _, s := range states {
		m := Restore(s)
		got, err := m.Fire(Event{Kind: EventFatalError})
		if err != nil {
			t.Fatalf("from %s: unexpected error %v", s, err)
		}
		if got != StatePermanentFailure {
			t.Fatalf("from %s: got %s, want permanent_failure", s, got)
		}
	}
}

func TestMachine_CanFire(t *testing.T) {
	m := New()
	if !m.CanFire(EventUserMessageSent) {
		t.Fatalf("expected idle to accept user_message_sent")
	}
	if m.CanFire(EventApprovalReceived) {
		t.Fatalf("expected idle to reject approval_received")
	}
}
