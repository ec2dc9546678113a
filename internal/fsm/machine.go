package fsm

import (
	"fmt"
	"sync"

	"github.com/kairoslabs/convocore/internal/coreerrors"
)

// transition computes the target state for an event fired from a given
// source state, or returns an error if the event is not valid there.
type transition func(Event) (State, error)

// table is keyed by source state, then event kind. An event kind with no
// entry for a state is an error: "omitted events in a given state are
// errors" per the transition design.
var table = map[State]map[EventKind]transition{
	StateIdle: {
		EventUserMessageSent: func(Event) (State, error) { return StateProcessingUserMessage, nil },
		EventTransientError:  transient,
		EventFatalError:      fatal,
	},
	StateProcessingUserMessage: {
		EventPipelineCompleted: func(Event) (State, error) { return StateAwaitingLLMResponse, nil },
		EventFatalError:        fatal,
	},
	StateAwaitingLLMResponse: {
		EventLLMStreamChunkRecv: func(Event) (State, error) { return StateStreamingLLMResponse, nil },
		EventTransientError:     transient,
		EventFatalError:         fatal,
	},
	StateStreamingLLMResponse: {
		EventLLMStreamChunkRecv: func(Event) (State, error) { return StateStreamingLLMResponse, nil },
		EventLLMStreamEnded:     func(Event) (State, error) { return StateProcessingLLMResponse, nil },
		EventTransientError:     transient,
		EventFatalError:         fatal,
	},
	StateProcessingLLMResponse: {
		EventLLMResponseProcessed: func(e Event) (State, error) {
			switch {
			case !e.HasTools:
				return StateIdle, nil
			case e.HasTools && e.AllAuto:
				return StateExecutingTool, nil
			default:
				return StateAwaitingToolApproval, nil
			}
		},
		EventFatalError: fatal,
	},
	StateAwaitingToolApproval: {
		EventApprovalReceived: func(e Event) (State, error) {
			if e.Approved {
				return StateExecutingTool, nil
			}
			return StateProcessingToolResult, nil
		},
		EventFatalError: fatal,
	},
	StateExecutingTool: {
		EventToolExecutionComplete: func(e Event) (State, error) {
			switch {
			case e.Cancelled:
				return StateIdle, nil
			case e.Success:
				return StateProcessingToolResult, nil
			default:
				return StateTransientFailure, nil
			}
		},
		EventToolAutoLoopCancelled: func(Event) (State, error) { return StatePermanentFailure, nil },
		EventFatalError:            fatal,
	},
	StateProcessingToolResult: {
		EventLLMRequestInitiated: func(Event) (State, error) { return StateAwaitingLLMResponse, nil },
		EventFatalError:          fatal,
	},
	StateTransientFailure: {
		EventLLMRequestInitiated:   func(Event) (State, error) { return StateAwaitingLLMResponse, nil },
		EventToolExecutionComplete: func(Event) (State, error) { return StateExecutingTool, nil },
		EventMaxRetriesExceeded:    func(Event) (State, error) { return StatePermanentFailure, nil },
		EventFatalError:            fatal,
	},
}

func fatal(Event) (State, error) { return StatePermanentFailure, nil }

func transient(e Event) (State, error) { return StateTransientFailure, nil }

// Machine is a single context's FSM instance. It is safe for concurrent
// use; callers holding the context's write lock still call through Fire
// rather than mutating State directly, so Machine's own mutex is a second,
// cheap layer of protection rather than the primary one.
type Machine struct {
	mu    sync.Mutex
	state State
}

// New creates a Machine in the initial Idle state.
func New() *Machine {
	return &Machine{state: StateIdle}
}

// Restore creates a Machine resuming from a persisted state tag.
func Restore(state State) *Machine {
	return &Machine{state: state}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies event to the machine's current state, returning the new
// state. A *coreerrors.CoreError with Kind invalid_state is returned if the
// event is not defined for the current state, and the state does not
// change.
func (m *Machine) Fire(event Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events, ok := table[m.state]
	if !ok {
		return m.state, coreerrors.InvalidState(string(event.Kind), string(m.state))
	}
	fn, ok := events[event.Kind]
	if !ok {
		return m.state, coreerrors.InvalidState(string(event.Kind), string(m.state))
	}

	next, err := fn(event)
	if err != nil {
		return m.state, err
	}
	m.state = next
	return next, nil
}

// CanFire reports whether event is valid from the current state, without
// applying it.
func (m *Machine) CanFire(kind EventKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	events, ok := table[m.state]
	if !ok {
		return false
	}
	_, ok = events[kind]
	return ok
}

// String renders the machine's state for debugging/logging.
func (m *Machine) String() string {
	return fmt.Sprintf("fsm.Machine{state=%s}", m.State())
}
