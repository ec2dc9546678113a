package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kairoslabs/convocore/internal/branch"
	"github.com/kairoslabs/convocore/internal/coreerrors"
	"github.com/kairoslabs/convocore/internal/coreobs"
	"github.com/kairoslabs/convocore/internal/fsm"
	"github.com/kairoslabs/convocore/internal/pipeline"
	"github.com/kairoslabs/convocore/internal/streaming"
	"github.com/kairoslabs/convocore/internal/toolengine"
	"github.com/kairoslabs/convocore/pkg/models"
)

// SendMessage runs the user's text through the pipeline, appends it as a
// new message on the active branch, then drives the FSM through the LLM
// round trip (and, for auto-approved tool calls, the tool loop) until the
// turn lands on a terminal per-turn state: Idle, AwaitingToolApproval (a
// manual decision is needed), TransientFailure, or PermanentFailure.
//
// Per the concurrency model, the write lock is held only for the FSM
// transitions and state mutations; it is released across the LLM adapter
// call and reacquired to reduce the result back into the snapshot.
func (o *Orchestrator) SendMessage(ctx context.Context, id, text string) (err error) {
	ctx = coreobs.WithContextID(ctx, id)
	ctx = coreobs.WithRunID(ctx, uuid.NewString())
	ctx, span := o.Tracer.StartTurn(ctx, id)
	defer func() {
		coreobs.RecordError(span, err)
		span.End()
	}()

	unlock := o.lockContext(id)
	snapshot, err := o.Store.LoadContext(ctx, id)
	if err != nil {
		o.logger().Error("storage error", "op", "load_context", "context_id", id, "error", err)
		unlock()
		return err
	}

	machine := loadMachine(snapshot)
	if !machine.CanFire(fsm.EventUserMessageSent) {
		unlock()
		return coreerrors.InvalidState("send_message", snapshot.CurrentState).WithContextID(id)
	}

	userMsg := &models.InternalMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		RichType:  models.RichTypeText,
		Content:   []models.ContentPart{{Type: models.ContentPartText, Text: text}},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	activeBranch, err := activeBranch(snapshot)
	if err != nil {
		unlock()
		return err
	}
	history, err := o.resolveHistory(ctx, id, activeBranch.MessageIDs)
	if err != nil {
		unlock()
		return err
	}

	// The pipeline runs against the still-Idle snapshot, before
	// UserMessageSent fires: a validation_failed abort must leave no state
	// change at all (§7), and a processor abort that isn't the caller's
	// fault (e.g. FileReference) still has a clean Idle state to fail
	// forward from into TransientFailure, rather than unwinding an
	// already-committed transition.
	pctx := &pipeline.ProcessingContext{
		Snapshot:     snapshot,
		Message:      userMsg,
		History:      history,
		Workspace:    o.Workspace,
		ToolRegistry: o.ToolRegistry,
	}
	result := o.pipelineFor().Run(ctx, pctx)
	if result.Kind == pipeline.ResultAbort {
		abortErr := o.abortPipeline(ctx, id, snapshot, machine, result.Err)
		unlock()
		return abortErr
	}
	history = pctx.History

	if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventUserMessageSent}); err != nil {
		unlock()
		return err
	}
	if err := o.Store.PutMessage(ctx, id, userMsg); err != nil {
		o.logger().Error("storage error", "op", "put_message", "context_id", id, "error", err)
		unlock()
		return err
	}
	if err := branch.Append(snapshot, snapshot.ActiveBranchName, userMsg.ID); err != nil {
		unlock()
		return err
	}
	o.emit(id, models.NewMessageCreatedEvent(id, userMsg.ID, models.RoleUser, time.Now()))
	history = append(history, userMsg)

	if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventPipelineCompleted}); err != nil {
		unlock()
		return err
	}
	if err := o.Store.SaveContext(ctx, snapshot); err != nil {
		o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
		unlock()
		return err
	}
	unlock()

	return o.runLLMRoundTrips(ctx, id, snapshot, machine, pctx.SystemPrompt, history)
}

// abortPipeline classifies a processor Abort from the pre-dispatch pipeline
// run. A true validation_failed error (caller's fault: empty text,
// malformed tool-request structure) is returned as-is with no state
// mutation. Any other processor abort (e.g. FileReference's pipeline_error)
// moves the FSM into TransientFailure, preserving the processor's own
// CoreError Kind and Category rather than collapsing both to a fixed
// label. The caller must hold the context's write lock.
func (o *Orchestrator) abortPipeline(ctx context.Context, id string, snapshot *models.ContextSnapshot, machine *fsm.Machine, cause error) error {
	ce, _ := coreerrors.As(cause)
	if ce != nil && ce.Kind == coreerrors.KindValidationFailed {
		return cause
	}

	errorKind := string(coreerrors.KindPipelineError)
	category := "pipeline"
	if ce != nil {
		errorKind = string(ce.Kind)
		if ce.Category != "" {
			category = ce.Category
		}
	}

	snapshot.FailureDetail = &models.FailureDetail{ErrorKind: errorKind, Message: cause.Error(), Category: category}
	_, _ = machine.Fire(fsm.Event{Kind: fsm.EventTransientError, ErrorKind: errorKind, Category: category})
	snapshot.CurrentState = string(fsm.StateTransientFailure)
	o.logger().Warn("pipeline aborted", "context_id", id, "error_kind", errorKind, "category", category, "error", cause)
	o.emit(id, models.NewStateChangedEvent(id, string(fsm.StateTransientFailure), time.Now()))
	if err := o.Store.SaveContext(ctx, snapshot); err != nil {
		o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
		return err
	}
	return cause
}

// runLLMRoundTrips drives zero or more LLM calls and tool-execution rounds
// until the turn reaches Idle, AwaitingToolApproval, or a failure state. It
// re-acquires the write lock only to commit each transition/persist step,
// releasing it across the LLM adapter call per the suspension-point rule.
func (o *Orchestrator) runLLMRoundTrips(ctx context.Context, id string, snapshot *models.ContextSnapshot, machine *fsm.Machine, systemPrompt string, history []*models.InternalMessage) error {
	for {
		classical := make([]models.ClassicalMessage, 0, len(history)+1)
		if systemPrompt != "" {
			classical = append(classical, models.ClassicalMessage{Role: models.RoleSystem, Content: systemPrompt})
		}
		for _, m := range history {
			classical = append(classical, models.ToClassical(m))
		}

		assistantMsg := &models.InternalMessage{ID: uuid.NewString(), Role: models.RoleAssistant}
		streaming.Begin(assistantMsg, snapshot.Config.ModelID)

		chunks, err := o.LLM.Stream(ctx, systemPrompt, classical)
		if err != nil {
			return o.recordTransientFailure(ctx, id, snapshot, machine, "llm_error", "llm", err)
		}

		firstChunk := true
		var finalChunk LLMChunk
		for c := range chunks {
			if c.Err != nil {
				return o.recordTransientFailure(ctx, id, snapshot, machine, "llm_error", "llm", c.Err)
			}
			if !c.Done {
				unlock := o.lockContext(id)
				if firstChunk {
					if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventLLMStreamChunkRecv}); err != nil {
						unlock()
						return err
					}
					firstChunk = false
				}
				seq, _ := streaming.Append(assistantMsg, c.Text)
				if err := o.Store.PutMessage(ctx, id, assistantMsg); err != nil {
					o.logger().Error("storage error", "op", "put_message", "context_id", id, "error", err)
				}
				o.emit(id, models.NewContentDeltaEvent(id, assistantMsg.ID, seq, time.Now()))
				unlock()
				continue
			}
			finalChunk = c
		}

		unlock := o.lockContext(id)
		// A response made only of a final chunk still passes through
		// streaming_l_l_m_response before the stream is ended.
		if firstChunk {
			if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventLLMStreamChunkRecv}); err != nil {
				unlock()
				return err
			}
		}
		_ = streaming.Finalize(assistantMsg, finalChunk.FinishReason, finalChunk.Usage)
		assistantMsg.ToolCalls = finalChunk.ToolCalls
		if len(finalChunk.ToolCalls) > 0 {
			// A tool call supersedes partial text in the same response: the
			// text stays in the streaming chunks but not in the content.
			assistantMsg.RichType = models.RichTypeToolRequest
			assistantMsg.Content = nil
		}

		hasTools := len(finalChunk.ToolCalls) > 0
		allAuto := hasTools && o.allAutoApprovable(&snapshot.ToolExec, finalChunk.ToolCalls)
		for i := range assistantMsg.ToolCalls {
			if allAuto {
				assistantMsg.ToolCalls[i].ApprovalStatus = models.ApprovalAutoApproved
			} else {
				assistantMsg.ToolCalls[i].ApprovalStatus = models.ApprovalPending
			}
		}

		if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventLLMStreamEnded}); err != nil {
			unlock()
			return err
		}
		if err := o.Store.PutMessage(ctx, id, assistantMsg); err != nil {
			o.logger().Error("storage error", "op", "put_message", "context_id", id, "error", err)
			unlock()
			return err
		}
		if err := branch.Append(snapshot, snapshot.ActiveBranchName, assistantMsg.ID); err != nil {
			unlock()
			return err
		}
		seq := assistantMsg.Streaming.CurrentSequence()
		o.emit(id, models.NewMessageCompletedEvent(id, assistantMsg.ID, seq, time.Now()))
		history = append(history, assistantMsg)

		if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventLLMResponseProcessed, HasTools: hasTools, AllAuto: allAuto}); err != nil {
			unlock()
			return err
		}

		if !hasTools {
			snapshot.ToolExec.ResetLoop()
			err := o.Store.SaveContext(ctx, snapshot)
			if err != nil {
				o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
			}
			unlock()
			return err
		}

		if !allAuto {
			snapshot.PendingToolCalls = finalChunk.ToolCalls
			snapshot.PendingAssistantMessageID = assistantMsg.ID
			err := o.Store.SaveContext(ctx, snapshot)
			if err != nil {
				o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
			}
			if err == nil {
				ids := make([]string, len(finalChunk.ToolCalls))
				for i, tc := range finalChunk.ToolCalls {
					ids[i] = tc.ID
				}
				o.emit(id, models.NewToolApprovalRequestedEvent(id, ids, time.Now()))
			}
			unlock()
			return err
		}

		if err := o.Store.SaveContext(ctx, snapshot); err != nil {
			o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
			unlock()
			return err
		}
		unlock()

		toolResults, terminal, err := o.runToolCalls(ctx, id, snapshot, machine, finalChunk.ToolCalls)
		if err != nil || terminal {
			return err
		}
		history = append(history, toolResults...)

		unlock = o.lockContext(id)
		if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventLLMRequestInitiated}); err != nil {
			unlock()
			return err
		}
		err = o.Store.SaveContext(ctx, snapshot)
		if err != nil {
			o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
		}
		unlock()
		if err != nil {
			return err
		}
	}
}

// allAutoApprovable reports whether every call in the batch resolves to
// DecisionAllowed under the current policy, without executing any of them.
func (o *Orchestrator) allAutoApprovable(exec *models.ToolExecutionContext, calls []models.ToolCallRequest) bool {
	for _, c := range calls {
		decision, _ := toolengine.Evaluate(exec, c.ToolName)
		if decision != toolengine.DecisionAllowed {
			return false
		}
	}
	return true
}

// runToolCalls executes one batch of tool calls (the FSM treats a whole
// batch as a single ExecutingTool round): the caller has already fired
// LLMResponseProcessed{HasTools:true} into ExecutingTool. Each call that
// fails is retried, governed by its per-tool retry budget, before the
// batch is considered failed. A single EventToolExecutionComplete closes
// the round: Success=true lands on ProcessingToolResult, Success=false
// lands on TransientFailure, from which an exhausted retry budget fires
// EventMaxRetriesExceeded into PermanentFailure. A loop-timeout discovered
// mid-batch fires EventToolAutoLoopCancelled directly into
// PermanentFailure, stopping the batch early. A cooperative cancellation
// (cancel_auto_loop) discovered on a call is neither success nor failure:
// it records the synthetic tool-cancelled result already produced by the
// engine and closes the round with Cancelled=true, landing straight on
// Idle rather than TransientFailure, and stops the rest of the batch.
func (o *Orchestrator) runToolCalls(ctx context.Context, id string, snapshot *models.ContextSnapshot, machine *fsm.Machine, calls []models.ToolCallRequest) ([]*models.InternalMessage, bool, error) {
	depth := snapshot.ToolExec.CurrentDepth + 1

	var results []*models.InternalMessage
	batchFailed := false
	batchCancelled := false

	validator := &pipeline.ToolEnhancement{Registry: o.ToolRegistry}

	for _, call := range calls {
		toolCtx, span := o.Tracer.StartToolExec(ctx, call.ToolName)
		start := time.Now()

		var outcome toolengine.Outcome
		if err := validator.ValidateArguments(call.ToolName, call.Arguments); err != nil {
			outcome = toolengine.Outcome{Result: models.ToolCallResult{RequestID: call.ID, Success: false, Error: err.Error()}}
		} else {
			outcome = o.ToolEngine.Execute(toolCtx, &snapshot.ToolExec, call, depth)
		}

		for outcome.Decision == toolengine.DecisionAllowed && !outcome.Result.Success && !outcome.LoopCancelled &&
			!toolengine.RetryBudgetExhausted(&snapshot.ToolExec, call.ToolName, o.ToolEngine.MaxToolRetries) {
			outcome = o.ToolEngine.Execute(toolCtx, &snapshot.ToolExec, call, depth)
		}

		cancelled := outcome.Reason == "cancelled"

		outcomeLabel := "success"
		if !outcome.Result.Success {
			outcomeLabel = "failure"
		}
		if outcome.LoopCancelled || cancelled {
			outcomeLabel = "cancelled"
		}
		o.Metrics.ObserveToolExec(call.ToolName, outcomeLabel, time.Since(start))
		if !outcome.Result.Success && !cancelled {
			coreobs.RecordError(span, errors.New(outcome.Result.Error))
			o.logger().Warn("tool call failed", "context_id", id, "tool", call.ToolName, "call_id", call.ID, "error", outcome.Result.Error)
		}
		span.End()

		if outcome.LoopCancelled {
			unlock := o.lockContext(id)
			_, _ = machine.Fire(fsm.Event{Kind: fsm.EventToolAutoLoopCancelled})
			snapshot.CurrentState = string(fsm.StatePermanentFailure)
			snapshot.FailureDetail = &models.FailureDetail{ErrorKind: "loop_timeout", Message: "tool auto-loop exceeded max_loop_timeout_ms", Category: "tool_engine"}
			snapshot.ToolExec.ResetLoop()
			o.emit(id, models.NewStateChangedEvent(id, string(fsm.StatePermanentFailure), time.Now()))
			err := o.Store.SaveContext(ctx, snapshot)
			if err != nil {
				o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
			}
			unlock()
			return results, true, err
		}

		msg := &models.InternalMessage{
			ID:         uuid.NewString(),
			Role:       models.RoleTool,
			RichType:   models.RichTypeToolResult,
			ToolResult: &outcome.Result,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}

		unlock := o.lockContext(id)
		if err := o.Store.PutMessage(ctx, id, msg); err != nil {
			o.logger().Error("storage error", "op", "put_message", "context_id", id, "error", err)
			unlock()
			return results, true, err
		}
		if err := branch.Append(snapshot, snapshot.ActiveBranchName, msg.ID); err != nil {
			unlock()
			return results, true, err
		}
		err := o.Store.SaveContext(ctx, snapshot)
		if err != nil {
			o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
		}
		unlock()
		if err != nil {
			return results, true, err
		}

		results = append(results, msg)

		if cancelled {
			batchCancelled = true
			break
		}
		if !outcome.Result.Success {
			batchFailed = true
		}
	}

	if batchCancelled {
		unlock := o.lockContext(id)
		_, _ = machine.Fire(fsm.Event{Kind: fsm.EventToolExecutionComplete, Cancelled: true})
		snapshot.CurrentState = string(fsm.StateIdle)
		snapshot.ToolExec.ResetLoop()
		o.emit(id, models.NewStateChangedEvent(id, string(fsm.StateIdle), time.Now()))
		err := o.Store.SaveContext(ctx, snapshot)
		if err != nil {
			o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
		}
		unlock()
		return results, true, err
	}

	unlock := o.lockContext(id)
	if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventToolExecutionComplete, Success: !batchFailed}); err != nil {
		unlock()
		return results, true, err
	}

	if batchFailed {
		exhausted := false
		for _, c := range calls {
			if toolengine.RetryBudgetExhausted(&snapshot.ToolExec, c.ToolName, o.ToolEngine.MaxToolRetries) {
				exhausted = true
				break
			}
		}
		if exhausted {
			_, _ = machine.Fire(fsm.Event{Kind: fsm.EventMaxRetriesExceeded})
			snapshot.CurrentState = string(fsm.StatePermanentFailure)
			snapshot.FailureDetail = &models.FailureDetail{ErrorKind: "max_retries_exceeded", Message: "tool retry budget exhausted", Category: "tool_engine"}
			o.emit(id, models.NewStateChangedEvent(id, string(fsm.StatePermanentFailure), time.Now()))
			err := o.Store.SaveContext(ctx, snapshot)
			if err != nil {
				o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
			}
			unlock()
			return results, true, err
		}
		snapshot.FailureDetail = &models.FailureDetail{ErrorKind: "tool_timeout", Message: "one or more tool calls failed", Category: "tool_engine"}
	}

	err := o.Store.SaveContext(ctx, snapshot)
	if err != nil {
		o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
	}
	unlock()
	if err != nil {
		return results, true, err
	}

	if batchFailed {
		// Transient failure recorded above but retry budget remains; the
		// turn stops here rather than auto-retrying the whole LLM round
		// trip, leaving the caller to decide whether to resume.
		return results, true, nil
	}

	return results, false, nil
}

func (o *Orchestrator) recordTransientFailure(ctx context.Context, id string, snapshot *models.ContextSnapshot, machine *fsm.Machine, errorKind, category string, cause error) error {
	unlock := o.lockContext(id)
	defer unlock()

	snapshot.FailureDetail = &models.FailureDetail{ErrorKind: errorKind, Message: cause.Error(), Category: category}
	_, _ = machine.Fire(fsm.Event{Kind: fsm.EventTransientError, ErrorKind: errorKind, Category: category})
	snapshot.CurrentState = string(fsm.StateTransientFailure)
	o.logger().Warn("transient failure", "context_id", id, "error_kind", errorKind, "category", category, "error", cause)
	if err := o.Store.SaveContext(ctx, snapshot); err != nil {
		o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
		return err
	}
	return coreerrors.Wrap(coreerrors.KindLLMError, cause, "llm adapter error").WithCategory(category).WithContextID(id)
}

// resolveHistory loads every message id on a branch, in order.
func (o *Orchestrator) resolveHistory(ctx context.Context, contextID string, ids []string) ([]*models.InternalMessage, error) {
	found, missing, err := o.Store.GetMessagesBatch(ctx, contextID, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, coreerrors.Wrap(coreerrors.KindStorageError, nil, "branch references missing messages").WithContextID(contextID)
	}
	return found, nil
}

// ApproveTools resolves a pending AwaitingToolApproval state: approving
// executes the pending tool calls through the loop; denying records a
// denied tool result for each and returns to the LLM with that outcome.
func (o *Orchestrator) ApproveTools(ctx context.Context, id string, decisions map[string]bool) (err error) {
	ctx = coreobs.WithContextID(ctx, id)
	ctx = coreobs.WithRunID(ctx, uuid.NewString())
	ctx, span := o.Tracer.StartTurn(ctx, id)
	defer func() {
		coreobs.RecordError(span, err)
		span.End()
	}()

	unlock := o.lockContext(id)
	snapshot, err := o.Store.LoadContext(ctx, id)
	if err != nil {
		o.logger().Error("storage error", "op", "load_context", "context_id", id, "error", err)
		unlock()
		return err
	}
	machine := loadMachine(snapshot)
	if !machine.CanFire(fsm.EventApprovalReceived) {
		unlock()
		return coreerrors.InvalidState("approve_tools", snapshot.CurrentState).WithContextID(id)
	}
	pending := snapshot.PendingToolCalls
	if len(pending) == 0 {
		unlock()
		return coreerrors.ValidationFailed("no pending tool calls to approve").WithContextID(id)
	}

	var approvedCalls []models.ToolCallRequest
	statusByCall := make(map[string]models.ApprovalStatus, len(pending))
	for _, call := range pending {
		approved, ok := decisions[call.ID]
		if !ok {
			unlock()
			return coreerrors.ValidationFailed("missing decision for tool call " + call.ID).WithContextID(id)
		}
		if approved {
			call.ApprovalStatus = models.ApprovalApproved
			statusByCall[call.ID] = models.ApprovalApproved
			approvedCalls = append(approvedCalls, call)
			continue
		}
		statusByCall[call.ID] = models.ApprovalDenied
		msg := &models.InternalMessage{
			ID:       uuid.NewString(),
			Role:     models.RoleTool,
			RichType: models.RichTypeToolResult,
			ToolResult: &models.ToolCallResult{
				RequestID: call.ID,
				Success:   false,
				Error:     "denied by user",
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := o.Store.PutMessage(ctx, id, msg); err != nil {
			o.logger().Error("storage error", "op", "put_message", "context_id", id, "error", err)
			unlock()
			return err
		}
		if err := branch.Append(snapshot, snapshot.ActiveBranchName, msg.ID); err != nil {
			unlock()
			return err
		}
	}

	if snapshot.PendingAssistantMessageID != "" {
		pendingAssistant, _, err := o.Store.GetMessagesBatch(ctx, id, []string{snapshot.PendingAssistantMessageID})
		if err != nil {
			o.logger().Error("storage error", "op", "get_messages_batch", "context_id", id, "error", err)
			unlock()
			return err
		}
		if len(pendingAssistant) == 1 {
			for i := range pendingAssistant[0].ToolCalls {
				if status, ok := statusByCall[pendingAssistant[0].ToolCalls[i].ID]; ok {
					pendingAssistant[0].ToolCalls[i].ApprovalStatus = status
				}
			}
			if err := o.Store.PutMessage(ctx, id, pendingAssistant[0]); err != nil {
				o.logger().Error("storage error", "op", "put_message", "context_id", id, "error", err)
				unlock()
				return err
			}
		}
	}

	if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventApprovalReceived, Approved: len(approvedCalls) > 0}); err != nil {
		unlock()
		return err
	}
	snapshot.PendingToolCalls = nil
	snapshot.PendingAssistantMessageID = ""

	if err := o.Store.SaveContext(ctx, snapshot); err != nil {
		o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
		unlock()
		return err
	}
	unlock()

	if len(approvedCalls) > 0 {
		_, terminal, err := o.runToolCalls(ctx, id, snapshot, machine, approvedCalls)
		if err != nil || terminal {
			return err
		}
	}

	activeBranch, err := activeBranch(snapshot)
	if err != nil {
		return err
	}
	history, err := o.resolveHistory(ctx, id, activeBranch.MessageIDs)
	if err != nil {
		return err
	}

	unlock = o.lockContext(id)
	if err := o.transition(snapshot, machine, fsm.Event{Kind: fsm.EventLLMRequestInitiated}); err != nil {
		unlock()
		return err
	}
	err = o.Store.SaveContext(ctx, snapshot)
	if err != nil {
		o.logger().Error("storage error", "op", "save_context", "context_id", id, "error", err)
	}
	unlock()
	if err != nil {
		return err
	}

	return o.runLLMRoundTrips(ctx, id, snapshot, machine, activeBranch.SystemPrompt, history)
}
