// Package pipeline is the ordered chain of message-transforming processors
// run before LLM dispatch: Validation, FileReference, ToolEnhancement,
// SystemPrompt, and the optional ContextPacking stage.
package pipeline

import (
	"context"

	"github.com/kairoslabs/convocore/pkg/models"
)

// ResultKind tags a processor's outcome.
type ResultKind string

const (
	ResultContinue  ResultKind = "continue"
	ResultTransform ResultKind = "transform"
	ResultAbort     ResultKind = "abort"
	ResultSuspend   ResultKind = "suspend"
)

// Result is a processor's return value: exactly one of Continue, a
// Transform carrying the mutated message, an Abort carrying the error that
// ends the turn, or a Suspend naming why the turn is paused for an
// external event (e.g. awaiting an approval raised inside the pipeline).
type Result struct {
	Kind          ResultKind
	Err           error
	SuspendReason string
}

func Continue() Result { return Result{Kind: ResultContinue} }
func Transform() Result { return Result{Kind: ResultTransform} }
func Abort(err error) Result { return Result{Kind: ResultAbort, Err: err} }
func Suspend(reason string) Result { return Result{Kind: ResultSuspend, SuspendReason: reason} }

// PromptFragment is one piece of system-prompt text contributed by a
// processor, merged by descending Priority in the SystemPrompt stage.
type PromptFragment struct {
	Priority int
	Text     string
}

// Well-known fragment priorities; higher runs first in the assembled
// prompt.
const (
	PriorityTools = 100
	PriorityFiles = 50
	PriorityHints = 10
)

// ToolDefinition is the shape a ToolEnhancement stage's registry collaborator
// returns for one permitted tool.
type ToolDefinition struct {
	Name        string
	Description string
}

// ToolRegistry is the external collaborator ToolEnhancement queries for
// the tools permitted under a given agent role.
type ToolRegistry interface {
	ToolsForRole(role models.AgentRole) []ToolDefinition
}

// Workspace is the external collaborator FileReference reads file content
// through, kept outside this package because concrete filesystem/exec
// backends are not part of the conversation core.
type Workspace interface {
	ReadFile(ctx context.Context, path string, startLine, endLine int) (string, error)
}

// ProcessingContext is what each processor observes: a read reference to
// the context snapshot, a read/write reference to the in-flight message,
// and the fragments accumulated by earlier processors in this run.
type ProcessingContext struct {
	Snapshot  *models.ContextSnapshot
	Message   *models.InternalMessage
	Fragments []PromptFragment

	// History is the active branch's resolved message list for this turn;
	// ContextPacking may shrink it in place.
	History []*models.InternalMessage

	// SystemPrompt is set by the SystemPrompt processor; empty until then.
	SystemPrompt string

	// OriginalInput is captured by FileReference before substitution, for
	// metadata.original_input.
	OriginalInput string

	Workspace    Workspace
	ToolRegistry ToolRegistry

	// MaxTextLength bounds Validation; MaxFileSize/MaxFileReferences bound
	// FileReference.
	MaxTextLength     int
	MaxFileSize       int
	MaxFileReferences int
}

// Processor is one pipeline stage.
type Processor interface {
	Name() string
	Process(ctx context.Context, pctx *ProcessingContext) Result
}

// Pipeline runs an ordered chain of Processors over one ProcessingContext.
type Pipeline struct {
	stages []Processor
}

// New builds a Pipeline from stages, run in the given order.
func New(stages ...Processor) *Pipeline {
	return &Pipeline{stages: stages}
}

// Default builds the standard four-stage pipeline plus ContextPacking.
func Default(workspace Workspace, registry ToolRegistry, packer *ContextPacking) *Pipeline {
	return New(
		&Validation{},
		&FileReference{Workspace: workspace},
		&ToolEnhancement{Registry: registry},
		&SystemPrompt{},
		packer,
	)
}

// Run executes every stage in order. It stops at the first Abort or
// Suspend result and returns it; Continue and Transform results fall
// through to the next stage.
func (p *Pipeline) Run(ctx context.Context, pctx *ProcessingContext) Result {
	for _, stage := range p.stages {
		if stage == nil {
			continue
		}
		result := stage.Process(ctx, pctx)
		switch result.Kind {
		case ResultAbort, ResultSuspend:
			return result
		}
	}
	return Continue()
}
