package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/convocore/internal/coreerrors"
	"github.com/kairoslabs/convocore/pkg/models"
)

type fakeWorkspace struct {
	files map[string]string
}

func (f *fakeWorkspace) ReadFile(_ context.Context, path string, _, _ int) (string, error) {
	content, ok := f.files[path]
	if !ok {
		return "", assert.AnError
	}
	return content, nil
}

type fakeRegistry struct {
	defs []ToolDefinition
}

func (f *fakeRegistry) ToolsForRole(models.AgentRole) []ToolDefinition { return f.defs }

func textMessage(text string) *models.InternalMessage {
	return &models.InternalMessage{
		RichType: models.RichTypeText,
		Content:  []models.ContentPart{{Type: models.ContentPartText, Text: text}},
	}
}

func newSnapshot() *models.ContextSnapshot {
	snapshot := &models.ContextSnapshot{
		ID:               "ctx-1",
		ActiveBranchName: "main",
		Config:           models.ContextConfig{AgentRole: models.RoleAgentActor},
		Branches: map[string]*models.Branch{
			"main": {Name: "main", SystemPrompt: "be terse"},
		},
	}
	return snapshot
}

func TestValidation_RejectsEmptyText(t *testing.T) {
	v := &Validation{}
	pctx := &ProcessingContext{Message: textMessage("")}
	result := v.Process(context.Background(), pctx)
	require.Equal(t, ResultAbort, result.Kind)
	ce, ok := coreerrors.As(result.Err)
	require.True(t, ok)
	assert.Equal(t, coreerrors.KindValidationFailed, ce.Kind)
}

func TestValidation_RejectsOverLengthText(t *testing.T) {
	v := &Validation{}
	longText := make([]byte, 100)
	for i := range longText {
		longText[i] = 'a'
	}
	pctx := &ProcessingContext{Message: textMessage(string(longText)), MaxTextLength: 10}
	result := v.Process(context.Background(), pctx)
	assert.Equal(t, ResultAbort, result.Kind)
}

func TestValidation_AcceptsWellFormedInput(t *testing.T) {
	v := &Validation{}
	pctx := &ProcessingContext{Message: textMessage("hello @README.md:1-10")}
	result := v.Process(context.Background(), pctx)
	assert.Equal(t, ResultContinue, result.Kind)
}

func TestValidation_RejectsIllFormedFileRefRange(t *testing.T) {
	v := &Validation{}
	pctx := &ProcessingContext{Message: textMessage("see @file.go:10-1")}
	result := v.Process(context.Background(), pctx)
	assert.Equal(t, ResultAbort, result.Kind)
}

func TestFileReference_SubstitutesInlineContent(t *testing.T) {
	fr := &FileReference{Workspace: &fakeWorkspace{files: map[string]string{"README.md": "hello world"}}}
	pctx := &ProcessingContext{Message: textMessage("summarize @README.md")}
	result := fr.Process(context.Background(), pctx)
	require.Equal(t, ResultTransform, result.Kind)
	assert.Contains(t, pctx.Message.Text(), "hello world")
	assert.Equal(t, "summarize @README.md", pctx.Message.Metadata.OriginalInput)
}

func TestFileReference_NonexistentPath(t *testing.T) {
	fr := &FileReference{Workspace: &fakeWorkspace{files: map[string]string{}}}
	pctx := &ProcessingContext{Message: textMessage("see @missing.go")}
	result := fr.Process(context.Background(), pctx)
	require.Equal(t, ResultAbort, result.Kind)
	ce, ok := coreerrors.As(result.Err)
	require.True(t, ok)
	assert.Equal(t, "file_reference", ce.Category)
}

func TestToolEnhancement_AppendsFragment(t *testing.T) {
	te := &ToolEnhancement{Registry: &fakeRegistry{defs: []ToolDefinition{{Name: "read_file", Description: "reads a file"}}}}
	pctx := &ProcessingContext{Snapshot: newSnapshot(), Message: textMessage("hi")}
	result := te.Process(context.Background(), pctx)
	require.Equal(t, ResultContinue, result.Kind)
	require.Len(t, pctx.Fragments, 1)
	assert.Contains(t, pctx.Fragments[0].Text, "read_file")
}

func TestSystemPrompt_MergesBranchPromptAndFragments(t *testing.T) {
	sp := &SystemPrompt{}
	pctx := &ProcessingContext{
		Snapshot: newSnapshot(),
		Message:  textMessage("hi"),
		Fragments: []PromptFragment{
			{Priority: PriorityHints, Text: "low priority hint"},
			{Priority: PriorityTools, Text: "high priority tools"},
		},
	}
	result := sp.Process(context.Background(), pctx)
	require.Equal(t, ResultTransform, result.Kind)
	assert.Contains(t, pctx.SystemPrompt, "be terse")
	toolsIdx := indexOf(pctx.SystemPrompt, "high priority tools")
	hintIdx := indexOf(pctx.SystemPrompt, "low priority hint")
	assert.Less(t, toolsIdx, hintIdx)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestPipeline_AbortStopsRemainingStages(t *testing.T) {
	p := New(&Validation{}, &ToolEnhancement{Registry: &fakeRegistry{}})
	pctx := &ProcessingContext{Snapshot: newSnapshot(), Message: textMessage("")}
	result := p.Run(context.Background(), pctx)
	assert.Equal(t, ResultAbort, result.Kind)
}

func TestPipeline_Default_ProducesSystemPrompt(t *testing.T) {
	p := Default(&fakeWorkspace{}, &fakeRegistry{defs: []ToolDefinition{{Name: "t1", Description: "d1"}}}, nil)
	pctx := &ProcessingContext{Snapshot: newSnapshot(), Message: textMessage("hello")}
	result := p.Run(context.Background(), pctx)
	assert.NotEqual(t, ResultAbort, result.Kind)
	assert.NotEmpty(t, pctx.SystemPrompt)
}

func TestContextPacking_DropsOldestBeyondBudget(t *testing.T) {
	history := []*models.InternalMessage{
		textMessage("aaaaaaaaaa"),
		textMessage("bbbbbbbbbb"),
		textMessage("cccccccccc"),
		textMessage("dddddddddd"),
		textMessage("eeeeeeeeee"),
	}
	cp := &ContextPacking{CharBudget: 20, KeepRecent: 2}
	pctx := &ProcessingContext{History: history}
	result := cp.Process(context.Background(), pctx)
	require.Equal(t, ResultTransform, result.Kind)
	assert.Len(t, pctx.History, 2)
	assert.Equal(t, 3, cp.Diagnostics().DroppedOld)
}

func TestContextPacking_UnderBudgetContinues(t *testing.T) {
	cp := &ContextPacking{CharBudget: 1000, KeepRecent: 2}
	pctx := &ProcessingContext{History: []*models.InternalMessage{textMessage("short")}}
	result := cp.Process(context.Background(), pctx)
	assert.Equal(t, ResultContinue, result.Kind)
}

func TestContextPacking_Disabled(t *testing.T) {
	cp := &ContextPacking{}
	pctx := &ProcessingContext{History: []*models.InternalMessage{textMessage("x")}}
	result := cp.Process(context.Background(), pctx)
	assert.Equal(t, ResultContinue, result.Kind)
}
