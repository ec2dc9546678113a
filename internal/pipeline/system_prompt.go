package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kairoslabs/convocore/pkg/models"
)

// DefaultSystemPrompt is used when neither the active branch nor the
// context config names one.
const DefaultSystemPrompt = "You are a helpful assistant."

// SystemPrompt assembles the final system prompt from the branch-local
// prompt (or the service default), role-specific instructions, context
// hints, and every fragment contributed by earlier stages, merged by
// descending priority.
type SystemPrompt struct{}

func (s *SystemPrompt) Name() string { return "system_prompt" }

func (s *SystemPrompt) Process(_ context.Context, pctx *ProcessingContext) Result {
	var parts []string

	base := DefaultSystemPrompt
	if branch, err := activeBranch(pctx.Snapshot); err == nil && branch.SystemPrompt != "" {
		base = branch.SystemPrompt
	}
	parts = append(parts, base)
	parts = append(parts, roleInstructions(pctx.Snapshot.Config.AgentRole))
	parts = append(parts, contextHints(pctx))

	fragments := append([]PromptFragment(nil), pctx.Fragments...)
	sort.SliceStable(fragments, func(i, j int) bool { return fragments[i].Priority > fragments[j].Priority })
	for _, f := range fragments {
		if f.Text != "" {
			parts = append(parts, f.Text)
		}
	}

	pctx.SystemPrompt = strings.Join(nonEmpty(parts), "\n\n")
	return Transform()
}

func activeBranch(snapshot *models.ContextSnapshot) (*models.Branch, error) {
	b, ok := snapshot.Branches[snapshot.ActiveBranchName]
	if !ok {
		return nil, fmt.Errorf("no active branch")
	}
	return b, nil
}

func roleInstructions(role models.AgentRole) string {
	switch role {
	case models.RoleAgentPlanner:
		return "Plan the steps needed before taking any action. Do not call tools; describe the plan."
	case models.RoleAgentActor:
		return "Carry out the requested action directly, using tools as needed."
	default:
		return ""
	}
}

func contextHints(pctx *ProcessingContext) string {
	branch, err := activeBranch(pctx.Snapshot)
	fileCount := 0
	if err == nil {
		fileCount = len(branch.MessageIDs)
	}
	toolCount := 0
	if pctx.ToolRegistry != nil {
		toolCount = len(pctx.ToolRegistry.ToolsForRole(pctx.Snapshot.Config.AgentRole))
	}
	return fmt.Sprintf("Context: %d prior messages on this branch, %d tool(s) available.", fileCount, toolCount)
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
