package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// ToolEnhancement queries the ToolRegistry collaborator for the tools
// permitted by the message's agent role and appends their definitions as a
// prompt fragment at PriorityTools.
type ToolEnhancement struct {
	Registry ToolRegistry
}

func (t *ToolEnhancement) Name() string { return "tool_enhancement" }

func (t *ToolEnhancement) Process(_ context.Context, pctx *ProcessingContext) Result {
	if t.Registry == nil {
		return Continue()
	}

	tools := t.Registry.ToolsForRole(pctx.Snapshot.Config.AgentRole)
	if len(tools) == 0 {
		return Continue()
	}

	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}

	pctx.Fragments = append(pctx.Fragments, PromptFragment{
		Priority: PriorityTools,
		Text:     b.String(),
	})
	return Continue()
}
