package main

import (
	"context"
	"strings"

	"github.com/kairoslabs/convocore/internal/orchestrator"
	"github.com/kairoslabs/convocore/pkg/models"
)

// echoLLM is a stand-in LLMAdapter for the demo CLI: the wire protocol
// client to a real model is explicitly out of scope for this core, so this
// adapter just echoes the user's last turn back in chunks, invoking the
// "echo" tool when the input is prefixed with "/tool ". It exists only so
// the command tree below can exercise SendMessage/ApproveTools end to end
// without a network dependency.
type echoLLM struct{}

func (echoLLM) Stream(ctx context.Context, _ string, history []models.ClassicalMessage) (<-chan orchestrator.LLMChunk, error) {
	ch := make(chan orchestrator.LLMChunk, 8)

	var lastUser string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			lastUser = history[i].Content
			break
		}
	}

	go func() {
		defer close(ch)

		if rest, ok := strings.CutPrefix(lastUser, "/tool "); ok {
			select {
			case ch <- orchestrator.LLMChunk{
				Done: true,
				ToolCalls: []models.ToolCallRequest{{
					ID:        "call-1",
					ToolName:  "echo",
					Arguments: models.ToolArgs{Kind: models.ToolArgsString, String: strings.TrimSpace(rest)},
				}},
				FinishReason: "tool_use",
			}:
			case <-ctx.Done():
			}
			return
		}

		reply := "you said: " + lastUser
		for _, word := range strings.Fields(reply) {
			select {
			case ch <- orchestrator.LLMChunk{Text: word + " "}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- orchestrator.LLMChunk{Done: true, FinishReason: "stop"}:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}
