package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kairoslabs/convocore/internal/agent"
	"github.com/kairoslabs/convocore/internal/jobs"
	"github.com/kairoslabs/convocore/pkg/models"
)

// buildRegistry wires the demo's only concrete tool: "echo", which uppercases
// its string argument. Filesystem/exec tool backends are explicitly out of
// scope for this core; this exists to exercise agent.Registry end to end.
func buildRegistry() *agent.Registry {
	r := agent.NewRegistry(jobs.NewMemoryStore())
	r.Register(agent.Tool{
		Name:        "echo",
		Description: "uppercases its string argument",
		Run: func(_ context.Context, args models.ToolArgs) (json.RawMessage, error) {
			return json.Marshal(strings.ToUpper(args.String))
		},
	})
	return r
}
