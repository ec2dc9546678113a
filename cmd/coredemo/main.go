// Package main provides the CLI entry point for coredemo, a small
// demonstration program that wires the conversation core's Context
// Orchestrator against an in-process echo LLM adapter and a one-tool
// registry. Its subcommands exercise CreateContext, SendMessage,
// ApproveTools and GetMetadata end to end; it
// is not a production gateway, and has no channel, auth, or HTTP transport
// of its own.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kairoslabs/convocore/internal/broadcaster"
	"github.com/kairoslabs/convocore/internal/coreconfig"
	"github.com/kairoslabs/convocore/internal/orchestrator"
	"github.com/kairoslabs/convocore/internal/store"
	"github.com/kairoslabs/convocore/internal/toolengine"
	"github.com/kairoslabs/convocore/pkg/models"
)

var (
	version = "dev"

	enableMetrics bool
	enableTracing bool
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached,
// separated from main so tests can exercise it without os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "coredemo",
		Short:        "Demo CLI driving the conversation orchestration core",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVar(&enableMetrics, "metrics", false, "enable Prometheus metrics collection")
	rootCmd.PersistentFlags().BoolVar(&enableTracing, "tracing", false, "enable OpenTelemetry span creation")

	rootCmd.AddCommand(
		newCreateCmd(),
		newSendCmd(),
		newStatusCmd(),
		newApproveCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// demoState is shared by every subcommand invocation of this process: a
// single orchestrator wired with in-memory collaborators. A real deployment
// would persist contexts across process restarts via store.NewFileStore;
// the demo keeps everything in memory for simplicity.
var demoState *orchestrator.Orchestrator

func demo() *orchestrator.Orchestrator {
	if demoState != nil {
		return demoState
	}
	opts := coreconfig.DefaultOrchestratorOptions()
	opts.EnableMetrics = enableMetrics
	opts.EnableTracing = enableTracing

	b := broadcaster.New()
	opts.ApplyToBroadcaster(b)

	registry := buildRegistry()
	o := orchestrator.New(store.NewMemoryStore(), b)
	o.ToolEngine = toolengine.New(registry)
	o.ToolRegistry = registry
	o.LLM = echoLLM{}
	opts.ApplyToEngine(o.ToolEngine)
	o.Metrics, o.Tracer = opts.Observability()
	b.Metrics = o.Metrics

	demoState = o
	return o
}

func newCreateCmd() *cobra.Command {
	var modelID, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new conversation context",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := demo().CreateContext(cmd.Context(), models.ContextConfig{
				ModelID:   modelID,
				Mode:      models.ModeAct,
				AgentRole: models.AgentRole(role),
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelID, "model", "demo-model", "model id to record on the context")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAgentActor), "agent role: actor or planner")
	return cmd
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <context-id> <text>",
		Short: "Send a user message and drive the turn to completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return demo().SendMessage(cmd.Context(), args[0], args[1])
		},
	}
}

func newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <context-id> <call-id>=<true|false>...",
		Short: "Resolve a pending tool-approval decision",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			decisions := make(map[string]bool, len(args)-1)
			for _, pair := range args[1:] {
				var id string
				var approved bool
				if _, err := fmt.Sscanf(pair, "%[^=]=%t", &id, &approved); err != nil {
					return fmt.Errorf("parse decision %q: %w", pair, err)
				}
				decisions[id] = approved
			}
			return demo().ApproveTools(cmd.Context(), args[0], decisions)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <context-id>",
		Short: "Print a context's metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := demo().GetMetadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(meta, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective orchestrator options",
		RunE: func(*cobra.Command, []string) error {
			opts := coreconfig.DefaultOrchestratorOptions()
			opts.EnableMetrics = enableMetrics
			opts.EnableTracing = enableTracing
			out, err := opts.Dump()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}
