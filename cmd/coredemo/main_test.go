package main

import (
	"context"
	"testing"

	"github.com/kairoslabs/convocore/pkg/models"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"create", "send", "status", "approve", "config"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestDemo_CreateThenSendEchoesReply(t *testing.T) {
	demoState = nil
	o := demo()

	id, err := o.CreateContext(context.Background(), models.ContextConfig{
		ModelID:   "demo-model",
		Mode:      models.ModeAct,
		AgentRole: models.RoleAgentActor,
	})
	if err != nil {
		t.Fatalf("create context: %v", err)
	}

	if err := o.SendMessage(context.Background(), id, "hello"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	meta, err := o.GetMetadata(context.Background(), id)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if meta.MessageCount != 2 {
		t.Fatalf("expected 2 messages (user + assistant), got %d", meta.MessageCount)
	}
}
