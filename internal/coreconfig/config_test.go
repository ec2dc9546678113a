package coreconfig

import (
	"strings"
	"testing"

	"github.com/kairoslabs/convocore/internal/broadcaster"
	"github.com/kairoslabs/convocore/internal/toolengine"
)

func TestApplyToEngine_OverridesOnlyNonZeroFields(t *testing.T) {
	e := toolengine.New(nil)
	opts := OrchestratorOptions{MaxToolRetries: 5}
	opts.ApplyToEngine(e)

	if e.MaxToolRetries != 5 {
		t.Errorf("expected MaxToolRetries 5, got %d", e.MaxToolRetries)
	}
	if e.MaxParseRetries != 3 {
		t.Errorf("expected MaxParseRetries left at default 3, got %d", e.MaxParseRetries)
	}
}

func TestApplyToBroadcaster_OverridesBufferSize(t *testing.T) {
	b := broadcaster.New()
	defer b.Stop()
	opts := OrchestratorOptions{BroadcastBufferSize: 8}
	opts.ApplyToBroadcaster(b)

	if b.BufferSize != 8 {
		t.Errorf("expected BufferSize 8, got %d", b.BufferSize)
	}
}

func TestDump_ProducesYAML(t *testing.T) {
	opts := DefaultOrchestratorOptions()
	out, err := opts.Dump()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "max_tool_retries: 3") {
		t.Errorf("expected dump to contain max_tool_retries, got %q", out)
	}
}
