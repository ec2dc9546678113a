package pipeline

import (
	"context"

	"github.com/kairoslabs/convocore/pkg/models"
)

// PackDiagnostics reports what ContextPacking dropped so callers can log
// or surface it, mirroring the "no silent truncation" stance the rest of
// the core takes toward bounded operations.
type PackDiagnostics struct {
	Budget      int
	UsedChars   int
	DroppedOld  int
	Summarized  bool
}

// ContextPacking is an optional fifth pipeline stage: when a branch's
// history would exceed CharBudget, it drops the oldest messages (after the
// system prompt and the most recent N) and, if a Summarizer is configured,
// replaces them with a single summary message rather than dropping them
// silently.
type ContextPacking struct {
	// CharBudget bounds the total character count of branch history
	// considered for the turn. Zero disables packing.
	CharBudget int

	// KeepRecent is the minimum number of most-recent messages never
	// dropped regardless of budget.
	KeepRecent int

	Summarizer Summarizer

	lastDiagnostics PackDiagnostics
}

// Summarizer condenses a run of dropped messages into one replacement
// message. Concrete summarization (calling an LLM) lives outside the
// core; this interface is the seam.
type Summarizer interface {
	Summarize(ctx context.Context, dropped []*models.InternalMessage) (*models.InternalMessage, error)
}

func (c *ContextPacking) Name() string { return "context_packing" }

// Diagnostics returns the result of the most recent Process call.
func (c *ContextPacking) Diagnostics() PackDiagnostics {
	return c.lastDiagnostics
}

func (c *ContextPacking) Process(ctx context.Context, pctx *ProcessingContext) Result {
	if c == nil || c.CharBudget <= 0 {
		return Continue()
	}

	history := pctx.History
	if len(history) == 0 {
		return Continue()
	}

	keep := c.KeepRecent
	if keep <= 0 {
		keep = 4
	}
	if keep >= len(history) {
		return Continue()
	}

	total := 0
	for _, m := range history {
		total += len(m.Text())
	}
	if total <= c.CharBudget {
		c.lastDiagnostics = PackDiagnostics{Budget: c.CharBudget, UsedChars: total}
		return Continue()
	}

	cut := len(history) - keep
	dropped := history[:cut]
	kept := history[cut:]

	usedChars := 0
	for _, m := range kept {
		usedChars += len(m.Text())
	}

	diag := PackDiagnostics{Budget: c.CharBudget, UsedChars: usedChars, DroppedOld: len(dropped)}

	if c.Summarizer != nil {
		summary, err := c.Summarizer.Summarize(ctx, dropped)
		if err == nil && summary != nil {
			pctx.History = append([]*models.InternalMessage{summary}, kept...)
			diag.Summarized = true
			c.lastDiagnostics = diag
			return Transform()
		}
	}

	pctx.History = kept
	c.lastDiagnostics = diag
	return Transform()
}
