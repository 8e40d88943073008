// Package llm abstracts the text-completion call used by the recipe
// synthesizer, so callers can swap the real Anthropic-backed client for an
// in-memory fake in tests.
package llm

import "context"

// Completer produces a single text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (Completion, error)
}

// Completion is one model response plus its token accounting, mirrored onto
// AgentRun.PromptTokens/CompletionTokens/CostUSD by callers that bill against
// a workspace.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
