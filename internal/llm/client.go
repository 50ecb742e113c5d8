// Package llm wraps strategy-generation prompts behind a provider-neutral
// Client interface. TemplateParameterGenerator only ever sees JSON text in
// and JSON text out — spec.md §4.6's "JSON-first discipline" — never an
// instruction to emit executable code. Grounded on smilemakc-mbflow's LLM
// provider abstraction (Execute(ctx, *LLMRequest) (*LLMResponse, error));
// the OpenAI-backed implementation uses sashabaranov/go-openai rather than
// the teacher's hand-rolled HTTP client, since the pack carries that
// dependency directly.
package llm

import "context"

// Request is a single completion call: one system instruction, one user
// prompt, JSON output required.
type Request struct {
	Model       string
	Instruction string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Response is a single completion result.
type Response struct {
	Content      string
	FinishReason string
	PromptTokens int
	CompletionTokens int
}

// Client is the provider-neutral interface every generator talks to.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
