// Package llm provides the capability interface and OpenAI-compatible
// implementation used by generative_ai and agent nodes to call a language
// model.
package llm

import "context"

// GenerationParams carries the optional tuning knobs accepted by
// generative_ai node configs (spec.md §4.3).
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// Client is the capability interface the executors depend on. It is
// implemented by OpenAIClient and by test doubles.
type Client interface {
	Generate(ctx context.Context, model, prompt string, params GenerationParams) (string, error)
}
