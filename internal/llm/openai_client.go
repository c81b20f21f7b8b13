package llm

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/ryoshumei/workflowengine/internal/ctxlog"
	"github.com/ryoshumei/workflowengine/internal/engineerr"
)

// CallTimeout bounds a single LLM call per spec.md §5 ("Per-LLM-call
// timeout: 60 s").
const CallTimeout = 60 * time.Second

// OpenAIClient calls an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds an OpenAIClient. baseURL is optional; when empty
// the go-openai default (OpenAI's own API) is used, so the same client type
// also serves OpenAI-compatible gateways.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Generate implements Client. It fails on transport error or a non-2xx
// response from the upstream, surfacing both as engineerr.UpstreamUnavailable
// per spec.md §7.
func (o *OpenAIClient) Generate(ctx context.Context, model, prompt string, params GenerationParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = float32(*params.Temperature)
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = float32(*params.TopP)
	}

	ctxlog.FromContext(ctx).Debug("calling llm", "model", model)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", engineerr.Wrap(engineerr.UpstreamUnavailable, "llm call failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", engineerr.New(engineerr.UpstreamUnavailable, "llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Client = (*OpenAIClient)(nil)
