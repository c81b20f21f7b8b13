package llm

import "context"

// FakeClient is a deterministic Client used by executor and agent tests. It
// returns Response for any Generate call, recording the last prompt/model
// seen, or Err if set.
type FakeClient struct {
	Response string
	Err      error

	LastModel  string
	LastPrompt string
	Calls      int
}

func (f *FakeClient) Generate(_ context.Context, model, prompt string, _ GenerationParams) (string, error) {
	f.Calls++
	f.LastModel = model
	f.LastPrompt = prompt
	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}

var _ Client = (*FakeClient)(nil)
