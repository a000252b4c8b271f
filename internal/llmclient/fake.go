package llmclient

import "context"

// Fake is a scripted Client for tests elsewhere in the module: each call to
// Complete pops the next response (or repeats the last one once exhausted).
type Fake struct {
	Responses []string
	Err       error
	calls     int
	Prompts   []string
}

// Complete records the prompt and returns the next scripted response.
func (f *Fake) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.Prompts = append(f.Prompts, userPrompt)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Responses) == 0 {
		return "", nil
	}
	idx := f.calls
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	f.calls++
	return f.Responses[idx], nil
}

// Model satisfies Client; fakes report a fixed placeholder name.
func (f *Fake) Model() string { return "fake-model" }
