// Package llmclient defines the narrow LLM collaborator interface used by
// the planner, convergence loop, epic decomposer, and adaptive router, and
// a google.golang.org/genai-backed implementation. Grounded on the shape of
// the teacher's internal/perception.LLMClient interface (Complete /
// CompleteWithSystem), swapped from the teacher's raw-REST Gemini/ZAI
// clients onto the official SDK client already used by internal/embedding.
package llmclient

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"sunwell/internal/logging"
	"sunwell/internal/usage"
)

// Client generates a single completion for a prompt pair.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// GenAIClient implements Client against the Gemini API.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// New constructs a GenAIClient. model defaults to "gemini-2.5-pro".
func New(apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llmclient: api key required")
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llmclient: create genai client: %w", err)
	}
	return &GenAIClient{client: client, model: model}, nil
}

// Complete issues one non-streaming completion, recording token usage on
// the usage.Tracker carried by ctx (if any) under operation "llm".
func (c *GenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "Complete")
	defer timer.Stop()

	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)},
		config,
	)
	if err != nil {
		return "", fmt.Errorf("llmclient: generate content: %w", err)
	}

	if tracker := usage.FromContext(ctx); tracker != nil && result.UsageMetadata != nil {
		runID, _ := ctx.Value(runIDKey{}).(string)
		tracker.Track(runID, c.model, "llm", int(result.UsageMetadata.PromptTokenCount), int(result.UsageMetadata.CandidatesTokenCount))
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("llmclient: empty completion")
	}
	return text, nil
}

// Model returns the configured model name.
func (c *GenAIClient) Model() string { return c.model }

type runIDKey struct{}

// WithRunID tags ctx with a run id so Complete's usage tracking attributes
// tokens to the right run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}
