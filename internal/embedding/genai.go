package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"sunwell/internal/logging"
)

// genaiBatchLimit is the largest batch the Gemini embedding API accepts in
// one request.
const genaiBatchLimit = 100

const genaiDimensions = 3072

type genaiEngine struct {
	client *genai.Client
	model  string
}

func newGenAIEngine(apiKey, model string) (*genaiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: genai provider requires an api key")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("embedding: create genai client: %w", err)
	}
	return &genaiEngine{client: client, model: model}, nil
}

func (e *genaiEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "genai.Embed")
	defer timer.Stop()

	dims := int32(genaiDimensions)
	result, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &dims},
	)
	if err != nil {
		return nil, fmt.Errorf("embedding: genai embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding: genai returned no embeddings")
	}
	return result.Embeddings[0].Values, nil
}

func (e *genaiEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += genaiBatchLimit {
		end := start + genaiBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		dims := int32(genaiDimensions)
		result, err := e.client.Models.EmbedContent(ctx, e.model, contents,
			&genai.EmbedContentConfig{OutputDimensionality: &dims})
		if err != nil {
			return nil, fmt.Errorf("embedding: genai batch embed: %w", err)
		}
		for _, emb := range result.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

func (e *genaiEngine) Dimensions() int { return genaiDimensions }
func (e *genaiEngine) Name() string    { return "genai:" + e.model }
