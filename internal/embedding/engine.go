// Package embedding generates vector embeddings for the Knowledge Store's
// similarity search, grounded on the teacher's internal/embedding dual
// Ollama/GenAI backend split. Sunwell keeps both backends: GenAI for a
// zero-infra cloud default, Ollama for a fully local/offline setup.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Engine generates embeddings for text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	Provider string // "genai" or "ollama"

	GenAIAPIKey string
	GenAIModel  string // default "gemini-embedding-001"

	OllamaEndpoint string // default "http://localhost:11434"
	OllamaModel    string // default "embeddinggemma"
}

// New constructs the Engine named by cfg.Provider.
func New(cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "", "genai":
		return newGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	case "ollama":
		return newOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("embedding: unsupported provider %q", cfg.Provider)
	}
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors, in [-1, 1]. A zero-magnitude vector yields 0 rather than NaN.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding: dimension mismatch %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
