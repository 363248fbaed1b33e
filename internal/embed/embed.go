// Package embed generates vector embeddings for text, either locally
// through Ollama or remotely through the Gemini API.
package embed

import (
	"context"
	"fmt"
	"math"

	"zotra/internal/config"
	zerrors "zotra/internal/errors"
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Close releases resources
	Close() error
}

// New creates the embedder selected by cfg, wrapped in an LRU cache.
// "local" talks to an Ollama server, "remote" to the Gemini API.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	switch cfg.API {
	case "local", "":
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:      cfg.OllamaHost,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		})
	case "remote":
		inner, err = NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.Model,
		})
	default:
		return nil, zerrors.New(zerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embedding api %q (want local or remote)", cfg.API), nil)
	}
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
