package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	zerrors "zotra/internal/errors"
)

// Gemini defaults.
const (
	DefaultGeminiModel = "text-embedding-004"

	// geminiDimensions is fixed for text-embedding-004.
	geminiDimensions = 768

	// geminiBatchLimit is the API cap on contents per batch request.
	geminiBatchLimit = 100
)

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiEmbedder generates embeddings through the Gemini API.
type GeminiEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	name   string
	dims   int
}

var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates a Gemini-backed embedder.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, zerrors.New(zerrors.ErrCodeMissingSecret,
			"GEMINI_API_KEY is required for remote embeddings", nil).
			WithSuggestion("set GEMINI_API_KEY in the environment or ~/.zotra/.env")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeModelAPI, "failed to create Gemini client", err)
	}

	return &GeminiEmbedder{
		client: client,
		model:  client.EmbeddingModel(cfg.Model),
		name:   cfg.Model,
		dims:   geminiDimensions,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	resp, err := zerrors.RetryWithResult(ctx, zerrors.ModelRetryConfig(), func() (*genai.EmbedContentResponse, error) {
		return e.model.EmbedContent(ctx, genai.Text(text))
	})
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeModelAPI, "gemini embedding failed", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, zerrors.New(zerrors.ErrCodeEmbeddingFailed, "gemini returned an empty embedding", nil)
	}

	vec := normalizeVector(resp.Embedding.Values)
	e.dims = len(vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts in batched API
// calls. Empty texts embed as zero vectors without an API call.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += geminiBatchLimit {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + geminiBatchLimit
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}
		group := nonEmpty[start:end]

		batch := e.model.NewBatch()
		for _, it := range group {
			batch = batch.AddContent(genai.Text(it.text))
		}

		resp, err := zerrors.RetryWithResult(ctx, zerrors.ModelRetryConfig(), func() (*genai.BatchEmbedContentsResponse, error) {
			return e.model.BatchEmbedContents(ctx, batch)
		})
		if err != nil {
			return nil, zerrors.New(zerrors.ErrCodeModelAPI, "gemini batch embedding failed", err)
		}
		if len(resp.Embeddings) != len(group) {
			return nil, zerrors.New(zerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), len(group)), nil)
		}

		for i, emb := range resp.Embeddings {
			vec := normalizeVector(emb.Values)
			results[group[i].idx] = vec
			e.dims = len(vec)
		}
	}

	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *GeminiEmbedder) ModelName() string {
	return e.name
}

// Close releases the underlying API client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
