// Package chat provides text and structured-output completion through
// a local Ollama server or the Gemini API.
package chat

import (
	"context"
	"fmt"

	zerrors "zotra/internal/errors"
)

// Chat generates model completions.
type Chat interface {
	// Complete returns a plain-text completion for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteJSON asks the model for a JSON response and unmarshals
	// it into out. A malformed response is retried once with a
	// stricter instruction before failing.
	CompleteJSON(ctx context.Context, prompt string, out any) error

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Options selects and configures a chat backend.
type Options struct {
	// API is "local" (Ollama) or "remote" (Gemini).
	API string
	// Model is the chat model name.
	Model string
	// Temperature is the sampling temperature.
	Temperature float64
	// OllamaHost is the Ollama endpoint for the local backend.
	OllamaHost string
	// GeminiAPIKey is the API key for the remote backend.
	GeminiAPIKey string
}

// New creates the chat backend selected by opts.
func New(ctx context.Context, opts Options) (Chat, error) {
	switch opts.API {
	case "local", "":
		return NewOllamaChat(opts), nil
	case "remote":
		return NewGeminiChat(ctx, opts)
	default:
		return nil, zerrors.New(zerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown chat api %q (want local or remote)", opts.API), nil)
	}
}

// strictJSONSuffix is appended to the prompt when the first JSON
// response fails to parse.
const strictJSONSuffix = "\n\nRespond with a single valid JSON object only. No markdown fences, no commentary."
