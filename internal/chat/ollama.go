package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	zerrors "zotra/internal/errors"
)

// Ollama chat defaults.
const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "qwen3:8b"

	// Generation is slow on consumer hardware; synthesis prompts carry
	// a lot of context.
	ollamaChatTimeout = 5 * time.Minute
)

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Think   bool           `json:"think"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// OllamaChat generates completions through Ollama's /api/generate.
type OllamaChat struct {
	client *http.Client
	opts   Options
}

var _ Chat = (*OllamaChat)(nil)

// NewOllamaChat creates an Ollama-backed chat client.
func NewOllamaChat(opts Options) *OllamaChat {
	if opts.OllamaHost == "" {
		opts.OllamaHost = defaultOllamaHost
	}
	if opts.Model == "" {
		opts.Model = defaultOllamaModel
	}
	return &OllamaChat{
		client: &http.Client{},
		opts:   opts,
	}
}

// Complete returns a plain-text completion for the prompt.
func (c *OllamaChat) Complete(ctx context.Context, prompt string) (string, error) {
	return zerrors.RetryWithResult(ctx, zerrors.ModelRetryConfig(), func() (string, error) {
		return c.generate(ctx, prompt, "")
	})
}

// CompleteJSON asks for a JSON response and unmarshals it into out.
func (c *OllamaChat) CompleteJSON(ctx context.Context, prompt string, out any) error {
	raw, err := zerrors.RetryWithResult(ctx, zerrors.ModelRetryConfig(), func() (string, error) {
		return c.generate(ctx, prompt, "json")
	})
	if err != nil {
		return err
	}
	if err := unmarshalResponse(raw, out); err == nil {
		return nil
	}

	// One stricter retry before giving up.
	raw, err = c.generate(ctx, prompt+strictJSONSuffix, "json")
	if err != nil {
		return err
	}
	if err := unmarshalResponse(raw, out); err != nil {
		return zerrors.New(zerrors.ErrCodeSchemaMismatch,
			"model response is not valid JSON", err).
			WithDetail("response", truncate(raw, 200))
	}
	return nil
}

func (c *OllamaChat) generate(ctx context.Context, prompt, format string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, ollamaChatTimeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.opts.Model,
		Prompt: prompt,
		Stream: false,
		Format: format,
		Think:  false,
		Options: map[string]any{
			"temperature": c.opts.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.opts.OllamaHost+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", zerrors.New(zerrors.ErrCodeModelAPI, "chat request failed", err).
			WithSuggestion("start Ollama with 'ollama serve' and pull the model with 'ollama pull " + c.opts.Model + "'")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", zerrors.New(zerrors.ErrCodeModelAPI,
			fmt.Sprintf("chat failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 200)), nil)
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Response, nil
}

// ModelName returns the model identifier.
func (c *OllamaChat) ModelName() string {
	return c.opts.Model
}

// Close releases resources.
func (c *OllamaChat) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
