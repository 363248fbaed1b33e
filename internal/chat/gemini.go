package chat

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	zerrors "zotra/internal/errors"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiChat generates completions through the Gemini API.
type GeminiChat struct {
	client *genai.Client
	opts   Options
}

var _ Chat = (*GeminiChat)(nil)

// NewGeminiChat creates a Gemini-backed chat client.
func NewGeminiChat(ctx context.Context, opts Options) (*GeminiChat, error) {
	if opts.GeminiAPIKey == "" {
		return nil, zerrors.New(zerrors.ErrCodeMissingSecret,
			"GEMINI_API_KEY is required for remote chat", nil).
			WithSuggestion("set GEMINI_API_KEY in the environment or ~/.zotra/.env")
	}
	if opts.Model == "" {
		opts.Model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.GeminiAPIKey))
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeModelAPI, "failed to create Gemini client", err)
	}
	return &GeminiChat{client: client, opts: opts}, nil
}

func (c *GeminiChat) model(jsonMode bool) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.opts.Model)
	model.SetTemperature(float32(c.opts.Temperature))
	if jsonMode {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}
	return model
}

// Complete returns a plain-text completion for the prompt.
func (c *GeminiChat) Complete(ctx context.Context, prompt string) (string, error) {
	return zerrors.RetryWithResult(ctx, zerrors.ModelRetryConfig(), func() (string, error) {
		return c.generate(ctx, c.model(false), prompt)
	})
}

// CompleteJSON asks for a JSON response and unmarshals it into out.
func (c *GeminiChat) CompleteJSON(ctx context.Context, prompt string, out any) error {
	model := c.model(true)

	raw, err := zerrors.RetryWithResult(ctx, zerrors.ModelRetryConfig(), func() (string, error) {
		return c.generate(ctx, model, prompt)
	})
	if err != nil {
		return err
	}
	if err := unmarshalResponse(raw, out); err == nil {
		return nil
	}

	raw, err = c.generate(ctx, model, prompt+strictJSONSuffix)
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

func (c *GeminiChat) generate(ctx context.Context, model *genai.GenerativeModel, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", zerrors.New(zerrors.ErrCodeModelAPI, "gemini chat failed", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", zerrors.New(zerrors.ErrCodeModelAPI, "gemini returned an empty response", nil)
	}
	return text, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// ModelName returns the model identifier.
func (c *GeminiChat) ModelName() string {
	return c.opts.Model
}

// Close releases the underlying API client.
func (c *GeminiChat) Close() error {
	return c.client.Close()
}
