package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ze, ok := err.(*ZotraError)
	if !ok {
		ze = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ze.Message))
	if ze.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ze.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ze.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
// Suitable for machine consumption and structured logging.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ze, ok := err.(*ZotraError)
	if !ok {
		ze = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       ze.Code,
		Message:    ze.Message,
		Category:   string(ze.Category),
		Severity:   string(ze.Severity),
		Details:    ze.Details,
		Suggestion: ze.Suggestion,
		Retryable:  ze.Retryable,
	}
	if ze.Cause != nil {
		je.Cause = ze.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ze, ok := err.(*ZotraError)
	if !ok {
		return map[string]any{"error": err.Error()}
	}

	result := map[string]any{
		"error_code": ze.Code,
		"message":    ze.Message,
		"category":   string(ze.Category),
		"severity":   string(ze.Severity),
		"retryable":  ze.Retryable,
	}
	if ze.Cause != nil {
		result["cause"] = ze.Cause.Error()
	}
	if ze.Suggestion != "" {
		result["suggestion"] = ze.Suggestion
	}
	for k, v := range ze.Details {
		result["detail_"+k] = v
	}

	return result
}
