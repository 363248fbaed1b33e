package errors

import (
	"fmt"
)

// ZotraError is the structured error type for zotra.
// It provides rich context for error handling, logging, and user presentation.
type ZotraError struct {
	// Code is the unique error code (e.g., "ERR_203_PDF_MISSING").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ZotraError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ZotraError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ZotraError.
func (e *ZotraError) Is(target error) bool {
	if t, ok := target.(*ZotraError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ZotraError) WithDetail(key, value string) *ZotraError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *ZotraError) WithSuggestion(suggestion string) *ZotraError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ZotraError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ZotraError {
	return &ZotraError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ZotraError from an existing error.
// The error's message becomes the ZotraError message.
func Wrap(code string, err error) *ZotraError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ZotraError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *ZotraError {
	return New(ErrCodeFileNotFound, message, cause)
}

// LibraryError creates a Zotero library API error.
// Library API errors are retryable.
func LibraryError(message string, cause error) *ZotraError {
	return New(ErrCodeLibraryAPI, message, cause)
}

// ModelError creates a chat/embedding model API error.
// Model API errors are retryable.
func ModelError(message string, cause error) *ZotraError {
	return New(ErrCodeModelAPI, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ZotraError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ZotraError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a ZotraError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ze, ok := err.(*ZotraError); ok {
		return ze.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ze, ok := err.(*ZotraError); ok {
		return ze.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ZotraError.
// Returns empty string if not a ZotraError.
func GetCode(err error) string {
	if ze, ok := err.(*ZotraError); ok {
		return ze.Code
	}
	return ""
}

// GetCategory extracts the category from a ZotraError.
// Returns empty string if not a ZotraError.
func GetCategory(err error) Category {
	if ze, ok := err.(*ZotraError); ok {
		return ze.Category
	}
	return ""
}
