package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZotraError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	zerr := New(ErrCodePDFMissing, "no PDF attachment for item ABCD1234", originalErr)

	require.NotNil(t, zerr)
	assert.Equal(t, originalErr, errors.Unwrap(zerr))
	assert.True(t, errors.Is(zerr, originalErr))
}

func TestZotraError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "pdf error",
			code:     ErrCodePDFMissing,
			message:  "item QWERTY12 has no PDF attachment",
			expected: "[ERR_203_PDF_MISSING] item QWERTY12 has no PDF attachment",
		},
		{
			name:     "library error",
			code:     ErrCodeLibraryAPI,
			message:  "zotero returned 503",
			expected: "[ERR_303_LIBRARY_API] zotero returned 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestZotraError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodePDFMissing, "item A has no PDF", nil)
	err2 := New(ErrCodePDFMissing, "item B has no PDF", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestZotraError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodePDFMissing, "no PDF", nil)
	err2 := New(ErrCodeConfigNotFound, "config not found", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestZotraError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeConvertFailed, "conversion failed", nil)

	err = err.WithDetail("pdf_path", "/lib/storage/ABCD1234/paper.pdf")
	err = err.WithDetail("item_id", "XYZ98765")

	assert.Equal(t, "/lib/storage/ABCD1234/paper.pdf", err.Details["pdf_path"])
	assert.Equal(t, "XYZ98765", err.Details["item_id"])
}

func TestZotraError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeNetworkTimeout, "connection timed out", nil)

	err = err.WithSuggestion("Check that Ollama is running")

	assert.Equal(t, "Check that Ollama is running", err.Suggestion)
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeMissingSecret, CategoryConfig},
		{ErrCodePDFMissing, CategoryIO},
		{ErrCodeCorruptIndex, CategoryIO},
		{ErrCodeLibraryAPI, CategoryNetwork},
		{ErrCodeModelAPI, CategoryNetwork},
		{ErrCodeQueryEmpty, CategoryValidation},
		{ErrCodeEmbeddingFailed, CategoryInternal},
		{"bogus", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, "msg", nil).Category)
		})
	}
}

func TestRetryableFlags(t *testing.T) {
	assert.True(t, IsRetryable(LibraryError("zotero 502", nil)))
	assert.True(t, IsRetryable(ModelError("gemini 500", nil)))
	assert.False(t, IsRetryable(ConfigError("bad config", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeCorruptIndex, "index header damaged", nil)))
	assert.False(t, IsFatal(New(ErrCodePDFMissing, "no PDF", nil)))
	assert.False(t, IsFatal(nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestGetCodeAndCategory(t *testing.T) {
	err := ModelError("model unavailable", nil)
	assert.Equal(t, ErrCodeModelAPI, GetCode(err))
	assert.Equal(t, CategoryNetwork, GetCategory(err))

	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.Equal(t, Category(""), GetCategory(errors.New("plain")))
}
