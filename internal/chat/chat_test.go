package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

// fakeOllamaChat serves /api/generate, returning canned responses in
// order.
func fakeOllamaChat(t *testing.T, responses ...string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		resp := responses[len(responses)-1]
		if calls < len(responses) {
			resp = responses[calls]
		}
		calls++
		require.NoError(t, json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: resp}))
	}))
	return srv, &calls
}

func TestOllamaChat_Complete(t *testing.T) {
	srv, _ := fakeOllamaChat(t, "a plain answer")
	defer srv.Close()

	c := NewOllamaChat(Options{OllamaHost: srv.URL, Model: "test"})
	defer func() { _ = c.Close() }()

	got, err := c.Complete(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "a plain answer", got)
}

func TestOllamaChat_CompleteJSON(t *testing.T) {
	srv, _ := fakeOllamaChat(t, `{"query": "next search"}`)
	defer srv.Close()

	c := NewOllamaChat(Options{OllamaHost: srv.URL, Model: "test"})
	defer func() { _ = c.Close() }()

	var out struct {
		Query string `json:"query"`
	}
	require.NoError(t, c.CompleteJSON(context.Background(), "prompt", &out))
	assert.Equal(t, "next search", out.Query)
}

func TestOllamaChat_CompleteJSON_RetriesMalformed(t *testing.T) {
	srv, calls := fakeOllamaChat(t, "not json at all", `{"query": "fixed"}`)
	defer srv.Close()

	c := NewOllamaChat(Options{OllamaHost: srv.URL, Model: "test"})
	defer func() { _ = c.Close() }()

	var out struct {
		Query string `json:"query"`
	}
	require.NoError(t, c.CompleteJSON(context.Background(), "prompt", &out))
	assert.Equal(t, "fixed", out.Query)
	assert.Equal(t, 2, *calls)
}

func TestOllamaChat_CompleteJSON_FailsAfterStrictRetry(t *testing.T) {
	srv, _ := fakeOllamaChat(t, "still not json")
	defer srv.Close()

	c := NewOllamaChat(Options{OllamaHost: srv.URL, Model: "test"})
	defer func() { _ = c.Close() }()

	var out struct{}
	err := c.CompleteJSON(context.Background(), "prompt", &out)
	assert.Error(t, err)
}

func TestNew_UnknownAPI(t *testing.T) {
	_, err := New(context.Background(), Options{API: "bogus"})
	assert.Error(t, err)
}

func TestNew_LocalDefault(t *testing.T) {
	c, err := New(context.Background(), Options{API: "local"})
	require.NoError(t, err)
	assert.Equal(t, defaultOllamaModel, c.ModelName())
	_ = c.Close()
}
