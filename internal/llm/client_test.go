package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.LLMConfig{
		BaseURL:     srv.URL,
		Model:       "test-model",
		Temperature: 0.2,
		MaxTokens:   100,
		Timeout:     2 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestGenerateReturnsCompletionText(t *testing.T) {
	var got completionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(completionResponse{Text: "  Hello there.  "})
	})

	text, err := client.Generate(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", text)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "say hello", got.Prompt)
	assert.Equal(t, 100, got.MaxTokens)
}

func TestGenerateServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)
}

func TestGenerateEmptyCompletion(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionResponse{Text: "   "})
	})

	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty completion")
}

func TestGenerateMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)
}
