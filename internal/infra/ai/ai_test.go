package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/rescue/internal/core/domain"
)

func TestNew_Providers(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(Config{Provider: "mystery", APIKey: "k"})
	assert.Error(t, err)

	_, err = New(Config{Provider: "openai"})
	assert.Error(t, err, "missing api key")

	g, err := New(Config{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, g)

	g, err = New(Config{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicGenerator{}, g)
}

func TestMaxTokens(t *testing.T) {
	assert.Equal(t, int64(1024), maxTokens(0, 0))
	assert.Equal(t, int64(500), maxTokens(500, 0))
	assert.Equal(t, int64(300), maxTokens(500, 300))
	assert.Equal(t, int64(200), maxTokens(200, 300))
	assert.Equal(t, int64(300), maxTokens(0, 300))
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "<main>ok</main>"}
			}]
		}`)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(Config{APIKey: "test", BaseURL: srv.URL + "/v1/", MaxTokens: 512})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), domain.GenerationRequest{
		System:    "sys",
		Prompt:    "make a page",
		MaxTokens: 2048,
	})
	require.NoError(t, err)
	assert.Equal(t, "<main>ok</main>", out)

	require.NotNil(t, got)
	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 512, got["max_completion_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAIGenerator_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(Config{APIKey: "test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), domain.GenerationRequest{Prompt: "x"})
	assert.Error(t, err)
}

func TestAnthropicGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "<p>hi</p>"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	g, err := NewAnthropicGenerator(Config{APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), domain.GenerationRequest{System: "sys", Prompt: "page"})
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", out)
}
