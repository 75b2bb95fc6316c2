package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_GenerateResponse(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotBody map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"index\": 1}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 30, "output_tokens": 6}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(&AnthropicConfig{Model: "claude-test", APIKey: "ak", Endpoint: server.URL}, nil)
	require.NoError(t, err)

	result, err := client.GenerateResponse(context.Background(), "pick one", "You rank columns.", 0, true)
	require.NoError(t, err)

	assert.Equal(t, `{"index": 1}`, result.Content)
	assert.Equal(t, 36, result.TotalTokens)
	assert.Equal(t, "/messages", gotPath)
	assert.Equal(t, "ak", gotKey)
	assert.Equal(t, "claude-test", gotBody["model"])
	assert.Contains(t, gotBody["system"], jsonOnlyInstruction)
}

func TestAnthropicClient_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(&AnthropicConfig{Model: "claude-test", APIKey: "ak", Endpoint: server.URL}, nil)
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "p", "s", 0, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
}

func TestNewAnthropicClient_Validation(t *testing.T) {
	_, err := NewAnthropicClient(&AnthropicConfig{APIKey: "k"}, nil)
	assert.EqualError(t, err, "model is required")

	_, err = NewAnthropicClient(&AnthropicConfig{Model: "m"}, nil)
	assert.EqualError(t, err, "api key is required")

	client, err := NewAnthropicClient(&AnthropicConfig{Model: "m", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.anthropic.com/v1", client.GetEndpoint())
}
