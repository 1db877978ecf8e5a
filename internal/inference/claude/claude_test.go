package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/pantrysync/internal/inference"
)

func TestCompleteWithImage(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_1",
			"type":  "message",
			"role":  "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": []map[string]any{
				{"type": "text", "text": `{"primary":"tomato","labels":[{"name":"tomato","confidence":0.9}]}`},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	defer server.Close()

	p := New("sk-test", server.URL)
	text, err := p.Complete(context.Background(), inference.Request{
		Model:    "claude-3-5-haiku-latest",
		Prompt:   "label",
		Image:    []byte{0xFF, 0xD8},
		MimeType: "image/heic",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "tomato")

	assert.Equal(t, "claude-3-5-haiku-latest", got["model"])
	msgs := got["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	source := content[0].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "image/jpeg", source["media_type"])
	assert.Equal(t, "label", content[1].(map[string]any)["text"])
}

func TestCompleteAPIErrorIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests has exceeded your rate limit"}}`))
	}))
	defer server.Close()

	_, err := New("sk-test", server.URL).Complete(context.Background(), inference.Request{Model: "claude-3-5-haiku-latest", Prompt: "p"})
	var pe *inference.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "rate limit")
}

func TestCompleteNetworkError(t *testing.T) {
	_, err := New("sk-test", "http://localhost:99999").Complete(context.Background(), inference.Request{Model: "m", Prompt: "p"})
	require.Error(t, err)
	var pe *inference.ProviderError
	assert.NotErrorAs(t, err, &pe)
}

func TestNormaliseMIME(t *testing.T) {
	assert.Equal(t, "image/png", normaliseMIME("image/png"))
	assert.Equal(t, "image/jpeg", normaliseMIME("image/heic"))
}
