package ollama

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

func TestOllamaComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req struct {
			Model  string   `json:"model"`
			Images []string `json:"images"`
			Stream bool     `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "moondream", req.Model)
		assert.Equal(t, []string{"/9j/4A=="}, req.Images)
		assert.False(t, req.Stream)

		resp := map[string]interface{}{
			"model":    req.Model,
			"response": `Sure! {"primary": "Tomato"}`,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	p := New(server.URL + "/")
	text, err := p.Complete(context.Background(), inference.Request{
		Model:  "moondream",
		Prompt: "label",
		Image:  []byte{0xFF, 0xD8, 0xFF, 0xE0},
	})
	require.NoError(t, err)
	assert.Equal(t, `Sure! {"primary": "Tomato"}`, text)
}

func TestOllamaErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"moondream\" not found, try pulling it first"}`))
	}))
	defer server.Close()

	_, err := New(server.URL).Complete(context.Background(), inference.Request{Model: "moondream", Prompt: "p"})
	var pe *inference.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
	assert.Contains(t, pe.Message, "not found")
}

func TestOllamaNetworkError(t *testing.T) {
	_, err := New("http://localhost:99999").Complete(context.Background(), inference.Request{Model: "moondream", Prompt: "p"})
	require.Error(t, err)
	var pe *inference.ProviderError
	assert.NotErrorAs(t, err, &pe)
}

func TestOllamaInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	_, err := New(server.URL).Complete(context.Background(), inference.Request{Model: "moondream", Prompt: "p"})
	assert.Error(t, err)
}
