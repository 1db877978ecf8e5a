// Package ollama adapts a local Ollama server's /api/generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vbonduro/pantrysync/internal/inference"
)

const DefaultHost = "http://localhost:11434"

type Provider struct {
	host   string
	client *http.Client
}

func New(host string) *Provider {
	if host == "" {
		host = DefaultHost
	}
	return &Provider{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{},
	}
}

func (p *Provider) Complete(ctx context.Context, req inference.Request) (string, error) {
	reqBody := map[string]interface{}{
		"model":  req.Model,
		"prompt": req.Prompt,
		"stream": false,
	}
	if len(req.Image) > 0 {
		reqBody["images"] = []string{base64.StdEncoding.EncodeToString(req.Image)}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call ollama: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close ollama response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var respBody struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	decodeErr := json.Unmarshal(body, &respBody)

	if respBody.Error != "" {
		return "", &inference.ProviderError{Model: req.Model, StatusCode: resp.StatusCode, Message: respBody.Error}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &inference.ProviderError{Model: req.Model, StatusCode: resp.StatusCode, Message: fmt.Sprintf("ollama returned status %d", resp.StatusCode)}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return respBody.Response, nil
}

var _ inference.Provider = (*Provider)(nil)
