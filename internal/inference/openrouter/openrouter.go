// Package openrouter talks to OpenAI compatible chat completion endpoints,
// OpenRouter by default.
package openrouter

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

const DefaultURL = "https://openrouter.ai/api/v1/chat/completions"

// maxErrorBody caps how much of a non-JSON error body ends up in messages.
const maxErrorBody = 512

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type apiError struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type Provider struct {
	apiKey string
	url    string
	client *http.Client
}

func New(apiKey, url string) *Provider {
	if url == "" {
		url = DefaultURL
	}
	return &Provider{apiKey: apiKey, url: url, client: &http.Client{}}
}

func buildMessages(req inference.Request) []message {
	if len(req.Image) == 0 {
		return []message{{Role: "user", Content: req.Prompt}}
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	return []message{{
		Role: "user",
		Content: []part{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	}}
}

func (p *Provider) Complete(ctx context.Context, req inference.Request) (string, error) {
	payload, err := json.Marshal(chatRequest{Model: req.Model, Messages: buildMessages(req)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Title", "pantrysync")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call openrouter: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close openrouter response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", &inference.ProviderError{Model: req.Model, StatusCode: resp.StatusCode, Message: parsed.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &inference.ProviderError{Model: req.Model, StatusCode: resp.StatusCode, Message: truncate(string(body))}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return contentText(parsed.Choices[0].Message.Content), nil
}

// contentText accepts both a plain string and an array of text parts.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []part
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, pt := range parts {
		if pt.Type == "text" {
			b.WriteString(pt.Text)
		}
	}
	return b.String()
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	if s == "" {
		return "empty error body"
	}
	return s
}

var _ inference.Provider = (*Provider)(nil)
