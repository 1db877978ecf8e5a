// Package claude adapts the Anthropic Messages API to inference.Provider.
package claude

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/vbonduro/pantrysync/internal/inference"
)

// maxTokens is well above a label list or a rewritten name.
const maxTokens = 1024

type Provider struct {
	client *anthropic.Client
}

// New returns a provider for apiKey. baseURL overrides the API root
// (".../v1"); empty keeps the library default.
func New(apiKey, baseURL string) *Provider {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &Provider{client: anthropic.NewClient(apiKey, opts...)}
}

func buildContent(req inference.Request) []anthropic.MessageContent {
	var content []anthropic.MessageContent
	if len(req.Image) > 0 {
		content = append(content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				normaliseMIME(req.MimeType),
				base64.StdEncoding.EncodeToString(req.Image),
			),
		))
	}
	return append(content, anthropic.NewTextMessageContent(req.Prompt))
}

func (p *Provider) Complete(ctx context.Context, req inference.Request) (string, error) {
	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: buildContent(req),
		}},
	})
	if err != nil {
		return "", classify(req.Model, err)
	}
	return resp.GetFirstContentText(), nil
}

// classify turns API error payloads into *inference.ProviderError and leaves
// everything else as a transport failure.
func classify(model string, err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return &inference.ProviderError{Model: model, Message: fmt.Sprintf("%s: %s", apiErr.Type, apiErr.Message)}
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode != 0 {
		return &inference.ProviderError{Model: model, StatusCode: reqErr.StatusCode, Message: err.Error()}
	}
	return fmt.Errorf("failed to call claude: %w", err)
}

// normaliseMIME maps MIME types to the values the Anthropic API accepts.
// Unknown types are sent as jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}

var _ inference.Provider = (*Provider)(nil)
