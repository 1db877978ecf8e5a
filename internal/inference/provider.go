// Package inference asks a ranked list of model endpoints to label an image
// or rewrite text, falling through to the next candidate on any failure.
package inference

import (
	"context"
	"fmt"
)

// Request is a single call to one model.
type Request struct {
	Model    string
	Prompt   string
	Image    []byte
	MimeType string
}

// Provider sends a request to one backend and returns the model's text.
// An explicit error payload from the service is returned as *ProviderError;
// any other error is treated as a transport failure.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type ProviderError struct {
	Model      string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error from %s (status %d): %s", e.Model, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error from %s: %s", e.Model, e.Message)
}

// ParseError reports a response that carried text but no usable result.
type ParseError struct {
	Model string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response from %s: %v", e.Model, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExhaustedError is returned once every permitted candidate has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d inference candidates failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Label is one detected object. Confidence is nil when the model gave none.
type Label struct {
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type LabelResult struct {
	Primary string  `json:"primary"`
	Labels  []Label `json:"labels"`
}
