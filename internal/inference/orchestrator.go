package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vbonduro/pantrysync/internal/metrics"
)

// LabelPrompt asks a vision model for a JSON label list.
const LabelPrompt = `Identify the main food or grocery item in this photo.
Respond with a single JSON object and nothing else, in this shape:
{"primary": "<most likely item>", "labels": [{"name": "<item>", "confidence": <0..1>}]}
List at most 5 labels, most likely first. Use short common names.`

// RewritePrompt asks a text model to clean up a free-text item name.
const RewritePrompt = `Rewrite the following pantry entry as a short, clean product name.
Fix spelling, drop brand noise and quantities, keep it under 6 words.
Reply with the rewritten name only.

Entry: `

type Orchestrator struct {
	provider Provider
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	labels   *labelCache
}

// New builds an orchestrator. timeout bounds each candidate attempt; zero
// leaves attempts bounded only by the caller's context.
func New(provider Provider, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{provider: provider, timeout: timeout, metrics: m, logger: logger}
}

// WithLabelCache keeps up to size successful Label results for ttl. A
// non-positive size disables caching.
func (o *Orchestrator) WithLabelCache(size int, ttl time.Duration) *Orchestrator {
	o.labels = newLabelCache(size, ttl)
	return o
}

// Label asks each candidate in turn to label image until one returns a valid
// result. It returns nil, nil when candidates is empty.
func (o *Orchestrator) Label(ctx context.Context, image []byte, mimeType string, candidates []string, maxAttempts int) (*LabelResult, error) {
	key := labelCacheKey(image, candidates)
	if cached, ok := o.labels.get(key); ok {
		o.logger.Debug("label cache hit")
		return cached, nil
	}
	result, err := infer(ctx, o, candidates, maxAttempts,
		func(model string) Request {
			return Request{Model: model, Prompt: LabelPrompt, Image: image, MimeType: mimeType}
		},
		func(model, text string) Outcome[*LabelResult] {
			return ParseLabels(model, text)
		},
	)
	if err == nil {
		o.labels.add(key, result)
	}
	return result, err
}

// Rewrite asks each candidate in turn to rewrite text. It returns "" when
// candidates is empty.
func (o *Orchestrator) Rewrite(ctx context.Context, text string, candidates []string, maxAttempts int) (string, error) {
	return infer(ctx, o, candidates, maxAttempts,
		func(model string) Request {
			return Request{Model: model, Prompt: RewritePrompt + text}
		},
		func(model, raw string) Outcome[string] {
			cleaned := CleanRewrite(raw)
			if cleaned == "" {
				return failure[string](OutcomeEmptyResponse, &ParseError{Model: model, Raw: raw, Err: errors.New("nothing left after cleanup")})
			}
			return success(cleaned)
		},
	)
}

func infer[T any](
	ctx context.Context,
	o *Orchestrator,
	candidates []string,
	maxAttempts int,
	build func(model string) Request,
	parse func(model, text string) Outcome[T],
) (T, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, nil
	}

	limit := len(candidates)
	if maxAttempts > 0 && maxAttempts < limit {
		limit = maxAttempts
	}

	var (
		lastErr  error
		attempts int
	)
	for _, model := range candidates[:limit] {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("inference cancelled after %d attempts: %w", attempts, err)
		}
		attempts++

		start := time.Now()
		outcome := attempt(ctx, o, model, build(model), parse)
		elapsed := time.Since(start)
		o.metrics.InferenceAttempt(outcome.Kind.String(), elapsed)

		if outcome.Kind == OutcomeSuccess {
			o.logger.Info("inference succeeded", "model", model, "attempt", attempts, "duration_ms", elapsed.Milliseconds())
			return outcome.Value, nil
		}

		o.logger.Warn("inference candidate failed",
			"model", model,
			"attempt", attempts,
			"outcome", outcome.Kind.String(),
			"error", outcome.Err,
		)
		lastErr = outcome.Err
	}

	return zero, &ExhaustedError{Attempts: attempts, Last: lastErr}
}

func attempt[T any](
	ctx context.Context,
	o *Orchestrator,
	model string,
	req Request,
	parse func(model, text string) Outcome[T],
) Outcome[T] {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	text, err := o.provider.Complete(ctx, req)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return failure[T](OutcomeProviderError, err)
		}
		return failure[T](OutcomeTransportFailure, fmt.Errorf("request to %s failed: %w", model, err))
	}
	if strings.TrimSpace(text) == "" {
		return failure[T](OutcomeEmptyResponse, &ParseError{Model: model, Err: errors.New("empty response")})
	}
	return parse(model, text)
}
