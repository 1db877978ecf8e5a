package inference

import (
	"context"
	"strings"
)

// Router dispatches a request to a backend chosen by the model id prefix,
// e.g. "claude:claude-3-5-haiku-latest" or "ollama:moondream". The prefix is
// stripped before the backend sees the model. Ids without a registered
// prefix go to the fallback backend.
type Router struct {
	fallback Provider
	routes   map[string]Provider
}

func NewRouter(fallback Provider) *Router {
	return &Router{fallback: fallback, routes: make(map[string]Provider)}
}

// Handle registers p for model ids starting with prefix + ":".
func (r *Router) Handle(prefix string, p Provider) *Router {
	r.routes[prefix] = p
	return r
}

func (r *Router) Complete(ctx context.Context, req Request) (string, error) {
	if prefix, model, ok := strings.Cut(req.Model, ":"); ok {
		if p, found := r.routes[prefix]; found {
			if p == nil {
				return "", &ProviderError{Model: req.Model, Message: "backend " + prefix + " is not configured"}
			}
			req.Model = model
			return p.Complete(ctx, req)
		}
	}
	if r.fallback == nil {
		return "", &ProviderError{Model: req.Model, Message: "no default backend configured"}
	}
	return r.fallback.Complete(ctx, req)
}

var _ Provider = (*Router)(nil)
