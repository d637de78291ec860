package llm

import (
	"context"
	"fmt"

	"wayfinder/internal/domain"
)

// Router is the language-model router agents talk to. It picks a provider
// per request from ChatRequest.Purpose ("vision", "fast", "reasoning") and
// falls back to the default provider for unmapped purposes.
type Router struct {
	mapping  map[string]string // purpose -> provider name
	registry *Registry
	fallback domain.LLMProvider
}

// NewRouter creates a router from a purpose mapping and a provider registry.
func NewRouter(mapping map[string]string, registry *Registry, fallback domain.LLMProvider) *Router {
	return &Router{mapping: mapping, registry: registry, fallback: fallback}
}

// Route resolves a purpose to a provider.
func (r *Router) Route(purpose string) (domain.LLMProvider, error) {
	name, ok := r.mapping[purpose]
	if purpose == "" || !ok || name == "" || name == "default" {
		if r.fallback == nil {
			return nil, domain.NewDomainError("Router.Route", domain.ErrProviderNotFound, "no default provider")
		}
		return r.fallback, nil
	}

	provider, err := r.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("purpose %q: %w", purpose, err)
	}
	return provider, nil
}

// Chat implements domain.LLMProvider.
func (r *Router) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p, err := r.Route(req.Purpose)
	if err != nil {
		return nil, err
	}
	return p.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (r *Router) Name() string { return "router" }

var _ domain.LLMProvider = (*Router)(nil)
