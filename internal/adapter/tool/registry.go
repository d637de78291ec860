package tool

import (
	"fmt"

	"wayfinder/internal/domain"
)

// Registrar is the registration surface of the capability server.
type Registrar interface {
	RegisterTool(t domain.Tool) error
	RegisterResource(r domain.Resource) error
}

// Provider groups the tools and resources of one backing system.
type Provider interface {
	Tools() []domain.Tool
}

// ResourceProvider is a Provider that also exposes resources.
type ResourceProvider interface {
	Provider
	Resources() []domain.Resource
}

// Register adds every tool and resource of each provider to r and returns
// the number of tools registered.
func Register(r Registrar, providers ...Provider) (int, error) {
	n := 0
	for _, p := range providers {
		for _, t := range p.Tools() {
			if err := r.RegisterTool(t); err != nil {
				return n, fmt.Errorf("register tool %s: %w", t.Descriptor().Name, err)
			}
			n++
		}
		rp, ok := p.(ResourceProvider)
		if !ok {
			continue
		}
		for _, res := range rp.Resources() {
			if err := r.RegisterResource(res); err != nil {
				return n, fmt.Errorf("register resource %s: %w", res.Descriptor().URI, err)
			}
		}
	}
	return n, nil
}

// Single adapts one tool to a Provider.
type Single struct{ domain.Tool }

// Tools implements Provider.
func (s Single) Tools() []domain.Tool { return []domain.Tool{s.Tool} }
