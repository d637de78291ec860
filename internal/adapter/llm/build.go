package llm

import (
	"fmt"
	"log/slog"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/config"
)

// Build wires the configured providers into a Router. Each provider gets its
// own circuit breaker when enabled, and the default provider is wrapped in
// failover when fallbacks are configured.
func Build(cfg config.LLMConfig, logger *slog.Logger) (*Router, *Registry, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		var p domain.LLMProvider = NewOpenAIProvider(pc, logger)
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, nil, fmt.Errorf("register llm provider: %w", err)
		}
	}

	if cfg.DefaultProvider == "" {
		return NewRouter(cfg.ModelRouting, reg, nil), reg, nil
	}
	def, err := reg.Get(cfg.DefaultProvider)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Failover.Enabled && len(cfg.Failover.Fallbacks) > 0 {
		fallbacks := make([]domain.LLMProvider, 0, len(cfg.Failover.Fallbacks))
		for _, name := range cfg.Failover.Fallbacks {
			fb, err := reg.Get(name)
			if err != nil {
				return nil, nil, err
			}
			fallbacks = append(fallbacks, fb)
		}
		def = NewFailoverProvider(def, fallbacks, logger)
	}
	return NewRouter(cfg.ModelRouting, reg, def), reg, nil
}
