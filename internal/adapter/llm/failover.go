package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wayfinder/internal/domain"
)

// FailoverProvider tries a primary provider, then each fallback in order.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{primary: primary, fallbacks: fallbacks, logger: logger}
}

// Chat returns the first successful response. Cancellation stops the chain
// immediately. When every provider fails the joined error still matches
// domain.ErrCircuitOpen if any breaker was open, so callers can back off.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var errs []error
	for i, p := range append([]domain.LLMProvider{f.primary}, f.fallbacks...) {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover succeeded", "provider", p.Name())
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn("llm provider failed", "provider", p.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Name returns a composite name.
func (f *FailoverProvider) Name() string {
	return f.primary.Name() + "+failover"
}

var _ domain.LLMProvider = (*FailoverProvider)(nil)
