package agents

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"wayfinder/internal/domain"
)

type mockProvider struct {
	mu       sync.Mutex
	requests []domain.ChatRequest
	chatFunc func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.chatFunc(ctx, req)
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) last() domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// replying returns a provider that always answers with content.
func replying(content string) *mockProvider {
	return &mockProvider{chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: content}}, nil
	}}
}

// failing returns a provider that always fails with err.
func failing(err error) *mockProvider {
	return &mockProvider{chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, err
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func goalCtx(desc string, keywords ...string) domain.AgentContext {
	return domain.AgentContext{
		Location: "https://example.com/",
		Goal:     &domain.Goal{ID: "g1", Description: desc, Keywords: keywords},
	}
}
