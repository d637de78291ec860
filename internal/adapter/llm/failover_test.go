package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"wayfinder/internal/domain"
)

func TestFailoverPrimarySuccess(t *testing.T) {
	primary := &mockProvider{name: "primary"}
	fallback := failingProvider("fallback", errors.New("unused"))

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, discard())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "ok from primary" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if fallback.calls.Load() != 0 {
		t.Error("fallback should not be called")
	}
}

func TestFailoverFallsBack(t *testing.T) {
	primary := failingProvider("primary", errors.New("primary down"))
	second := failingProvider("second", errors.New("second down"))
	third := &mockProvider{name: "third"}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{second, third}, discard())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "ok from third" {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestFailoverAllFailKeepsCircuitOpen(t *testing.T) {
	primary := failingProvider("primary", fmt.Errorf("primary: %w", domain.ErrCircuitOpen))
	fallback := failingProvider("fallback", errors.New("fallback down"))

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, discard())
	_, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "fallback down") {
		t.Errorf("error should mention every provider: %v", err)
	}
	if !domain.IsTransient(err) {
		t.Error("joined error should still report the open circuit")
	}
}

func TestFailoverStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &mockProvider{name: "primary", chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		cancel()
		return nil, context.Canceled
	}}
	fallback := &mockProvider{name: "fallback"}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, discard())
	if _, err := fp.Chat(ctx, domain.ChatRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if fallback.calls.Load() != 0 {
		t.Error("fallback called after cancellation")
	}
}

func TestFailoverName(t *testing.T) {
	fp := NewFailoverProvider(&mockProvider{name: "openai"}, nil, discard())
	if fp.Name() != "openai+failover" {
		t.Errorf("Name() = %q", fp.Name())
	}
}
