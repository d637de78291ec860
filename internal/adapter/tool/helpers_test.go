package tool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"wayfinder/internal/domain"
	"wayfinder/internal/security"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSandbox(t *testing.T) *security.Sandbox {
	t.Helper()
	sb, err := security.NewSandbox(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return sb
}

func toolByName(t *testing.T, tools []domain.Tool, name string) domain.Tool {
	t.Helper()
	for _, tl := range tools {
		if tl.Descriptor().Name == name {
			return tl
		}
	}
	t.Fatalf("tool %q not found", name)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                 { return func() {} }
func (b *recordingBus) Close()                                                   {}
