package action

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"wayfinder/internal/domain"
)

type mapDescriber map[string]domain.ToolDescriptor

func (m mapDescriber) Describe(name string) (domain.ToolDescriptor, bool) {
	d, ok := m[name]
	return d, ok
}

var testTools = mapDescriber{
	"browser_highlight": {Name: "browser_highlight", Category: domain.CategoryCosmetic, IsSideEffect: true},
	"browser_navigate":  {Name: "browser_navigate", Category: domain.CategoryNavigation, IsSideEffect: true, Reversible: true},
	"browser_submit":    {Name: "browser_submit_form", Category: domain.CategoryForm, IsSideEffect: true},
	"shell_exec":        {Name: "shell_exec", Category: domain.CategoryShell, IsSideEffect: true},
	"fs_read":           {Name: "fs_read", Category: domain.CategoryRead},
}

type mockRunner struct {
	mu        sync.Mutex
	invoked   []domain.ToolRequest
	invokeFn  func(ctx context.Context, req domain.ToolRequest) (*domain.ToolResponse, error)
	inverseFn func(ctx context.Context, req domain.ToolRequest) (*domain.ToolRequest, error)
}

func (m *mockRunner) InvokeTool(ctx context.Context, req domain.ToolRequest) (*domain.ToolResponse, error) {
	m.mu.Lock()
	m.invoked = append(m.invoked, req)
	m.mu.Unlock()
	if m.invokeFn != nil {
		return m.invokeFn(ctx, req)
	}
	return &domain.ToolResponse{RequestID: req.RequestID, Success: true}, nil
}

func (m *mockRunner) Inverse(ctx context.Context, req domain.ToolRequest) (*domain.ToolRequest, error) {
	if m.inverseFn != nil {
		return m.inverseFn(ctx, req)
	}
	return &domain.ToolRequest{ToolName: req.ToolName, Arguments: json.RawMessage(`{"url":"https://previous.example"}`)}, nil
}

func (m *mockRunner) calls() []domain.ToolRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ToolRequest(nil), m.invoked...)
}

type memAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *memAudit) Log(_ context.Context, e domain.AuditEvent) error {
	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()
	return nil
}
func (a *memAudit) Close() error { return nil }

type fixture struct {
	queue  *Queue
	runner *mockRunner
	audit  *memAudit
	clock  *time.Time
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(autonomy Autonomy) *fixture {
	runner := &mockRunner{}
	audit := &memAudit{}
	policy := NewPolicy(PolicyConfig{
		Autonomy:     autonomy,
		KnownDomains: []string{"docs.example.com", "wikipedia.org"},
	}, testTools)
	q := NewQueue(QueueConfig{TTL: time.Minute}, policy, NewLedger(100, nil, discardLogger()), NewUndoStack(5),
		runner, nil, audit, discardLogger())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{queue: q, runner: runner, audit: audit, clock: &now}
	q.now = func() time.Time { return *f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }
