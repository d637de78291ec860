package agents

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"wayfinder/internal/domain"
)

type memAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (m *memAudit) Log(_ context.Context, e domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memAudit) Close() error { return nil }

func anomaliesOf(out *domain.AgentOutput) []string {
	a, _ := out.Data[DataAnomalies].([]string)
	return a
}

func TestWatchdogClean(t *testing.T) {
	w := NewWatchdog(DefaultWatchdogConfig(), nil, discardLogger())
	out, err := w.Process(context.Background(), domain.AgentContext{Location: "https://docs.example.com/start"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.NextKind() != domain.NextContinue || len(anomaliesOf(out)) != 0 {
		t.Errorf("got next=%s anomalies=%v", out.NextKind(), anomaliesOf(out))
	}
}

func TestWatchdogAnomalies(t *testing.T) {
	tests := []struct {
		name    string
		actx    domain.AgentContext
		contain string
	}{
		{"javascript scheme", domain.AgentContext{Location: "javascript:alert(1)"}, "dangerous scheme"},
		{"private ip", domain.AgentContext{Location: "http://192.168.1.1/admin"}, "private network"},
		{"public ip", domain.AgentContext{Location: "https://8.8.8.8/"}, "raw IP"},
		{"suspicious tld", domain.AgentContext{Location: "https://login-bank.zip/"}, "top-level domain"},
		{"punycode", domain.AgentContext{Location: "https://xn--pple-43d.com/"}, "punycode"},
		{"plain http credentials", domain.AgentContext{Location: "http://shop.example.com/login", PageContent: "Enter your Password"}, "plain http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := &memAudit{}
			w := NewWatchdog(DefaultWatchdogConfig(), audit, discardLogger())

			out, err := w.Process(context.Background(), tt.actx)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if out.NextKind() != domain.NextStop {
				t.Errorf("next = %s, want stop", out.NextKind())
			}
			joined := strings.Join(anomaliesOf(out), "; ")
			if !strings.Contains(joined, tt.contain) {
				t.Errorf("anomalies %q do not mention %q", joined, tt.contain)
			}
			if len(audit.events) != 1 || audit.events[0].Type != domain.AuditAnomaly {
				t.Errorf("audit events = %+v", audit.events)
			}
		})
	}
}

func TestWatchdogNavigationRate(t *testing.T) {
	w := NewWatchdog(WatchdogConfig{MaxNavigationsPerMinute: 3}, nil, discardLogger())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	visit := func(loc string) *domain.AgentOutput {
		t.Helper()
		out, err := w.Process(context.Background(), domain.AgentContext{Location: loc})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		return out
	}

	for i, loc := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		if out := visit(loc); out.NextKind() != domain.NextContinue {
			t.Fatalf("visit %d flagged early: %v", i, anomaliesOf(out))
		}
	}
	// Staying on the same page is not a navigation.
	if out := visit("https://c.example"); out.NextKind() != domain.NextContinue {
		t.Fatal("repeated location counted as navigation")
	}
	if out := visit("https://d.example"); out.NextKind() != domain.NextStop {
		t.Fatal("fourth navigation within a minute was not flagged")
	}

	now = now.Add(2 * time.Minute)
	if out := visit("https://e.example"); out.NextKind() != domain.NextContinue {
		t.Errorf("old navigations should age out: %v", anomaliesOf(out))
	}

	w.Reset()
	if len(w.navTimes) != 0 || w.lastLoc != "" {
		t.Error("Reset did not clear history")
	}
}
