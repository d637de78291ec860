package security

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"wayfinder/internal/domain"
)

func readAudit(t *testing.T, path string) []domain.AuditEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var out []domain.AuditEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev domain.AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("unmarshal %q: %v", sc.Text(), err)
		}
		out = append(out, ev)
	}
	return out
}

func TestFileAuditLoggerWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	al, err := NewFileAuditLogger(path, RetentionPolicy{})
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}

	events := []domain.AuditEvent{
		{Type: domain.AuditActionResolved, Resource: "browser_navigate", Outcome: "approved", Detail: map[string]string{"action_id": "a1"}},
		{Type: domain.AuditToolExec, Resource: "fs_write", Outcome: "success"},
	}
	for _, ev := range events {
		if err := al.Log(context.Background(), ev); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	if err := al.Close(); err != nil {
		t.Fatal(err)
	}

	got := readAudit(t, path)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Detail["action_id"] != "a1" || got[1].Resource != "fs_write" {
		t.Errorf("unexpected events: %+v", got)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}

func TestFileAuditLoggerConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	al, err := NewFileAuditLogger(path, RetentionPolicy{})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			al.Log(context.Background(), domain.AuditEvent{Type: domain.AuditToolExec, Resource: fmt.Sprintf("tool-%d", i)})
		}()
	}
	wg.Wait()
	al.Close()

	if got := readAudit(t, path); len(got) != 50 {
		t.Errorf("got %d lines, want 50", len(got))
	}
}

func TestFileAuditLoggerWriteAfterClose(t *testing.T) {
	al, err := NewFileAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"), RetentionPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	al.Close()

	err = al.Log(context.Background(), domain.AuditEvent{Type: domain.AuditAnomaly})
	if err == nil || domain.ErrorCodeOf(err) != domain.CodeAuditWrite {
		t.Errorf("expected audit write error, got %v", err)
	}
}

func TestFileAuditLoggerSpanEvent(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	al, err := NewFileAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"), RetentionPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	defer al.Close()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	al.Log(ctx, domain.AuditEvent{Type: domain.AuditActionUndo, Resource: "fs_write", Detail: map[string]string{"entry": "u1"}})
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("got %d spans", len(ended))
	}
	evs := ended[0].Events()
	if len(evs) != 1 || evs[0].Name != "audit.action_undo" {
		t.Fatalf("span events = %+v", evs)
	}
}

func writeLines(t *testing.T, al *FileAuditLogger, stamps ...time.Time) {
	t.Helper()
	for i, ts := range stamps {
		if err := al.Log(context.Background(), domain.AuditEvent{Timestamp: ts, Type: domain.AuditToolExec, Resource: fmt.Sprintf("r%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEnforceRetentionMaxAge(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	al, err := NewFileAuditLogger(path, RetentionPolicy{MaxAge: 24 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	al.now = func() time.Time { return now }
	writeLines(t, al, now.Add(-72*time.Hour), now.Add(-48*time.Hour), now.Add(-time.Hour))

	removed, err := al.EnforceRetention(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	// The logger still appends after the swap.
	writeLines(t, al, now)
	al.Close()
	got := readAudit(t, path)
	if len(got) != 2 || got[0].Resource != "r2" || got[1].Resource != "r0" {
		t.Errorf("remaining = %+v", got)
	}
}

func TestEnforceRetentionMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	al, err := NewFileAuditLogger(path, RetentionPolicy{MaxSize: 300})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	for range 10 {
		writeLines(t, al, now)
	}

	removed, err := al.EnforceRetention(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if removed == 0 {
		t.Fatal("expected entries to be trimmed")
	}
	al.Close()
	info, _ := os.Stat(path)
	if info.Size() > 300 {
		t.Errorf("size %d exceeds policy", info.Size())
	}
}

func TestEnforceRetentionNoPolicy(t *testing.T) {
	al, err := NewFileAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"), RetentionPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	defer al.Close()
	if removed, err := al.EnforceRetention(context.Background()); removed != 0 || err != nil {
		t.Errorf("got %d, %v", removed, err)
	}
}

func TestParseRetentionMaxSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"512", 512, false},
		{"10KB", 10 << 10, false},
		{"50mb", 50 << 20, false},
		{" 2 GB ", 2 << 30, false},
		{"100B", 100, false},
		{"lots", 0, true},
		{"-5MB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRetentionMaxSize(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRetentionMaxSize(%q) = %d, %v", tt.in, got, err)
		}
	}
}
