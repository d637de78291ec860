package security

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/config"
	"wayfinder/internal/infra/tracer"
)

// RetentionPolicy bounds the audit log. Zero fields disable that bound.
type RetentionPolicy struct {
	MaxAge  time.Duration
	MaxSize int64 // bytes
}

// FileAuditLogger implements domain.AuditLogger as an append-only JSONL file.
type FileAuditLogger struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	policy RetentionPolicy
	now    func() time.Time
}

// NewFileAuditLogger opens path for appending (0600), creating parent
// directories as needed.
func NewFileAuditLogger(path string, policy RetentionPolicy) (*FileAuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileAuditLogger{file: f, path: path, policy: policy, now: time.Now}, nil
}

// Log writes event as one JSON line and mirrors it onto the active span.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return domain.NewSubSystemError("audit", "FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	a.mu.Lock()
	_, err = a.file.Write(append(data, '\n'))
	a.mu.Unlock()
	if err != nil {
		return domain.NewSubSystemError("audit", "FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := []attribute.KeyValue{
			tracer.StringAttr("audit.resource", event.Resource),
			tracer.StringAttr("audit.outcome", event.Outcome),
		}
		for k, v := range event.Detail {
			attrs = append(attrs, tracer.StringAttr("audit."+k, v))
		}
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(attrs...))
	}
	return nil
}

// Close closes the underlying file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// EnforceRetention rewrites the log keeping only entries inside the policy
// and returns how many were dropped. Writers block for the duration.
func (a *FileAuditLogger) EnforceRetention(ctx context.Context) (int, error) {
	if a.policy.MaxAge <= 0 && a.policy.MaxSize <= 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.policy.MaxAge <= 0 {
		if info, err := os.Stat(a.path); err == nil && info.Size() <= a.policy.MaxSize {
			return 0, nil
		}
	}

	raw, err := os.ReadFile(a.path)
	if err != nil {
		return 0, fmt.Errorf("read audit log: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var cutoff time.Time
	if a.policy.MaxAge > 0 {
		cutoff = a.now().Add(-a.policy.MaxAge)
	}
	kept, removed, err := retain(raw, cutoff, a.policy.MaxSize)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, kept, 0o600); err != nil {
		return 0, fmt.Errorf("write temp audit log: %w", err)
	}
	if err := a.file.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("close for retention: %w", err)
	}
	renameErr := os.Rename(tmp, a.path)
	if renameErr != nil {
		os.Remove(tmp)
	}
	// The handle must be reopened whether or not the swap succeeded.
	f, err := openAppend(a.path)
	if err != nil {
		return 0, fmt.Errorf("reopen audit log: %w", err)
	}
	a.file = f
	if renameErr != nil {
		return 0, fmt.Errorf("replace audit log: %w", renameErr)
	}
	return removed, nil
}

// retain filters JSONL entries older than cutoff, then drops the oldest
// remaining lines until the total fits maxSize. Lines without a parseable
// timestamp are kept by the age filter.
func retain(raw []byte, cutoff time.Time, maxSize int64) ([]byte, int, error) {
	var lines [][]byte
	removed := 0
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if !cutoff.IsZero() {
			var entry struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if json.Unmarshal(line, &entry) == nil && !entry.Timestamp.IsZero() && entry.Timestamp.Before(cutoff) {
				removed++
				continue
			}
		}
		lines = append(lines, bytes.Clone(line))
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan audit log: %w", err)
	}

	if maxSize > 0 {
		var total int64
		for _, l := range lines {
			total += int64(len(l)) + 1
		}
		for len(lines) > 0 && total > maxSize {
			total -= int64(len(lines[0])) + 1
			lines = lines[1:]
			removed++
		}
	}

	var out bytes.Buffer
	for _, l := range lines {
		out.Write(l)
		out.WriteByte('\n')
	}
	return out.Bytes(), removed, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

// ParseRetentionMaxSize parses a size such as "100MB" or "1gb". Empty means 0.
func ParseRetentionMaxSize(s string) (int64, error) {
	return config.ParseSize(s)
}

var _ domain.AuditLogger = (*FileAuditLogger)(nil)
