package domain

import (
	"context"
	"time"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	AuditLLMCall        AuditEventType = "llm_call"
	AuditToolExec       AuditEventType = "tool_exec"
	AuditActionResolved AuditEventType = "action_resolved"
	AuditActionUndo     AuditEventType = "action_undo"
	AuditAnomaly        AuditEventType = "anomaly"
	AuditAccessDenied   AuditEventType = "access_denied"
)

// AuditEvent represents a single auditable action.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Detail    map[string]string `json:"detail"`

	Actor    string `json:"actor,omitempty"`
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// AuditLogger writes audit events to a persistent log.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}
