package domain

import (
	"context"
	"time"
)

// Run statuses recorded for workflow invocations.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// WorkflowRun records one workflow invocation.
type WorkflowRun struct {
	ID         string        `json:"id"`
	Workflow   string        `json:"workflow"`
	Trigger    string        `json:"trigger"`
	Status     string        `json:"status"`
	Outputs    []AgentOutput `json:"outputs,omitempty"`
	Proximity  float64       `json:"proximity"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}

// Finished reports whether the run reached a final status.
func (r WorkflowRun) Finished() bool {
	return r.Status == RunCompleted || r.Status == RunFailed || r.Status == RunCancelled
}

// WorkflowStore keeps a capped history of workflow runs.
type WorkflowStore interface {
	SaveRun(ctx context.Context, run WorkflowRun) error
	GetRun(ctx context.Context, id string) (*WorkflowRun, error)
	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]WorkflowRun, error)
	DeleteRun(ctx context.Context, id string) error
}
