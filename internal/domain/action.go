package domain

import (
	"encoding/json"
	"time"
)

// RiskLevel gates whether a proposed action may run without confirmation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders risk levels; unknown values rank as high.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	default:
		return 2
	}
}

// Max returns the riskier of r and other. The result is always one of the
// three canonical levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	switch max(r.Rank(), other.Rank()) {
	case 0:
		return RiskLow
	case 1:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ParseRiskLevel maps a string onto a RiskLevel. Unknown input is high.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium:
		return RiskLevel(s)
	default:
		return RiskHigh
	}
}

// ActionStatus is the lifecycle state of a PendingAction.
type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApproved ActionStatus = "approved"
	StatusDenied   ActionStatus = "denied"
	StatusExpired  ActionStatus = "expired"
	StatusExecuted ActionStatus = "executed"
	StatusFailed   ActionStatus = "failed"
)

var statusTransitions = map[ActionStatus][]ActionStatus{
	StatusPending:  {StatusApproved, StatusDenied, StatusExpired},
	StatusApproved: {StatusExecuted, StatusFailed},
}

// CanTransition reports whether moving from s to next is allowed.
// Nothing ever transitions back into pending.
func (s ActionStatus) CanTransition(next ActionStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsResolved reports whether s is a status with no further transitions.
func (s ActionStatus) IsResolved() bool {
	return len(statusTransitions[s]) == 0
}

// PendingAction is an action awaiting (or having passed) the approval gate.
type PendingAction struct {
	ID          uint64          `json:"id"`
	ActionType  string          `json:"action_type"`
	Description string          `json:"description"`
	Target      string          `json:"target"`
	RiskLevel   RiskLevel       `json:"risk_level"`
	Status      ActionStatus    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Reason      string          `json:"reason,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	Source      string          `json:"source,omitempty"`
	Reversible  bool            `json:"reversible,omitempty"`
}

// ActionProposal is what an agent, skill or tool emits when it wants a side effect.
type ActionProposal struct {
	ActionType  string          `json:"action_type"`
	Description string          `json:"description"`
	Target      string          `json:"target,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	// RiskHint may raise the classified risk, never lower it.
	RiskHint RiskLevel `json:"risk_hint,omitempty"`
	// AutoExecute asks for immediate execution. Ignored for high risk.
	AutoExecute bool   `json:"auto_execute,omitempty"`
	Source      string `json:"source,omitempty"`
}

// LedgerEntry is an immutable record of a resolution event.
type LedgerEntry struct {
	PendingAction
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
	Error      string    `json:"error,omitempty"`
}

// UndoEntry holds the inverse of an executed reversible action.
type UndoEntry struct {
	ID          string      `json:"id"`
	ActionID    uint64      `json:"action_id"`
	ActionType  string      `json:"action_type"`
	Description string      `json:"description"`
	Inverse     ToolRequest `json:"inverse"`
	CreatedAt   time.Time   `json:"created_at"`
}
