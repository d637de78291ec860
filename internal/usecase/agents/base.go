// Package agents holds the built-in decision units. Each one implements
// domain.Agent and returns data for its workflow to fold back into the
// shared context; none of them mutates the context it is given.
package agents

import (
	"context"
	"errors"

	"wayfinder/internal/domain"
)

// Built-in agent names.
const (
	NameObserver  = "observer"
	NameVerifier  = "verifier"
	NameNarrator  = "narrator"
	NamePlanner   = "planner"
	NameCritic    = "critic"
	NameGuardrail = "guardrail"
	NameWatchdog  = "watchdog"
	NameOperator  = "operator"
)

// Metadata keys read by the built-in agents.
const (
	// MetaCandidate holds text awaiting evaluation by the critic or guardrail.
	MetaCandidate = "candidate"
	// MetaCommand holds the latest user command.
	MetaCommand = "command"
	// MetaFeedback holds critic feedback for a generator's next attempt.
	MetaFeedback = "feedback"
	// MetaCelebrate asks the narrator for a celebratory line.
	MetaCelebrate = "celebrate"
	// MetaWantHint asks the narrator to reveal the next hint.
	MetaWantHint = "want_hint"
)

// Base carries the identity shared by every agent and the default
// CanHandle and Reset behavior.
type Base struct {
	name        string
	description string
}

// NewBase creates a Base.
func NewBase(name, description string) Base {
	return Base{name: name, description: description}
}

func (b Base) Name() string        { return b.name }
func (b Base) Description() string { return b.description }

// CanHandle accepts every context.
func (b Base) CanHandle(domain.AgentContext) bool { return true }

// Reset is a no-op for stateless agents.
func (b Base) Reset() {}

// serviceError classifies a dependency failure for agent name. Context
// cancellation and deadlines keep their own kinds so workflows can tell a
// user abort from an outage.
func serviceError(name string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return domain.Cancelled(name)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return domain.NewAgentError(name, domain.ErrAgentTimeout, "", err)
	default:
		return domain.NewAgentError(name, domain.ErrService, "", err)
	}
}

func processingError(name, detail string, err error) error {
	return domain.NewAgentError(name, domain.ErrProcessing, detail, err)
}

func configError(name, detail string, err error) error {
	return domain.NewAgentError(name, domain.ErrConfig, detail, err)
}
