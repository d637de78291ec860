package agents

import (
	"log/slog"
	"sort"
	"sync"

	"wayfinder/internal/domain"
)

// Registry holds the agents available to workflows, keyed by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]domain.Agent),
		logger: logger,
	}
}

// Register adds an agent. Returns ErrDuplicate if the name is taken.
func (r *Registry) Register(a domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.agents[name]; exists {
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrDuplicate, name)
	}
	r.agents[name] = a
	r.logger.Info("agent registered", "agent", name)
	return nil
}

// Get returns the named agent, or ErrNotFound.
func (r *Registry) Get(name string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, domain.NewSubSystemError("agent", "Registry.Get", domain.ErrNotFound, name)
	}
	return a, nil
}

// Resolve looks up several agents at once, failing on the first unknown name.
func (r *Registry) Resolve(names ...string) ([]domain.Agent, error) {
	out := make([]domain.Agent, 0, len(names))
	for _, n := range names {
		a, err := r.Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List returns the registered agents sorted by name.
func (r *Registry) List() []domain.Agent {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Agent, 0, len(names))
	for _, n := range names {
		if a, ok := r.agents[n]; ok {
			out = append(out, a)
		}
	}
	return out
}

// ResetAll clears the internal state of every agent.
func (r *Registry) ResetAll() {
	for _, a := range r.List() {
		a.Reset()
	}
}

// Capabilities is the slice of the capability server the agents use.
type Capabilities interface {
	ToolLister
	PromptRenderer
}

// Deps are the collaborators the built-in agents need. Nil LLM or Tools
// leave the agents that depend on them in their degraded modes.
type Deps struct {
	LLM    domain.LLMProvider
	Tools  Capabilities
	Audit  domain.AuditLogger
	Logger *slog.Logger

	Observer           ObserverConfig
	VerifierPatterns   []string
	CriticThreshold    float64
	GuardrailBlocklist []string
	// GuardrailUseLLM lets the guardrail ask the model about text the
	// blocklist lets through.
	GuardrailUseLLM bool
	Watchdog           WatchdogConfig
}

// RegisterBuiltins registers every built-in agent into r.
func RegisterBuiltins(r *Registry, deps Deps) error {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		lister  ToolLister
		prompts PromptRenderer
	)
	if deps.Tools != nil {
		lister, prompts = deps.Tools, deps.Tools
	}

	var guardLLM domain.LLMProvider
	if deps.GuardrailUseLLM {
		guardLLM = deps.LLM
	}

	builtins := []domain.Agent{
		NewObserver(deps.Observer),
		NewVerifier(deps.VerifierPatterns, logger),
		NewNarrator(deps.LLM, prompts),
		NewPlanner(deps.LLM, logger),
		NewCritic(deps.LLM, deps.CriticThreshold, logger),
		NewGuardrail(deps.GuardrailBlocklist, guardLLM, logger),
		NewWatchdog(deps.Watchdog, deps.Audit, logger),
		NewOperator(deps.LLM, lister, logger),
	}
	for _, a := range builtins {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
