package main

import (
	"fmt"
	"log/slog"
	"slices"

	"wayfinder/internal/adapter/llm"
	"wayfinder/internal/domain"
	"wayfinder/internal/infra/config"
	"wayfinder/internal/infra/logger"
	"wayfinder/internal/usecase/agents"
	"wayfinder/internal/usecase/capability"
	"wayfinder/internal/usecase/workflow"
)

// Built-in workflow names referenced by workflow.triggers.
const (
	workflowPlanning   = "planning"
	workflowBackground = "background"
	workflowNarrate    = "narrate"
	workflowAssist     = "assist"
)

// initLLM builds the provider router. With no providers configured the
// agents run in their model-free modes and nil is returned.
func initLLM(cfg *config.Config, log *slog.Logger) (domain.LLMProvider, error) {
	if len(cfg.LLM.Providers) == 0 {
		log.Warn("no llm providers configured, agents run without a language model")
		return nil, nil
	}
	router, reg, err := llm.Build(cfg.LLM, logger.Component(log, "llm"))
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	log.Info("llm providers ready", "providers", reg.Names(), "default", cfg.LLM.DefaultProvider)
	return router, nil
}

// initAgents registers the built-in agents and composes the workflows
// the dispatcher routes triggers to.
func initAgents(cfg *config.Config, provider domain.LLMProvider, caps *capability.Server, audit domain.AuditLogger, log *slog.Logger) (*agents.Registry, []workflow.Workflow, error) {
	agentLog := logger.Component(log, "agents")
	reg := agents.NewRegistry(agentLog)
	ac := cfg.Agents
	if err := agents.RegisterBuiltins(reg, agents.Deps{
		LLM:    provider,
		Tools:  caps,
		Audit:  audit,
		Logger: agentLog,
		Observer: agents.ObserverConfig{
			ContentWeight: ac.Observer.KeywordWeight,
			TitleWeight:   ac.Observer.TitleWeight,
			URLWeight:     ac.Observer.URLWeight,
			Decay:         ac.Observer.Decay,
		},
		VerifierPatterns:   ac.Verifier.Patterns,
		CriticThreshold:    ac.Critic.Threshold,
		GuardrailBlocklist: ac.Guardrail.Blocklist,
		GuardrailUseLLM:    ac.Guardrail.UseLLM,
		Watchdog: agents.WatchdogConfig{
			MaxNavigationsPerMinute: ac.Watchdog.MaxNavigationsPerMinute,
			SuspiciousTLDs:          ac.Watchdog.SuspiciousTLDs,
		},
	}); err != nil {
		return nil, nil, err
	}

	enabled := func(name string) domain.Agent {
		if len(ac.Enabled) > 0 && !slices.Contains(ac.Enabled, name) {
			return nil
		}
		a, err := reg.Get(name)
		if err != nil {
			return nil
		}
		return a
	}

	wfLog := logger.Component(log, "workflow")
	var wfs []workflow.Workflow

	observer, verifier, narrator := enabled(agents.NameObserver), enabled(agents.NameVerifier), enabled(agents.NameNarrator)
	if planner, ok := enabled(agents.NamePlanner).(workflow.StrategyPlanner); ok && observer != nil && verifier != nil {
		wfs = append(wfs, workflow.NewPlanning(workflowPlanning, planner, observer, verifier, narrator, wfLog))
	}

	var background []domain.Agent
	for _, name := range []string{agents.NameObserver, agents.NameWatchdog, agents.NameVerifier, agents.NameGuardrail} {
		if a := enabled(name); a != nil {
			background = append(background, a)
		}
	}
	if len(background) > 0 {
		wfs = append(wfs, workflow.NewParallel(workflowBackground, cfg.Workflow.Parallel.MaxConcurrency, wfLog, background...))
	}

	if critic, ok := enabled(agents.NameCritic).(workflow.Evaluator); ok && narrator != nil {
		wfs = append(wfs, workflow.NewReflection(workflowNarrate, narrator, critic, workflow.ReflectionConfig{
			MaxIterations: cfg.Workflow.Reflection.MaxIterations,
			Delay:         cfg.Workflow.Reflection.Delay,
		}, wfLog))
	} else if narrator != nil {
		wfs = append(wfs, workflow.NewSequential(workflowNarrate, false, wfLog, narrator))
	}

	if operator := enabled(agents.NameOperator); operator != nil {
		lc := cfg.Workflow.Loop
		wfs = append(wfs, workflow.NewLoop(workflowAssist, operator, workflow.LoopConfig{
			MaxIterations:       lc.MaxIterations,
			Delay:               lc.Delay,
			StagnationThreshold: lc.StagnationThreshold,
			ProgressEpsilon:     lc.ProgressEpsilon,
			CircuitCooldown:     lc.CircuitCooldown,
			MaxCooldowns:        lc.MaxCooldowns,
		}, wfLog, workflow.WithModifier(workflow.AdaptStrategy)))
	}

	names := make([]string, 0, len(wfs))
	for _, wf := range wfs {
		names = append(names, wf.Name())
	}
	log.Info("agents ready", "agents", reg.Names(), "workflows", names)
	return reg, wfs, nil
}
