package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateAgents(cfg, ve)
	validateWorkflow(cfg, ve)
	validateActions(cfg, ve)
	validateCapabilities(cfg, ve)
	validateScheduler(cfg, ve)
	validateSecurity(cfg, ve)
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLLM(cfg *Config, ve *ValidationError) {
	names := make(map[string]bool, len(cfg.LLM.Providers))
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if names[p.Name] {
			ve.Add("llm.providers[%d].name %q is duplicated", i, p.Name)
		}
		names[p.Name] = true
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("llm.providers[%d].base_url %q is not a valid URL", i, p.BaseURL)
			}
		}
	}
	if cfg.LLM.DefaultProvider != "" && len(cfg.LLM.Providers) > 0 && !names[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any provider", cfg.LLM.DefaultProvider)
	}
	for _, fb := range cfg.LLM.Failover.Fallbacks {
		if !names[fb] {
			ve.Add("llm.failover.fallbacks references unknown provider %q", fb)
		}
	}
	for pref, name := range cfg.LLM.ModelRouting {
		if !names[name] {
			ve.Add("llm.model_routing[%s] references unknown provider %q", pref, name)
		}
	}
}

var knownAgents = map[string]bool{
	"observer": true, "verifier": true, "narrator": true, "planner": true,
	"critic": true, "guardrail": true, "watchdog": true, "operator": true,
}

func validateAgents(cfg *Config, ve *ValidationError) {
	for _, name := range cfg.Agents.Enabled {
		if !knownAgents[name] {
			ve.Add("agents.enabled: unknown agent %q", name)
		}
	}
	o := cfg.Agents.Observer
	if o.KeywordWeight < 0 || o.TitleWeight < 0 || o.URLWeight < 0 {
		ve.Add("agents.observer weights must be >= 0")
	}
	if o.KeywordWeight+o.TitleWeight+o.URLWeight <= 0 {
		ve.Add("agents.observer weights must not all be zero")
	}
	if o.Decay < 0 || o.Decay >= 1 {
		ve.Add("agents.observer.decay must be in [0, 1)")
	}
	if t := cfg.Agents.Critic.Threshold; t < 0 || t > 1 {
		ve.Add("agents.critic.threshold must be in [0, 1]")
	}
	if cfg.Agents.Watchdog.MaxNavigationsPerMinute < 0 {
		ve.Add("agents.watchdog.max_navigations_per_minute must be >= 0")
	}
}

var knownWorkflows = map[string]bool{
	"sequential": true, "background": true, "loop": true,
	"narrate": true, "planning": true, "operate": true,
}

var knownTriggers = map[string]bool{
	"timer_tick": true, "page_change": true, "user_command": true,
}

func validateWorkflow(cfg *Config, ve *ValidationError) {
	l := cfg.Workflow.Loop
	if l.MaxIterations <= 0 {
		ve.Add("workflow.loop.max_iterations must be > 0")
	}
	if l.Delay < 0 {
		ve.Add("workflow.loop.delay must be >= 0")
	}
	if l.StagnationThreshold <= 0 {
		ve.Add("workflow.loop.stagnation_threshold must be > 0")
	}
	if l.ProgressEpsilon < 0 {
		ve.Add("workflow.loop.progress_epsilon must be >= 0")
	}
	if l.CircuitCooldown < 0 {
		ve.Add("workflow.loop.circuit_cooldown must be >= 0")
	}
	if l.MaxCooldowns < 0 {
		ve.Add("workflow.loop.max_cooldowns must be >= 0")
	}
	if cfg.Workflow.Reflection.MaxIterations <= 0 {
		ve.Add("workflow.reflection.max_iterations must be > 0")
	}
	if cfg.Workflow.Parallel.MaxConcurrency < 0 {
		ve.Add("workflow.parallel.max_concurrency must be >= 0")
	}
	for trigger, wf := range cfg.Workflow.Triggers {
		if !knownTriggers[trigger] {
			ve.Add("workflow.triggers: unknown trigger %q", trigger)
		}
		if !knownWorkflows[wf] {
			ve.Add("workflow.triggers[%s]: unknown workflow %q", trigger, wf)
		}
	}
}

var validAutonomy = map[string]bool{"manual": true, "assisted": true, "autonomous": true}

func validateActions(cfg *Config, ve *ValidationError) {
	a := cfg.Actions
	if !validAutonomy[a.Autonomy] {
		ve.Add("actions.autonomy %q must be one of manual, assisted, autonomous", a.Autonomy)
	}
	if a.TTL <= 0 {
		ve.Add("actions.ttl must be > 0")
	}
	if a.SweepInterval <= 0 {
		ve.Add("actions.sweep_interval must be > 0")
	}
	if a.LedgerCapacity <= 0 {
		ve.Add("actions.ledger_capacity must be > 0")
	}
	if a.UndoDepth <= 0 {
		ve.Add("actions.undo_depth must be > 0")
	}
	for _, d := range a.KnownDomains {
		if strings.Contains(d, "/") {
			ve.Add("actions.known_domains entry %q must be a bare host", d)
		}
	}
}

func validateCapabilities(cfg *Config, ve *ValidationError) {
	c := cfg.Capabilities
	if c.RateLimit.Enabled && (c.RateLimit.PerSec <= 0 || c.RateLimit.Burst <= 0) {
		ve.Add("capabilities.rate_limit per_sec and burst must be > 0 when enabled")
	}
	if c.Sanitize.MaxBytes <= 0 {
		ve.Add("capabilities.sanitize.max_bytes must be > 0")
	}
	if c.SandboxRoot == "" {
		ve.Add("capabilities.sandbox_root must not be empty")
	}
	seen := make(map[string]bool)
	for i, srv := range c.MCPServers {
		if srv.Name == "" {
			ve.Add("capabilities.mcp_servers[%d].name must not be empty", i)
		} else if seen[srv.Name] {
			ve.Add("capabilities.mcp_servers[%d].name %q is duplicated", i, srv.Name)
		}
		seen[srv.Name] = true
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				ve.Add("capabilities.mcp_servers[%d].command required for stdio transport", i)
			}
		case "http":
			if srv.URL == "" {
				ve.Add("capabilities.mcp_servers[%d].url required for http transport", i)
			}
		default:
			ve.Add("capabilities.mcp_servers[%d].transport %q must be stdio or http", i, srv.Transport)
		}
	}
}

var knownActions = map[string]bool{
	"observe_tick": true, "sweep_actions": true, "audit_retention": true,
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	for i, task := range cfg.Scheduler.Tasks {
		if task.Name == "" {
			ve.Add("scheduler.tasks[%d].name must not be empty", i)
		}
		if task.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule must not be empty", i)
		}
		if !knownActions[task.Action] {
			ve.Add("scheduler.tasks[%d].action %q is not a known action", i, task.Action)
		}
	}
}

func validateSecurity(cfg *Config, ve *ValidationError) {
	a := cfg.Security.Audit
	if a.Enabled && a.Path == "" {
		ve.Add("security.audit.path must not be empty when audit is enabled")
	}
	if a.Retention.MaxAge != "" {
		if _, err := time.ParseDuration(a.Retention.MaxAge); err != nil {
			ve.Add("security.audit.retention.max_age %q is not a valid duration", a.Retention.MaxAge)
		}
	}
	if _, err := ParseSize(a.Retention.MaxSize); err != nil {
		ve.Add("security.audit.retention.max_size %q is not a valid size", a.Retention.MaxSize)
	}
}
