package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"wayfinder/internal/domain"
	"wayfinder/internal/usecase/agents"
)

// LoopConfig tunes a Loop. Zero values take the defaults, except Delay.
type LoopConfig struct {
	MaxIterations int
	// Delay is the pause between iterations. Zero or negative means none.
	Delay time.Duration
	// StagnationThreshold is how many consecutive iterations without
	// progress trigger a failed-approach note.
	StagnationThreshold int
	// ProgressEpsilon is the smallest metric change that counts as progress.
	ProgressEpsilon float64
	// CircuitCooldown is how long to back off when the language model
	// circuit is open.
	CircuitCooldown time.Duration
	// MaxCooldowns bounds consecutive backoffs before the loop gives up.
	MaxCooldowns int
}

// DefaultLoopConfig returns the stock loop tuning.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations:       5,
		Delay:               2 * time.Second,
		StagnationThreshold: 3,
		ProgressEpsilon:     0.01,
		CircuitCooldown:     5 * time.Second,
		MaxCooldowns:        3,
	}
}

func (c LoopConfig) withDefaults() LoopConfig {
	def := DefaultLoopConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.StagnationThreshold <= 0 {
		c.StagnationThreshold = def.StagnationThreshold
	}
	if c.ProgressEpsilon <= 0 {
		c.ProgressEpsilon = def.ProgressEpsilon
	}
	if c.CircuitCooldown <= 0 {
		c.CircuitCooldown = def.CircuitCooldown
	}
	if c.MaxCooldowns <= 0 {
		c.MaxCooldowns = def.MaxCooldowns
	}
	return c
}

// Predicate decides whether an output ends the loop.
type Predicate func(out *domain.AgentOutput) bool

// ContextModifier derives the next iteration's context from the current
// one and the latest output.
type ContextModifier func(actx domain.AgentContext, last *domain.AgentOutput) domain.AgentContext

// ProgressMetric extracts the value watched for stagnation.
type ProgressMetric func(actx domain.AgentContext) float64

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithPredicate sets the early-exit predicate.
func WithPredicate(p Predicate) LoopOption { return func(l *Loop) { l.until = p } }

// WithModifier sets the between-iterations self-correction hook.
func WithModifier(m ContextModifier) LoopOption { return func(l *Loop) { l.modify = m } }

// WithProgress replaces the default proximity metric.
func WithProgress(m ProgressMetric) LoopOption { return func(l *Loop) { l.progress = m } }

// Loop repeats a single agent until a predicate holds, a terminal signal
// arrives or the iteration budget is spent.
type Loop struct {
	name     string
	agent    domain.Agent
	cfg      LoopConfig
	until    Predicate
	modify   ContextModifier
	progress ProgressMetric
	logger   *slog.Logger
}

// NewLoop creates a Loop around agent.
func NewLoop(name string, agent domain.Agent, cfg LoopConfig, logger *slog.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		name:     name,
		agent:    agent,
		cfg:      cfg.withDefaults(),
		progress: func(actx domain.AgentContext) float64 { return actx.Proximity },
		logger:   logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Loop) Name() string { return l.name }

func (l *Loop) Execute(ctx context.Context, actx domain.AgentContext) (res Result, err error) {
	ctx, finish := startSpan(ctx, "loop", l.name)
	defer func() { finish(err) }()

	res.Context = actx.Clone()
	prev := l.progress(res.Context)
	stagnant := 0
	cooldowns := 0

	for iter := 0; iter < l.cfg.MaxIterations; {
		if err := ctxCancelled(ctx, l.name); err != nil {
			return res, err
		}

		out, err := invoke(ctx, l.agent, res.Context)
		if err != nil {
			if domain.IsTransient(err) && cooldowns < l.cfg.MaxCooldowns {
				cooldowns++
				l.logger.Warn("loop backing off on transient failure",
					"workflow", l.name, "agent", l.agent.Name(), "cooldown", l.cfg.CircuitCooldown, "attempt", cooldowns)
				if err := sleep(ctx, l.name, l.cfg.CircuitCooldown); err != nil {
					return res, err
				}
				continue
			}
			return res, err
		}
		cooldowns = 0
		iter++

		res.Outputs = append(res.Outputs, out)
		res.Context = Fold(res.Context, out)

		if l.until != nil && l.until(out) {
			return res, nil
		}
		if out.IsTerminal() {
			return res, nil
		}

		metric := l.progress(res.Context)
		if math.Abs(metric-prev) < l.cfg.ProgressEpsilon {
			stagnant++
		} else {
			stagnant = 0
		}
		prev = metric

		if stagnant >= l.cfg.StagnationThreshold {
			note := fmt.Sprintf("%s: stagnated at %.2f after %d iterations", strategyOf(res.Context), metric, iter)
			res.Context = withFailedApproach(res.Context, note)
			l.logger.Info("loop stagnation", "workflow", l.name, "note", note)
			stagnant = 0
		}

		if l.modify != nil {
			res.Context = l.modify(res.Context, out)
		}

		if iter < l.cfg.MaxIterations {
			if err := sleep(ctx, l.name, l.cfg.Delay); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// AdaptStrategy is a ContextModifier that re-selects the search strategy
// from the latest proximity and any failed approaches.
func AdaptStrategy(actx domain.AgentContext, _ *domain.AgentOutput) domain.AgentContext {
	next := actx.Clone()
	if next.Planning == nil {
		next.Planning = &domain.PlanningContext{}
	}
	next.Planning.Strategy = agents.SelectStrategy(next.Proximity, next.Planning)
	return next
}

// UntilConfidence returns a predicate satisfied once an output's
// confidence reaches min.
func UntilConfidence(min float64) Predicate {
	return func(out *domain.AgentOutput) bool { return out.Confidence >= min }
}
