package workflow

import (
	"context"
	"log/slog"
	"time"

	"wayfinder/internal/domain"
	"wayfinder/internal/usecase/agents"
)

// Output data keys set by Reflection on its final output.
const (
	DataReflectionApproved   = "reflection_approved"
	DataReflectionExhausted  = "reflection_exhausted"
	DataReflectionIterations = "reflection_iterations"
)

// Evaluator judges and improves generated text. *agents.Critic implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, actx domain.AgentContext, text string) (agents.Verdict, error)
	Improve(ctx context.Context, actx domain.AgentContext, text, feedback string) (string, error)
}

// ReflectionConfig tunes a Reflection workflow.
type ReflectionConfig struct {
	MaxIterations int
	Delay         time.Duration
}

// Reflection alternates a generator agent with a critic until the critic
// approves or the iteration budget runs out. An exhausted run is tagged as
// such rather than passed off as approved.
type Reflection struct {
	name      string
	generator domain.Agent
	critic    Evaluator
	cfg       ReflectionConfig
	logger    *slog.Logger
}

// NewReflection creates a Reflection workflow.
func NewReflection(name string, generator domain.Agent, critic Evaluator, cfg ReflectionConfig, logger *slog.Logger) *Reflection {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	return &Reflection{name: name, generator: generator, critic: critic, cfg: cfg, logger: logger}
}

func (r *Reflection) Name() string { return r.name }

func (r *Reflection) Execute(ctx context.Context, actx domain.AgentContext) (res Result, err error) {
	ctx, finish := startSpan(ctx, "reflection", r.name)
	defer func() { finish(err) }()

	res.Context = actx.Clone()
	working := res.Context
	var (
		current   *domain.AgentOutput
		lastScore float64
	)

	for iter := 1; iter <= r.cfg.MaxIterations; iter++ {
		if err := ctxCancelled(ctx, r.name); err != nil {
			return res, err
		}

		out, err := invoke(ctx, r.generator, working)
		if err != nil {
			return res, err
		}
		current = out

		verdict, evalErr := r.critic.Evaluate(ctx, working, current.Result)
		if evalErr != nil {
			if domain.IsCancelled(evalErr) || ctx.Err() != nil {
				return res, domain.Cancelled(r.name)
			}
			// The critic fails closed; carry on with its rejection.
			r.logger.Warn("reflection evaluation failed", "workflow", r.name, "iteration", iter, "error", evalErr)
		}

		lastScore = verdict.Score
		if verdict.Approved {
			final := tagReflection(current, true, false, iter, verdict.Score)
			res.Outputs = append(res.Outputs, final)
			res.Context = Fold(res.Context, final)
			return res, nil
		}

		improved, err := r.critic.Improve(ctx, working, current.Result, verdict.Feedback)
		if err != nil {
			if ctx.Err() != nil {
				return res, domain.Cancelled(r.name)
			}
			return res, err
		}
		current = current.WithResult(improved)
		working = working.
			WithMetadata(agents.MetaCandidate, improved).
			WithMetadata(agents.MetaFeedback, verdict.Feedback)

		if iter < r.cfg.MaxIterations {
			if err := sleep(ctx, r.name, r.cfg.Delay); err != nil {
				return res, err
			}
		}
	}

	r.logger.Info("reflection exhausted", "workflow", r.name, "iterations", r.cfg.MaxIterations)
	final := tagReflection(current, false, true, r.cfg.MaxIterations, lastScore)
	res.Outputs = append(res.Outputs, final)
	res.Context = Fold(res.Context, final)
	return res, nil
}

func tagReflection(out *domain.AgentOutput, approved, exhausted bool, iterations int, score float64) *domain.AgentOutput {
	return out.
		WithData(DataReflectionApproved, approved).
		WithData(DataReflectionExhausted, exhausted).
		WithData(DataReflectionIterations, iterations).
		WithData(domain.DataQualityScore, score)
}
