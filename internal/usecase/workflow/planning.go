package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"wayfinder/internal/domain"
	"wayfinder/internal/usecase/agents"
)

// StrategyPlanner plans a run and re-scores it afterwards. *agents.Planner
// implements it.
type StrategyPlanner interface {
	domain.Agent
	Reassess(actx domain.AgentContext, outputs []*domain.AgentOutput) *domain.PlanningContext
}

// Planning lets the planner pick a strategy, runs the agents that strategy
// calls for and finally re-scores sub-goal progress.
type Planning struct {
	name     string
	planner  StrategyPlanner
	observer domain.Agent
	verifier domain.Agent
	narrator domain.Agent // optional
	logger   *slog.Logger
}

// NewPlanning creates a Planning workflow. narrator may be nil.
func NewPlanning(name string, planner StrategyPlanner, observer, verifier, narrator domain.Agent, logger *slog.Logger) *Planning {
	return &Planning{
		name:     name,
		planner:  planner,
		observer: observer,
		verifier: verifier,
		narrator: narrator,
		logger:   logger,
	}
}

func (p *Planning) Name() string { return p.name }

// agentsFor maps a strategy onto the agents to run, in order.
func (p *Planning) agentsFor(s domain.SearchStrategy) []domain.Agent {
	switch s {
	case domain.StrategyFocus:
		return []domain.Agent{p.verifier, p.observer}
	case domain.StrategyVerify:
		return []domain.Agent{p.verifier}
	case domain.StrategyCelebrate:
		if p.narrator != nil {
			return []domain.Agent{p.narrator}
		}
		return nil
	default:
		return []domain.Agent{p.observer, p.verifier}
	}
}

func (p *Planning) Execute(ctx context.Context, actx domain.AgentContext) (res Result, err error) {
	ctx, finish := startSpan(ctx, "planning", p.name)
	defer func() { finish(err) }()

	res.Context = actx.Clone()
	if err := ctxCancelled(ctx, p.name); err != nil {
		return res, err
	}

	planOut, err := invoke(ctx, p.planner, res.Context)
	if err != nil {
		return res, err
	}
	res.Outputs = append(res.Outputs, planOut)
	res.Context = Fold(res.Context, planOut)

	strategy := strategyOf(res.Context)
	if strategy == domain.StrategyCelebrate {
		res.Context = res.Context.WithMetadata(agents.MetaCelebrate, "true")
	}
	p.logger.Debug("planning strategy", "workflow", p.name, "strategy", strategy)

	for _, a := range p.agentsFor(strategy) {
		if err := ctxCancelled(ctx, p.name); err != nil {
			return res, err
		}
		if a == nil || !a.CanHandle(res.Context) {
			continue
		}
		out, err := invoke(ctx, a, res.Context)
		if err != nil {
			return res, err
		}
		res.Outputs = append(res.Outputs, out)
		res.Context = Fold(res.Context, out)

		if out.NextKind() == domain.NextGoalAchieved {
			if err := p.celebrate(ctx, a, &res); err != nil {
				return res, err
			}
			break
		}
		if out.NextKind() == domain.NextStop {
			break
		}
	}

	plan := p.planner.Reassess(res.Context, res.Outputs)
	final := domain.NewAgentOutput(p.planner.Name(),
		fmt.Sprintf("progress %.0f%%, strategy %s", plan.Progress()*100, plan.Strategy), 1).
		WithData(domain.DataPlanning, plan)
	res.Outputs = append(res.Outputs, final)
	res.Context = Fold(res.Context, final)
	return res, nil
}

// celebrate runs the narrator after a solved signal, unless the narrator
// itself produced it.
func (p *Planning) celebrate(ctx context.Context, solver domain.Agent, res *Result) error {
	if p.narrator == nil || solver == p.narrator {
		return nil
	}
	cctx := res.Context.WithMetadata(agents.MetaCelebrate, "true")
	if !p.narrator.CanHandle(cctx) {
		return nil
	}
	out, err := invoke(ctx, p.narrator, cctx)
	if err != nil {
		if domain.IsCancelled(err) {
			return err
		}
		p.logger.Warn("celebration narration failed", "workflow", p.name, "error", err)
		return nil
	}
	res.Outputs = append(res.Outputs, out)
	res.Context = Fold(res.Context, out)
	return nil
}
