package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"wayfinder/internal/domain"
)

var planSchema = mustSchema(`{
	"type": "object",
	"properties": {
		"strategy": {"type": "string", "enum": ["explore", "focus", "verify", "celebrate"]},
		"sub_goals": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1,
			"maxItems": 6
		}
	},
	"required": ["sub_goals"]
}`)

type planReply struct {
	Strategy string   `json:"strategy"`
	SubGoals []string `json:"sub_goals"`
}

// Proximity thresholds for strategy selection.
const (
	focusThreshold  = 0.35
	verifyThreshold = 0.75
)

// Planner decomposes the goal into sub-goals and picks a search strategy.
type Planner struct {
	Base
	provider domain.LLMProvider // nil = heuristic decomposition
	logger   *slog.Logger
}

// NewPlanner creates a Planner. provider may be nil.
func NewPlanner(provider domain.LLMProvider, logger *slog.Logger) *Planner {
	return &Planner{
		Base:     NewBase(NamePlanner, "Decomposes the goal and selects a search strategy"),
		provider: provider,
		logger:   logger,
	}
}

// CanHandle requires a goal to plan for.
func (p *Planner) CanHandle(actx domain.AgentContext) bool {
	return actx.Goal != nil
}

func (p *Planner) Process(ctx context.Context, actx domain.AgentContext) (*domain.AgentOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(p.Name())
	}
	if actx.Goal == nil {
		return nil, processingError(p.Name(), "no goal to plan for", nil)
	}

	plan := actx.Planning.Clone()
	if plan == nil {
		plan = &domain.PlanningContext{}
	}
	if len(plan.SubGoals) == 0 {
		subGoals, err := p.decompose(ctx, actx)
		if err != nil {
			if domain.IsCancelled(err) {
				return nil, err
			}
			// Decomposition is advisory; fall back rather than stall the run.
			p.logger.Warn("planner decomposition failed, using heuristic", "error", err)
			subGoals = heuristicSubGoals(actx.Goal)
		}
		for _, sg := range subGoals {
			plan.SubGoals = append(plan.SubGoals, domain.SubGoal{Description: sg})
		}
	}
	plan.Strategy = SelectStrategy(actx.Proximity, plan)

	return domain.NewAgentOutput(p.Name(),
		fmt.Sprintf("strategy %s, %d sub-goals, progress %.0f%%", plan.Strategy, len(plan.SubGoals), plan.Progress()*100),
		0.7,
	).
		WithData(domain.DataPlanning, plan).
		WithNext(domain.Continue), nil
}

// Reassess recomputes sub-goal progress from a run's outputs. A terminal
// success marks everything achieved; otherwise sub-goals are achieved in
// order as the best observed proximity crosses evenly spaced thresholds.
func (p *Planner) Reassess(actx domain.AgentContext, outputs []*domain.AgentOutput) *domain.PlanningContext {
	plan := actx.Planning.Clone()
	if plan == nil {
		plan = &domain.PlanningContext{Strategy: domain.StrategyExplore}
	}

	best := actx.Proximity
	for _, out := range outputs {
		if out.NextKind() == domain.NextGoalAchieved {
			for i := range plan.SubGoals {
				plan.SubGoals[i].Achieved = true
			}
			plan.Strategy = domain.StrategyCelebrate
			return plan
		}
		if v, ok := out.Float(domain.DataProximity); ok && v > best {
			best = v
		}
	}

	n := len(plan.SubGoals)
	for i := range plan.SubGoals {
		if best >= float64(i+1)/float64(n+1) {
			plan.SubGoals[i].Achieved = true
		}
	}
	plan.Strategy = SelectStrategy(best, plan)
	return plan
}

// SelectStrategy maps proximity onto a strategy. When the most recent failed
// approach used the strategy that would be chosen, the alternative search
// mode is tried instead.
func SelectStrategy(proximity float64, plan *domain.PlanningContext) domain.SearchStrategy {
	var s domain.SearchStrategy
	switch {
	case proximity >= 1:
		return domain.StrategyCelebrate
	case proximity >= verifyThreshold:
		s = domain.StrategyVerify
	case proximity >= focusThreshold:
		s = domain.StrategyFocus
	default:
		s = domain.StrategyExplore
	}

	if plan != nil && len(plan.FailedApproaches) > 0 {
		last := plan.FailedApproaches[len(plan.FailedApproaches)-1]
		if strings.HasPrefix(last, string(s)) {
			switch s {
			case domain.StrategyExplore:
				return domain.StrategyFocus
			case domain.StrategyFocus, domain.StrategyVerify:
				return domain.StrategyExplore
			}
		}
	}
	return s
}

func (p *Planner) decompose(ctx context.Context, actx domain.AgentContext) ([]string, error) {
	if p.provider == nil {
		return heuristicSubGoals(actx.Goal), nil
	}
	var reply planReply
	err := chatJSON(ctx, p.Name(), p.provider, domain.ChatRequest{
		Messages: messages(
			"You break browsing goals into at most six concrete, ordered sub-goals. "+
				`Reply with JSON: {"strategy": "explore|focus|verify|celebrate", "sub_goals": ["..."]}.`,
			fmt.Sprintf("Goal: %s\nKeywords: %s\nCurrent page: %s (%s)",
				actx.Goal.Description, strings.Join(actx.Goal.Keywords, ", "), actx.PageTitle, actx.Location),
		),
		MaxTokens:   400,
		Temperature: 0.2,
		Purpose:     "reasoning",
	}, planSchema, &reply)
	if err != nil {
		return nil, err
	}
	return reply.SubGoals, nil
}

func heuristicSubGoals(g *domain.Goal) []string {
	topic := strings.Join(goalKeywords(g), ", ")
	if topic == "" {
		topic = g.Description
	}
	return []string{
		"Find pages about " + topic,
		"Narrow down to the page that matches the goal",
		"Confirm the goal is reached",
	}
}
