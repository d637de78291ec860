package workflow

import (
	"wayfinder/internal/domain"
	"wayfinder/internal/usecase/agents"
)

// Fold returns the context that results from applying out to actx. The
// input context is never modified.
//
// Recognised output data: proximity (clamped), planning, hint index and
// critic feedback. A GoalAchieved signal pins proximity at 1; a ShowHint
// signal advances the hint counter past the shown hint.
func Fold(actx domain.AgentContext, out *domain.AgentOutput) domain.AgentContext {
	next := actx.Clone()
	if out == nil {
		return next
	}

	if p, ok := out.Float(domain.DataProximity); ok {
		next.Proximity = domain.ClampUnit(p)
	}

	switch plan := out.Data[domain.DataPlanning].(type) {
	case *domain.PlanningContext:
		next.Planning = plan.Clone()
	case domain.PlanningContext:
		next.Planning = plan.Clone()
	}

	hint := -1
	if idx, ok := out.Data[domain.DataHintIndex].(int); ok {
		hint = idx
	}
	if out.Next != nil && out.Next.Kind == domain.NextShowHint {
		hint = out.Next.HintIndex
	}
	if hint >= 0 && hint+1 > next.HintsGiven {
		next.HintsGiven = hint + 1
	}

	if fb, ok := out.Data[domain.DataFeedback].(string); ok && fb != "" {
		next = next.WithMetadata(agents.MetaFeedback, fb)
	}

	if out.NextKind() == domain.NextGoalAchieved {
		next.Proximity = 1
	}
	return next
}

// FoldAll applies outputs in order.
func FoldAll(actx domain.AgentContext, outputs []*domain.AgentOutput) domain.AgentContext {
	next := actx.Clone()
	for _, out := range outputs {
		next = Fold(next, out)
	}
	return next
}

// withFailedApproach returns actx with note appended to its planning state.
func withFailedApproach(actx domain.AgentContext, note string) domain.AgentContext {
	next := actx.Clone()
	if next.Planning == nil {
		next.Planning = &domain.PlanningContext{Strategy: domain.StrategyExplore}
	}
	next.Planning.FailedApproaches = append(next.Planning.FailedApproaches, note)
	return next
}

// strategyOf returns the current strategy, defaulting to explore.
func strategyOf(actx domain.AgentContext) domain.SearchStrategy {
	if actx.Planning == nil || actx.Planning.Strategy == "" {
		return domain.StrategyExplore
	}
	return actx.Planning.Strategy
}
