package workflow

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"wayfinder/internal/domain"
	"wayfinder/internal/usecase/agents"
)

func TestFold(t *testing.T) {
	base := domain.AgentContext{
		Location:   "https://example.com",
		Goal:       &domain.Goal{ID: "g", Description: "find it"},
		Proximity:  0.2,
		HintsGiven: 1,
	}
	plan := &domain.PlanningContext{Strategy: domain.StrategyFocus, SubGoals: []domain.SubGoal{{Description: "a"}}}

	tests := []struct {
		name string
		out  *domain.AgentOutput
		want func(domain.AgentContext) domain.AgentContext
	}{
		{
			name: "nil output",
			out:  nil,
			want: func(c domain.AgentContext) domain.AgentContext { return c },
		},
		{
			name: "proximity clamped",
			out:  domain.NewAgentOutput("o", "", 1).WithData(domain.DataProximity, 1.7),
			want: func(c domain.AgentContext) domain.AgentContext { c.Proximity = 1; return c },
		},
		{
			name: "planning replaced",
			out:  domain.NewAgentOutput("p", "", 1).WithData(domain.DataPlanning, plan),
			want: func(c domain.AgentContext) domain.AgentContext { c.Planning = plan.Clone(); return c },
		},
		{
			name: "hint advances counter",
			out:  domain.NewAgentOutput("n", "", 1).WithNext(domain.ShowHint(2)),
			want: func(c domain.AgentContext) domain.AgentContext { c.HintsGiven = 3; return c },
		},
		{
			name: "older hint does not rewind",
			out:  domain.NewAgentOutput("n", "", 1).WithData(domain.DataHintIndex, 0),
			want: func(c domain.AgentContext) domain.AgentContext { return c },
		},
		{
			name: "feedback lands in metadata",
			out:  domain.NewAgentOutput("c", "", 1).WithData(domain.DataFeedback, "shorter"),
			want: func(c domain.AgentContext) domain.AgentContext {
				c.Metadata = map[string]string{agents.MetaFeedback: "shorter"}
				return c
			},
		},
		{
			name: "goal achieved pins proximity",
			out:  domain.NewAgentOutput("v", "", 1).WithData(domain.DataProximity, 0.3).WithNext(domain.GoalAchieved),
			want: func(c domain.AgentContext) domain.AgentContext { c.Proximity = 1; return c },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := base.Clone()
			got := Fold(base, tt.out)
			if diff := cmp.Diff(tt.want(base.Clone()), got); diff != "" {
				t.Errorf("Fold mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(before, base); diff != "" {
				t.Errorf("Fold mutated its input:\n%s", diff)
			}
		})
	}
}

func TestFoldAllOrder(t *testing.T) {
	outs := []*domain.AgentOutput{
		domain.NewAgentOutput("a", "", 1).WithData(domain.DataProximity, 0.3),
		domain.NewAgentOutput("b", "", 1).WithData(domain.DataProximity, 0.6),
	}
	if got := FoldAll(domain.AgentContext{}, outs).Proximity; got != 0.6 {
		t.Errorf("proximity = %v, want the last output's value", got)
	}
}

func TestWithFailedApproach(t *testing.T) {
	start := domain.AgentContext{}
	got := withFailedApproach(start, "explore: stagnated")
	if got.Planning == nil || len(got.Planning.FailedApproaches) != 1 {
		t.Fatalf("planning = %+v", got.Planning)
	}
	if got.Planning.Strategy != domain.StrategyExplore {
		t.Errorf("strategy = %s", got.Planning.Strategy)
	}
	if start.Planning != nil {
		t.Error("input mutated")
	}
}
