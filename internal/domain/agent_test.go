package domain

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNewAgentOutput_ClampsConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{3.7, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		out := NewAgentOutput("a", "r", tt.in)
		assert.Equal(t, tt.want, out.Confidence)
	}
}

func TestAgentOutput_WithDataDoesNotAlias(t *testing.T) {
	base := NewAgentOutput("observer", "ok", 0.5).WithData("k", 1)
	derived := base.WithData("k", 2).WithNext(Stop)

	v, _ := base.Float("k")
	assert.Equal(t, 1.0, v)
	v, _ = derived.Float("k")
	assert.Equal(t, 2.0, v)
	assert.Nil(t, base.Next)
	assert.True(t, derived.IsTerminal())
}

func TestAgentOutput_NextKindDefaultsToContinue(t *testing.T) {
	var nilOut *AgentOutput
	assert.Equal(t, NextContinue, nilOut.NextKind())
	assert.Equal(t, NextContinue, NewAgentOutput("a", "", 0).NextKind())
	assert.Equal(t, NextShowHint, NewAgentOutput("a", "", 0).WithNext(ShowHint(2)).NextKind())
}

func TestNextAction_IsTerminal(t *testing.T) {
	assert.True(t, Stop.IsTerminal())
	assert.True(t, GoalAchieved.IsTerminal())
	assert.False(t, Continue.IsTerminal())
	assert.False(t, Retry.IsTerminal())
	assert.False(t, ShowHint(0).IsTerminal())
	assert.False(t, GeneratePuzzle.IsTerminal())
}

func TestAgentContext_CloneIsDeep(t *testing.T) {
	orig := AgentContext{
		Location: "https://example.com",
		Goal:     &Goal{ID: "g1", Keywords: []string{"a"}},
		Planning: &PlanningContext{
			Strategy: StrategyExplore,
			SubGoals: []SubGoal{{Description: "find"}},
		},
		Metadata: map[string]string{"k": "v"},
	}
	snapshot := orig.Clone()

	c := orig.Clone()
	c.Goal.Keywords[0] = "changed"
	c.Planning.SubGoals[0].Achieved = true
	c.Planning.FailedApproaches = append(c.Planning.FailedApproaches, "x")
	c.Metadata["k"] = "changed"

	if diff := cmp.Diff(snapshot, orig); diff != "" {
		t.Errorf("clone aliased original (-want +got):\n%s", diff)
	}
}

func TestPlanningContext_Progress(t *testing.T) {
	var nilPlan *PlanningContext
	assert.Equal(t, 0.0, nilPlan.Progress())

	p := &PlanningContext{SubGoals: []SubGoal{{Achieved: true}, {}, {Achieved: true}, {}}}
	assert.Equal(t, 0.5, p.Progress())
}
