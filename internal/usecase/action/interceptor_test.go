package action

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfinder/internal/domain"
)

func TestProposalFrom(t *testing.T) {
	prop := domain.ActionProposal{ActionType: "browser_highlight", Description: "hi"}

	var decoded map[string]any
	raw, _ := json.Marshal(prop)
	require.NoError(t, json.Unmarshal(raw, &decoded))

	tests := []struct {
		name string
		out  *domain.AgentOutput
		ok   bool
	}{
		{"nil output", nil, false},
		{"no data", domain.NewAgentOutput("observer", "", 1), false},
		{"value", domain.NewAgentOutput("a", "", 1).WithData(domain.DataProposedAction, prop), true},
		{"pointer", domain.NewAgentOutput("a", "", 1).WithData(domain.DataProposedAction, &prop), true},
		{"decoded map", domain.NewAgentOutput("a", "", 1).WithData(domain.DataProposedAction, decoded), true},
		{"raw json", domain.NewAgentOutput("a", "", 1).WithData(domain.DataProposedAction, json.RawMessage(raw)), true},
		{"empty type", domain.NewAgentOutput("a", "", 1).WithData(domain.DataProposedAction, domain.ActionProposal{}), false},
		{"wrong type", domain.NewAgentOutput("a", "", 1).WithData(domain.DataProposedAction, "navigate"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ProposalFrom(tt.out)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, "browser_highlight", got.ActionType)
			}
		})
	}
}

func TestInterceptor_SubmitsAndStampsSource(t *testing.T) {
	f := newFixture(AutonomyManual)
	ic := NewInterceptor(f.queue, discardLogger())

	outs := []*domain.AgentOutput{
		domain.NewAgentOutput("narrator", "just talking", 0.9),
		domain.NewAgentOutput("operator", "click it", 0.8).WithData(domain.DataProposedAction,
			domain.ActionProposal{ActionType: "shell_exec", Description: "run ls"}),
		domain.NewAgentOutput("planner", "bad", 0.8).WithData(domain.DataProposedAction,
			domain.ActionProposal{ActionType: "shell_exec", Arguments: json.RawMessage(`{broken`)}),
	}

	submitted := ic.InterceptAll(context.Background(), outs)
	require.Len(t, submitted, 1)
	assert.Equal(t, "operator", submitted[0].Source)
	assert.Len(t, f.queue.Pending(), 1)
}
