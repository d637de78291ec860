package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"wayfinder/internal/domain"
)

var operatorSchema = mustSchema(`{
	"type": "object",
	"properties": {
		"done": {"type": "boolean"},
		"action_type": {"type": "string"},
		"description": {"type": "string"},
		"target": {"type": "string"},
		"arguments": {"type": "object"},
		"reason": {"type": "string"}
	},
	"required": ["done"]
}`)

const operatorSystem = `You operate a web browser on the user's behalf. Look at the screenshot and page
details, then choose the single next action that moves toward the goal.
Reply with JSON: {"done": bool, "action_type": string, "description": string, "target": string,
"arguments": object, "reason": string}. Set done to true, with no action, when the goal is visibly reached.
Only use these actions:
%s`

// ToolLister exposes the tools the operator may propose.
type ToolLister interface {
	DiscoverTools(category string) []domain.ToolDescriptor
}

// Operator looks at the current page (screenshot when available) and
// proposes the next browser action. It never executes anything itself;
// the proposal travels in the output for the action queue to classify.
type Operator struct {
	Base
	provider domain.LLMProvider
	tools    ToolLister
	logger   *slog.Logger
}

// NewOperator creates an Operator.
func NewOperator(provider domain.LLMProvider, tools ToolLister, logger *slog.Logger) *Operator {
	return &Operator{
		Base:     NewBase(NameOperator, "Proposes browser actions from what is on screen"),
		provider: provider,
		tools:    tools,
		logger:   logger,
	}
}

// CanHandle requires a goal and something to look at.
func (o *Operator) CanHandle(actx domain.AgentContext) bool {
	return actx.Goal != nil && (actx.Screenshot != "" || actx.PageContent != "")
}

type operatorReply struct {
	Done        bool            `json:"done"`
	ActionType  string          `json:"action_type"`
	Description string          `json:"description"`
	Target      string          `json:"target"`
	Arguments   json.RawMessage `json:"arguments"`
	Reason      string          `json:"reason"`
}

func (o *Operator) Process(ctx context.Context, actx domain.AgentContext) (*domain.AgentOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(o.Name())
	}
	if o.provider == nil {
		return nil, configError(o.Name(), "no language model configured", nil)
	}
	if actx.Goal == nil {
		return nil, processingError(o.Name(), "no goal", nil)
	}

	allowed := o.allowedTools()
	if len(allowed) == 0 {
		return nil, configError(o.Name(), "no tools available", nil)
	}

	user := domain.Message{
		Role:    domain.RoleUser,
		Content: operatorRequest(actx),
	}
	purpose := "reasoning"
	if actx.Screenshot != "" {
		user.Images = []string{actx.Screenshot}
		purpose = "vision"
	}

	var reply operatorReply
	err := chatJSON(ctx, o.Name(), o.provider, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: fmt.Sprintf(operatorSystem, describeTools(allowed))},
			user,
		},
		MaxTokens:   400,
		Temperature: 0.1,
		Purpose:     purpose,
	}, operatorSchema, &reply)
	if err != nil {
		return nil, err
	}

	if reply.Done {
		return domain.NewAgentOutput(o.Name(), "goal appears complete", 0.8).
			WithNext(domain.GoalAchieved), nil
	}

	desc, ok := allowed[reply.ActionType]
	if !ok {
		return nil, processingError(o.Name(), fmt.Sprintf("model proposed unknown action %q", reply.ActionType), nil)
	}

	prop := domain.ActionProposal{
		ActionType:  desc.Name,
		Description: reply.Description,
		Target:      reply.Target,
		Arguments:   reply.Arguments,
		Reason:      reply.Reason,
		Source:      o.Name(),
	}
	if prop.Description == "" {
		prop.Description = desc.Description
	}
	o.logger.Debug("operator proposal", "action_type", prop.ActionType, "target", prop.Target)

	return domain.NewAgentOutput(o.Name(), "proposed "+prop.ActionType, 0.7).
		WithData(domain.DataProposedAction, prop).
		WithNext(domain.Continue), nil
}

// allowedTools returns the side-effecting tools, keyed by name. Read-only
// tools are the observer's business.
func (o *Operator) allowedTools() map[string]domain.ToolDescriptor {
	if o.tools == nil {
		return nil
	}
	out := make(map[string]domain.ToolDescriptor)
	for _, d := range o.tools.DiscoverTools("") {
		if d.IsSideEffect {
			out[d.Name] = d
		}
	}
	return out
}

func describeTools(tools map[string]domain.ToolDescriptor) string {
	names := slices.Sorted(maps.Keys(tools))

	var b strings.Builder
	for _, name := range names {
		d := tools[name]
		fmt.Fprintf(&b, "- %s: %s", d.Name, d.Description)
		if len(d.InputSchema) > 0 {
			fmt.Fprintf(&b, " args=%s", d.InputSchema)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func operatorRequest(actx domain.AgentContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", actx.Goal.Description)
	fmt.Fprintf(&b, "Location: %s\nTitle: %s\n", actx.Location, actx.PageTitle)
	if actx.Planning != nil {
		for _, sg := range actx.Planning.SubGoals {
			if !sg.Achieved {
				fmt.Fprintf(&b, "Current step: %s\n", sg.Description)
				break
			}
		}
	}
	if actx.PageContent != "" {
		fmt.Fprintf(&b, "Page text:\n%s\n", clip(actx.PageContent, 3000))
	}
	return b.String()
}
