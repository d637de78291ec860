package domain

import (
	"context"
	"maps"
	"slices"
)

// Agent is a decision unit that consumes a context snapshot and returns a
// scored output. Process must not retain or mutate actx; anything the caller
// should fold back into the shared context travels in AgentOutput.Data.
type Agent interface {
	Name() string
	Description() string
	// CanHandle is a cheap pre-filter. Workflows skip agents that return false.
	CanHandle(actx AgentContext) bool
	Process(ctx context.Context, actx AgentContext) (*AgentOutput, error)
	// Reset clears any internal state the agent accumulated.
	Reset()
}

// Goal describes what the user is currently trying to reach.
type Goal struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
	// TargetPatterns are regular expressions; a match against the page
	// location or content means the goal was reached.
	TargetPatterns []string `json:"target_patterns,omitempty"`
	Hints          []string `json:"hints,omitempty"`
}

// AgentContext is the working state passed into every agent call.
// Workflows own it and replace it between steps with Clone + fold.
type AgentContext struct {
	Location    string            `json:"location"`
	PageTitle   string            `json:"page_title,omitempty"`
	PageContent string            `json:"page_content,omitempty"`
	Goal        *Goal             `json:"goal,omitempty"`
	Proximity   float64           `json:"proximity"`
	Planning    *PlanningContext  `json:"planning,omitempty"`
	HintsGiven  int               `json:"hints_given"`
	Screenshot  string            `json:"screenshot,omitempty"` // data URI, optional
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c AgentContext) Clone() AgentContext {
	out := c
	if c.Goal != nil {
		g := *c.Goal
		g.Keywords = slices.Clone(c.Goal.Keywords)
		g.TargetPatterns = slices.Clone(c.Goal.TargetPatterns)
		g.Hints = slices.Clone(c.Goal.Hints)
		out.Goal = &g
	}
	if c.Planning != nil {
		out.Planning = c.Planning.Clone()
	}
	out.Metadata = maps.Clone(c.Metadata)
	return out
}

// WithMetadata returns a copy of c with key set to value.
func (c AgentContext) WithMetadata(key, value string) AgentContext {
	out := c.Clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]string)
	}
	out.Metadata[key] = value
	return out
}

// SearchStrategy is the Planner's current approach to the goal.
type SearchStrategy string

const (
	StrategyExplore   SearchStrategy = "explore"
	StrategyFocus     SearchStrategy = "focus"
	StrategyVerify    SearchStrategy = "verify"
	StrategyCelebrate SearchStrategy = "celebrate"
)

// SubGoal is one decomposed step toward a Goal.
type SubGoal struct {
	Description string `json:"description"`
	Achieved    bool   `json:"achieved"`
}

// PlanningContext is the decomposed goal state owned by AgentContext.
type PlanningContext struct {
	Strategy         SearchStrategy `json:"strategy"`
	SubGoals         []SubGoal      `json:"sub_goals,omitempty"`
	FailedApproaches []string       `json:"failed_approaches,omitempty"`
}

// Clone returns a deep copy. A nil receiver yields nil.
func (p *PlanningContext) Clone() *PlanningContext {
	if p == nil {
		return nil
	}
	return &PlanningContext{
		Strategy:         p.Strategy,
		SubGoals:         slices.Clone(p.SubGoals),
		FailedApproaches: slices.Clone(p.FailedApproaches),
	}
}

// Progress returns the fraction of achieved sub-goals, or 0 when there are none.
func (p *PlanningContext) Progress() float64 {
	if p == nil || len(p.SubGoals) == 0 {
		return 0
	}
	done := 0
	for _, sg := range p.SubGoals {
		if sg.Achieved {
			done++
		}
	}
	return float64(done) / float64(len(p.SubGoals))
}

// NextActionKind tags the active NextAction variant.
type NextActionKind string

const (
	NextContinue       NextActionKind = "continue"
	NextRetry          NextActionKind = "retry"
	NextGoalAchieved   NextActionKind = "goal_achieved"
	NextShowHint       NextActionKind = "show_hint"
	NextGeneratePuzzle NextActionKind = "generate_puzzle"
	NextStop           NextActionKind = "stop"
)

// NextAction is the control-flow signal an agent suggests to its workflow.
// HintIndex is meaningful only for NextShowHint.
type NextAction struct {
	Kind      NextActionKind `json:"kind"`
	HintIndex int            `json:"hint_index,omitempty"`
}

// Continue, Retry, GoalAchieved, GeneratePuzzle and Stop are the payload-free variants.
var (
	Continue       = NextAction{Kind: NextContinue}
	Retry          = NextAction{Kind: NextRetry}
	GoalAchieved   = NextAction{Kind: NextGoalAchieved}
	GeneratePuzzle = NextAction{Kind: NextGeneratePuzzle}
	Stop           = NextAction{Kind: NextStop}
)

// ShowHint suggests revealing the hint at idx.
func ShowHint(idx int) NextAction {
	return NextAction{Kind: NextShowHint, HintIndex: idx}
}

// IsTerminal reports whether the action ends a workflow run.
func (a NextAction) IsTerminal() bool {
	return a.Kind == NextStop || a.Kind == NextGoalAchieved
}

// Well-known AgentOutput.Data keys.
const (
	DataProximity      = "proximity"
	DataPlanning       = "planning"
	DataProposedAction = "proposed_action"
	DataHintIndex      = "hint_index"
	DataApproved       = "approved"
	DataQualityScore   = "quality_score"
	DataFeedback       = "feedback"
)

// AgentOutput is the immutable result of a single agent call.
type AgentOutput struct {
	Agent      string         `json:"agent"`
	Result     string         `json:"result"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data,omitempty"`
	Next       *NextAction    `json:"next_action,omitempty"`
}

// NewAgentOutput builds an output with confidence clamped to [0, 1].
func NewAgentOutput(agent, result string, confidence float64) *AgentOutput {
	return &AgentOutput{
		Agent:      agent,
		Result:     result,
		Confidence: ClampUnit(confidence),
	}
}

// WithData returns a copy of o carrying key=value.
func (o *AgentOutput) WithData(key string, value any) *AgentOutput {
	out := *o
	out.Data = maps.Clone(o.Data)
	if out.Data == nil {
		out.Data = make(map[string]any)
	}
	out.Data[key] = value
	return &out
}

// WithNext returns a copy of o with the given next action.
func (o *AgentOutput) WithNext(next NextAction) *AgentOutput {
	out := *o
	out.Data = maps.Clone(o.Data)
	out.Next = &next
	return &out
}

// WithResult returns a copy of o with a replaced result text.
func (o *AgentOutput) WithResult(result string) *AgentOutput {
	out := *o
	out.Data = maps.Clone(o.Data)
	out.Result = result
	return &out
}

// NextKind returns the active variant, treating a missing action as Continue.
func (o *AgentOutput) NextKind() NextActionKind {
	if o == nil || o.Next == nil {
		return NextContinue
	}
	return o.Next.Kind
}

// IsTerminal reports whether the output's next action ends a workflow run.
func (o *AgentOutput) IsTerminal() bool {
	return o != nil && o.Next != nil && o.Next.IsTerminal()
}

// Float reads a numeric Data entry.
func (o *AgentOutput) Float(key string) (float64, bool) {
	if o == nil {
		return 0, false
	}
	switch v := o.Data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Bool reads a boolean Data entry.
func (o *AgentOutput) Bool(key string) (bool, bool) {
	if o == nil {
		return false, false
	}
	v, ok := o.Data[key].(bool)
	return v, ok
}

// ClampUnit clamps v into [0, 1]. NaN maps to 0.
func ClampUnit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
