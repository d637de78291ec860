package agents

import (
	"context"
	"fmt"
	"log/slog"

	"wayfinder/internal/domain"
)

var verdictSchemaCritic = mustSchema(`{
	"type": "object",
	"properties": {
		"approved": {"type": "boolean"},
		"score": {"type": "number", "minimum": 0, "maximum": 1},
		"feedback": {"type": "string"}
	},
	"required": ["approved", "score"]
}`)

// DefaultCriticThreshold is the minimum score for approval.
const DefaultCriticThreshold = 0.7

// Verdict is a quality evaluation.
type Verdict struct {
	Approved bool    `json:"approved"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// rejected is the fail-closed verdict.
func rejected(feedback string) Verdict {
	return Verdict{Approved: false, Score: 0, Feedback: feedback}
}

// Critic evaluates generated text. It fails closed: when the evaluation
// cannot be obtained or parsed, the verdict is a rejection.
type Critic struct {
	Base
	provider  domain.LLMProvider
	threshold float64
	logger    *slog.Logger
}

// NewCritic creates a Critic. A non-positive threshold uses the default.
func NewCritic(provider domain.LLMProvider, threshold float64, logger *slog.Logger) *Critic {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultCriticThreshold
	}
	return &Critic{
		Base:      NewBase(NameCritic, "Evaluates output quality and suggests improvements"),
		provider:  provider,
		threshold: threshold,
		logger:    logger,
	}
}

// CanHandle requires a candidate text.
func (c *Critic) CanHandle(actx domain.AgentContext) bool {
	return actx.Metadata[MetaCandidate] != ""
}

func (c *Critic) Process(ctx context.Context, actx domain.AgentContext) (*domain.AgentOutput, error) {
	v, err := c.Evaluate(ctx, actx, actx.Metadata[MetaCandidate])
	if err != nil && domain.IsCancelled(err) {
		return nil, err
	}
	return verdictOutput(c.Name(), v), nil
}

// Evaluate scores text for the current context. The verdict is always
// usable; err reports why a rejection was forced, if it was.
func (c *Critic) Evaluate(ctx context.Context, actx domain.AgentContext, text string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return rejected("cancelled"), domain.Cancelled(c.Name())
	}
	if text == "" {
		return rejected("nothing to evaluate"), nil
	}
	if c.provider == nil {
		return rejected("no evaluator configured"), configError(c.Name(), "no language model", nil)
	}

	var v Verdict
	err := chatJSON(ctx, c.Name(), c.provider, domain.ChatRequest{
		Messages: messages(
			"You review a companion's reply for accuracy, helpfulness and tone. "+
				`Reply with JSON: {"approved": bool, "score": 0..1, "feedback": "what to improve"}.`,
			fmt.Sprintf("Goal: %s\nPage: %s\nReply under review:\n%s", goalText(actx), actx.PageTitle, clip(text, 4000)),
		),
		MaxTokens:   300,
		Temperature: 0,
		Purpose:     "reasoning",
	}, verdictSchemaCritic, &v)
	if err != nil {
		c.logger.Warn("critic evaluation failed, rejecting", "error", err)
		return rejected("evaluation unavailable"), err
	}

	v.Score = domain.ClampUnit(v.Score)
	v.Approved = v.Approved && v.Score >= c.threshold
	return v, nil
}

// Improve rewrites text according to feedback.
func (c *Critic) Improve(ctx context.Context, actx domain.AgentContext, text, feedback string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.Cancelled(c.Name())
	}
	if c.provider == nil {
		return "", configError(c.Name(), "no language model", nil)
	}
	return chatText(ctx, c.Name(), c.provider, domain.ChatRequest{
		Messages: messages(
			"Rewrite the reply so it addresses the feedback. Return only the improved reply.",
			fmt.Sprintf("Goal: %s\nFeedback: %s\nReply:\n%s", goalText(actx), feedback, clip(text, 4000)),
		),
		MaxTokens:   300,
		Temperature: 0.5,
		Purpose:     "fast",
	})
}

func verdictOutput(name string, v Verdict) *domain.AgentOutput {
	result := "rejected"
	if v.Approved {
		result = "approved"
	}
	if v.Feedback != "" {
		result += ": " + v.Feedback
	}
	return domain.NewAgentOutput(name, result, v.Score).
		WithData(domain.DataApproved, v.Approved).
		WithData(domain.DataQualityScore, v.Score).
		WithData(domain.DataFeedback, v.Feedback).
		WithNext(domain.Continue)
}

func goalText(actx domain.AgentContext) string {
	if actx.Goal == nil {
		return "(none)"
	}
	return actx.Goal.Description
}
