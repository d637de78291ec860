package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"wayfinder/internal/domain"
)

var safetySchema = mustSchema(`{
	"type": "object",
	"properties": {
		"safe": {"type": "boolean"},
		"reason": {"type": "string"}
	},
	"required": ["safe"]
}`)

type safetyReply struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason"`
}

// Guardrail filters text before it reaches the user. Blocklisted terms are
// rejected outright; with a model configured, everything else also needs an
// explicit "safe" verdict. Any failure to obtain that verdict is a rejection.
type Guardrail struct {
	Base
	blocklist []string
	provider  domain.LLMProvider // nil = blocklist only
	logger    *slog.Logger
}

// NewGuardrail creates a Guardrail. provider may be nil.
func NewGuardrail(blocklist []string, provider domain.LLMProvider, logger *slog.Logger) *Guardrail {
	lower := make([]string, 0, len(blocklist))
	for _, b := range blocklist {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			lower = append(lower, b)
		}
	}
	return &Guardrail{
		Base:      NewBase(NameGuardrail, "Filters unsafe or disallowed content"),
		blocklist: lower,
		provider:  provider,
		logger:    logger,
	}
}

// CanHandle requires a candidate text.
func (g *Guardrail) CanHandle(actx domain.AgentContext) bool {
	return actx.Metadata[MetaCandidate] != ""
}

func (g *Guardrail) Process(ctx context.Context, actx domain.AgentContext) (*domain.AgentOutput, error) {
	safe, reason, err := g.Check(ctx, actx.Metadata[MetaCandidate])
	if err != nil && domain.IsCancelled(err) {
		return nil, err
	}

	if !safe {
		return domain.NewAgentOutput(g.Name(), "blocked: "+reason, 1).
			WithData(domain.DataApproved, false).
			WithData(domain.DataFeedback, reason).
			WithNext(domain.Stop), nil
	}
	return domain.NewAgentOutput(g.Name(), "content allowed", 1).
		WithData(domain.DataApproved, true).
		WithNext(domain.Continue), nil
}

// Check reports whether text is safe to show. err explains a forced rejection.
func (g *Guardrail) Check(ctx context.Context, text string) (safe bool, reason string, err error) {
	if err := ctx.Err(); err != nil {
		return false, "cancelled", domain.Cancelled(g.Name())
	}
	lower := strings.ToLower(text)
	for _, term := range g.blocklist {
		if strings.Contains(lower, term) {
			return false, fmt.Sprintf("contains blocked term %q", term), nil
		}
	}
	if g.provider == nil {
		return true, "", nil
	}

	var reply safetyReply
	err = chatJSON(ctx, g.Name(), g.provider, domain.ChatRequest{
		Messages: messages(
			"You are a content safety filter for a browsing companion. Flag harmful, deceptive or "+
				`privacy-violating text. Reply with JSON: {"safe": bool, "reason": "..."}.`,
			clip(text, 4000),
		),
		MaxTokens:   150,
		Temperature: 0,
		Purpose:     "fast",
	}, safetySchema, &reply)
	if err != nil {
		g.logger.Warn("guardrail verdict unavailable, blocking", "error", err)
		return false, "safety verdict unavailable", err
	}
	if !reply.Safe {
		if reply.Reason == "" {
			reply.Reason = "flagged by safety model"
		}
		return false, reply.Reason, nil
	}
	return true, "", nil
}
