package agents

import (
	"context"
	"fmt"
	"strconv"

	"wayfinder/internal/domain"
)

// PromptNarrate is the capability prompt the narrator renders as its
// system message when a prompt renderer is available.
const PromptNarrate = "narrate"

const narratorSystem = "You are a friendly companion guiding a user toward a goal while they browse. " +
	"Reply with one or two short sentences. Never invent facts about the page."

// PromptRenderer renders named prompt templates.
type PromptRenderer interface {
	RenderPrompt(name string, params map[string]string) (string, error)
}

// Narrator produces the companion's dialogue: progress remarks, hints,
// answers to user commands and celebrations.
type Narrator struct {
	Base
	provider domain.LLMProvider // nil = canned lines
	prompts  PromptRenderer     // nil = built-in system prompt
}

// NewNarrator creates a Narrator. Both dependencies are optional.
func NewNarrator(provider domain.LLMProvider, prompts PromptRenderer) *Narrator {
	return &Narrator{
		Base:     NewBase(NameNarrator, "Generates dialogue, hints and celebrations"),
		provider: provider,
		prompts:  prompts,
	}
}

func (n *Narrator) Process(ctx context.Context, actx domain.AgentContext) (*domain.AgentOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(n.Name())
	}

	if actx.Metadata[MetaWantHint] == "true" && actx.Goal != nil {
		idx := actx.HintsGiven
		if idx < len(actx.Goal.Hints) {
			return domain.NewAgentOutput(n.Name(), actx.Goal.Hints[idx], 1).
				WithData(domain.DataHintIndex, idx).
				WithNext(domain.ShowHint(idx)), nil
		}
	}

	mode := "progress"
	switch {
	case actx.Metadata[MetaCelebrate] == "true",
		actx.Planning != nil && actx.Planning.Strategy == domain.StrategyCelebrate:
		mode = "celebrate"
	case actx.Metadata[MetaCommand] != "":
		mode = "command"
	}

	if n.provider == nil {
		return domain.NewAgentOutput(n.Name(), cannedLine(mode, actx), 0.5).
			WithNext(domain.Continue), nil
	}

	system := narratorSystem
	if n.prompts != nil {
		if rendered, err := n.prompts.RenderPrompt(PromptNarrate, narrateParams(mode, actx)); err == nil {
			system = rendered
		}
	}

	text, err := chatText(ctx, n.Name(), n.provider, domain.ChatRequest{
		Messages:    messages(system, narrateRequest(mode, actx)),
		MaxTokens:   200,
		Temperature: 0.8,
		Purpose:     "fast",
	})
	if err != nil {
		return nil, err
	}
	return domain.NewAgentOutput(n.Name(), text, 0.8).WithNext(domain.Continue), nil
}

func narrateParams(mode string, actx domain.AgentContext) map[string]string {
	p := map[string]string{
		"mode":      mode,
		"location":  actx.Location,
		"title":     actx.PageTitle,
		"proximity": strconv.FormatFloat(actx.Proximity, 'f', 2, 64),
		"command":   actx.Metadata[MetaCommand],
		"feedback":  actx.Metadata[MetaFeedback],
	}
	if actx.Goal != nil {
		p["goal"] = actx.Goal.Description
	}
	return p
}

func narrateRequest(mode string, actx domain.AgentContext) string {
	goal := "(none)"
	if actx.Goal != nil {
		goal = actx.Goal.Description
	}
	msg := fmt.Sprintf("Goal: %s\nPage: %s (%s)\nProximity: %.2f\n", goal, actx.PageTitle, actx.Location, actx.Proximity)
	switch mode {
	case "celebrate":
		msg += "The user just reached the goal. Congratulate them."
	case "command":
		msg += "The user said: " + actx.Metadata[MetaCommand] + "\nRespond helpfully."
	default:
		msg += "Comment briefly on their progress."
	}
	if fb := actx.Metadata[MetaFeedback]; fb != "" {
		msg += "\nA reviewer asked you to improve your last reply: " + fb
	}
	return msg
}

func cannedLine(mode string, actx domain.AgentContext) string {
	switch mode {
	case "celebrate":
		return "You found it! Nicely done."
	case "command":
		return "Got it: " + actx.Metadata[MetaCommand]
	}
	switch {
	case actx.Proximity >= 0.7:
		return "You're very close now."
	case actx.Proximity >= 0.4:
		return "You're on the right track."
	default:
		return "Keep exploring, nothing relevant here yet."
	}
}
