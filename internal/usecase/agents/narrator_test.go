package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"wayfinder/internal/domain"
)

type stubPrompts struct {
	params map[string]string
	err    error
}

func (s *stubPrompts) RenderPrompt(name string, params map[string]string) (string, error) {
	s.params = params
	if s.err != nil {
		return "", s.err
	}
	return "rendered " + name, nil
}

func TestNarratorHint(t *testing.T) {
	n := NewNarrator(nil, nil)
	actx := goalCtx("x")
	actx.Goal.Hints = []string{"look in the footer", "try the search box"}
	actx.HintsGiven = 1
	actx = actx.WithMetadata(MetaWantHint, "true")

	out, err := n.Process(context.Background(), actx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Next == nil || out.Next.Kind != domain.NextShowHint || out.Next.HintIndex != 1 {
		t.Fatalf("next = %+v, want show_hint(1)", out.Next)
	}
	if out.Result != "try the search box" {
		t.Errorf("result = %q", out.Result)
	}
}

func TestNarratorHintsExhausted(t *testing.T) {
	n := NewNarrator(nil, nil)
	actx := goalCtx("x")
	actx.Goal.Hints = []string{"only one"}
	actx.HintsGiven = 1
	actx = actx.WithMetadata(MetaWantHint, "true")

	out, err := n.Process(context.Background(), actx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.NextKind() != domain.NextContinue {
		t.Errorf("next = %s, want continue once hints run out", out.NextKind())
	}
}

func TestNarratorCannedLines(t *testing.T) {
	n := NewNarrator(nil, nil)

	tests := []struct {
		name string
		actx domain.AgentContext
		want string
	}{
		{"celebrate", goalCtx("x").WithMetadata(MetaCelebrate, "true"), "You found it"},
		{"command", goalCtx("x").WithMetadata(MetaCommand, "go back"), "go back"},
		{"close", func() domain.AgentContext { c := goalCtx("x"); c.Proximity = 0.8; return c }(), "very close"},
		{"far", goalCtx("x"), "Keep exploring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Process(context.Background(), tt.actx)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if !strings.Contains(out.Result, tt.want) {
				t.Errorf("result = %q, want it to contain %q", out.Result, tt.want)
			}
		})
	}
}

func TestNarratorUsesModelAndPrompt(t *testing.T) {
	p := replying("Nearly there!")
	prompts := &stubPrompts{}
	n := NewNarrator(p, prompts)

	actx := goalCtx("find pricing").WithMetadata(MetaFeedback, "mention the plan names")
	out, err := n.Process(context.Background(), actx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Result != "Nearly there!" {
		t.Errorf("result = %q", out.Result)
	}

	req := p.last()
	if req.Purpose != "fast" {
		t.Errorf("purpose = %q, want fast", req.Purpose)
	}
	if req.Messages[0].Content != "rendered "+PromptNarrate {
		t.Errorf("system prompt = %q", req.Messages[0].Content)
	}
	if !strings.Contains(req.Messages[1].Content, "mention the plan names") {
		t.Error("feedback missing from the request")
	}
	if prompts.params["goal"] != "find pricing" || prompts.params["mode"] != "progress" {
		t.Errorf("prompt params = %v", prompts.params)
	}
}

func TestNarratorPromptErrorFallsBack(t *testing.T) {
	p := replying("ok")
	n := NewNarrator(p, &stubPrompts{err: errors.New("no template")})
	if _, err := n.Process(context.Background(), goalCtx("x")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := p.last().Messages[0].Content; got != narratorSystem {
		t.Errorf("system prompt = %q, want built-in", got)
	}
}

func TestNarratorServiceError(t *testing.T) {
	n := NewNarrator(failing(errors.New("boom")), nil)
	_, err := n.Process(context.Background(), goalCtx("x"))
	if !errors.Is(err, domain.ErrService) {
		t.Errorf("err = %v, want service error", err)
	}

	n = NewNarrator(failing(context.DeadlineExceeded), nil)
	_, err = n.Process(context.Background(), goalCtx("x"))
	if !errors.Is(err, domain.ErrAgentTimeout) {
		t.Errorf("err = %v, want timeout", err)
	}
}
