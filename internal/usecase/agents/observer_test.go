package agents

import (
	"context"
	"math"
	"testing"

	"wayfinder/internal/domain"
)

func TestObserverScore(t *testing.T) {
	o := NewObserver(DefaultObserverConfig())

	tests := []struct {
		name     string
		title    string
		location string
		content  string
		min, max float64
	}{
		{"nothing relevant", "Weather", "https://example.com/weather", "sunny all week", 0, 0.001},
		{"title only", "Golang tutorial", "https://example.com/", "", 0.2, 0.3},
		{"everything", "Golang tutorial", "https://golang.example/tutorial", "golang tutorial golang tutorial golang tutorial", 0.9, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := o.Score([]string{"golang", "tutorial"}, tt.title, tt.location, tt.content)
			if rel.Score < tt.min || rel.Score > tt.max {
				t.Errorf("score = %.3f, want in [%.2f, %.2f] (%+v)", rel.Score, tt.min, tt.max, rel)
			}
		})
	}
}

func TestObserverContentSaturates(t *testing.T) {
	once := saturatingHits([]string{"go"}, "go")
	many := saturatingHits([]string{"go"}, "go go go go go go go go")
	if !(many > once) {
		t.Fatalf("more mentions should score higher: once=%.3f many=%.3f", once, many)
	}
	if many >= 1 {
		t.Errorf("score must stay below 1, got %.3f", many)
	}
	if want := 1 - math.Exp(-1); math.Abs(once-want) > 1e-9 {
		t.Errorf("single hit = %.4f, want %.4f", once, want)
	}
}

func TestObserverProcessDecaysProximity(t *testing.T) {
	o := NewObserver(ObserverConfig{ContentWeight: 1, Decay: 0.5})
	actx := goalCtx("learn go", "golang")
	actx.Proximity = 0.8
	actx.PageContent = "nothing to see"

	out, err := o.Process(context.Background(), actx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, ok := out.Float(domain.DataProximity)
	if !ok {
		t.Fatal("missing proximity")
	}
	if math.Abs(got-0.4) > 1e-9 {
		t.Errorf("proximity = %.3f, want 0.4", got)
	}
	if out.NextKind() != domain.NextContinue {
		t.Errorf("next = %s, want continue", out.NextKind())
	}
}

func TestObserverCanHandle(t *testing.T) {
	o := NewObserver(DefaultObserverConfig())
	if o.CanHandle(domain.AgentContext{Location: "https://example.com"}) {
		t.Error("observer should skip contexts without a goal")
	}
	if !o.CanHandle(goalCtx("x")) {
		t.Error("observer should handle contexts with a goal")
	}
}

func TestObserverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewObserver(DefaultObserverConfig()).Process(ctx, goalCtx("x", "y"))
	if !domain.IsCancelled(err) {
		t.Errorf("err = %v, want cancelled", err)
	}
}

func TestGoalKeywordsFallback(t *testing.T) {
	got := goalKeywords(&domain.Goal{Description: "Find the page about Rust lifetimes"})
	want := []string{"rust", "lifetimes"}
	if len(got) != len(want) {
		t.Fatalf("keywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keywords[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
