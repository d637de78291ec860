package agents

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"wayfinder/internal/domain"
	"wayfinder/internal/security"
)

// Verifier decides whether the goal has been reached by matching the page
// location and content against the goal's target patterns.
type Verifier struct {
	Base
	extra  []string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// NewVerifier creates a Verifier. extra patterns apply to every goal.
func NewVerifier(extra []string, logger *slog.Logger) *Verifier {
	return &Verifier{
		Base:   NewBase(NameVerifier, "Validates goal completion by pattern and content matching"),
		extra:  extra,
		logger: logger,
		cache:  make(map[string]*regexp.Regexp),
	}
}

// CanHandle requires a goal to verify.
func (v *Verifier) CanHandle(actx domain.AgentContext) bool {
	return actx.Goal != nil
}

// Reset drops compiled patterns.
func (v *Verifier) Reset() {
	v.mu.Lock()
	v.cache = make(map[string]*regexp.Regexp)
	v.mu.Unlock()
}

func (v *Verifier) Process(ctx context.Context, actx domain.AgentContext) (*domain.AgentOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(v.Name())
	}
	if actx.Goal == nil {
		return nil, processingError(v.Name(), "no goal to verify", nil)
	}

	patterns := append(append([]string(nil), actx.Goal.TargetPatterns...), v.extra...)
	for _, p := range patterns {
		re, err := v.compile(p)
		if err != nil {
			return nil, err
		}
		switch {
		case re.MatchString(actx.Location):
			return v.solved(fmt.Sprintf("location matches %q", p), 1.0), nil
		case actx.PageContent != "" && re.MatchString(actx.PageContent):
			return v.solved(fmt.Sprintf("content matches %q", p), 0.9), nil
		}
	}

	// Without explicit patterns, every keyword on the page counts as a weaker
	// signal of success.
	if len(patterns) == 0 {
		keywords := goalKeywords(actx.Goal)
		if len(keywords) > 0 && coverage(keywords, actx.PageContent) == 1 {
			return v.solved("all goal keywords present", 0.75), nil
		}
	}

	return domain.NewAgentOutput(v.Name(), "goal not reached", 0).
		WithNext(domain.Continue), nil
}

func (v *Verifier) solved(reason string, confidence float64) *domain.AgentOutput {
	return domain.NewAgentOutput(v.Name(), "goal reached: "+reason, confidence).
		WithData(domain.DataProximity, 1.0).
		WithNext(domain.GoalAchieved)
}

// compile returns a cached compiled pattern. Patterns without inline flags
// match case-insensitively.
func (v *Verifier) compile(pattern string) (*regexp.Regexp, error) {
	v.mu.RLock()
	re, ok := v.cache[pattern]
	v.mu.RUnlock()
	if ok {
		return re, nil
	}

	expr := pattern
	if !strings.HasPrefix(expr, "(?") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, configError(v.Name(), fmt.Sprintf("invalid pattern %q", pattern), err)
	}

	v.mu.Lock()
	_ = security.Recover(v.logger, "verifier.cache", func() {
		v.cache[pattern] = re
	}, func() {
		v.cache = make(map[string]*regexp.Regexp)
	})
	v.mu.Unlock()
	return re, nil
}
