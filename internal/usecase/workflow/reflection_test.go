package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfinder/internal/domain"
	"wayfinder/internal/usecase/agents"
)

// scriptedCritic approves on the approveOn-th evaluation (0 never approves).
type scriptedCritic struct {
	approveOn  int
	evalErr    error
	improveErr error

	mu        sync.Mutex
	evals     []string
	improves  []string
	feedbacks []string
}

func (c *scriptedCritic) Evaluate(_ context.Context, _ domain.AgentContext, text string) (agents.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evals = append(c.evals, text)
	n := len(c.evals)
	if c.evalErr != nil {
		return agents.Verdict{Feedback: "critic unavailable"}, c.evalErr
	}
	if n == c.approveOn {
		return agents.Verdict{Approved: true, Score: 0.9}, nil
	}
	return agents.Verdict{Score: 0.2 * float64(n), Feedback: fmt.Sprintf("weak %d", n)}, nil
}

func (c *scriptedCritic) Improve(_ context.Context, _ domain.AgentContext, text, feedback string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.improveErr != nil {
		return "", c.improveErr
	}
	c.improves = append(c.improves, text)
	c.feedbacks = append(c.feedbacks, feedback)
	return text + " (improved)", nil
}

func draftAgent() *scriptAgent {
	return &scriptAgent{name: "narrator", fn: func(_ context.Context, _ domain.AgentContext, call int) (*domain.AgentOutput, error) {
		return domain.NewAgentOutput("narrator", fmt.Sprintf("draft %d", call), 0.6), nil
	}}
}

func TestReflection_ApprovedOnSecondIteration(t *testing.T) {
	gen := draftAgent()
	critic := &scriptedCritic{approveOn: 2}

	res, err := NewReflection("reflect", gen, critic, ReflectionConfig{MaxIterations: 3}, testLogger()).
		Execute(context.Background(), domain.AgentContext{})
	require.NoError(t, err)

	assert.Equal(t, 2, gen.calls())
	assert.Len(t, critic.evals, 2)
	assert.Len(t, critic.improves, 1)

	require.Len(t, res.Outputs, 1)
	final := res.Last()
	assert.Equal(t, "draft 2", final.Result)
	approved, _ := final.Bool(DataReflectionApproved)
	exhausted, _ := final.Bool(DataReflectionExhausted)
	assert.True(t, approved)
	assert.False(t, exhausted)
	assert.Equal(t, 2, final.Data[DataReflectionIterations])
	score, _ := final.Float(domain.DataQualityScore)
	assert.InDelta(t, 0.9, score, 1e-9)

	// The second generation sees the improved candidate and the critique.
	second := gen.contexts()[1]
	assert.Equal(t, "draft 1 (improved)", second.Metadata[agents.MetaCandidate])
	assert.Equal(t, "weak 1", second.Metadata[agents.MetaFeedback])
}

func TestReflection_Exhausted(t *testing.T) {
	gen := draftAgent()
	critic := &scriptedCritic{}

	res, err := NewReflection("reflect", gen, critic, ReflectionConfig{MaxIterations: 3}, testLogger()).
		Execute(context.Background(), domain.AgentContext{})
	require.NoError(t, err)

	assert.Equal(t, 3, gen.calls())
	assert.Len(t, critic.improves, 3)

	final := res.Last()
	require.NotNil(t, final)
	assert.Equal(t, "draft 3 (improved)", final.Result)
	approved, _ := final.Bool(DataReflectionApproved)
	exhausted, _ := final.Bool(DataReflectionExhausted)
	assert.False(t, approved)
	assert.True(t, exhausted)
	score, _ := final.Float(domain.DataQualityScore)
	assert.InDelta(t, 0.6, score, 1e-9)
}

func TestReflection_EvaluationErrorCountsAsRejection(t *testing.T) {
	gen := draftAgent()
	critic := &scriptedCritic{evalErr: errors.New("model down")}

	res, err := NewReflection("reflect", gen, critic, ReflectionConfig{MaxIterations: 2}, testLogger()).
		Execute(context.Background(), domain.AgentContext{})
	require.NoError(t, err)
	approved, _ := res.Last().Bool(DataReflectionApproved)
	assert.False(t, approved)
	assert.Equal(t, []string{"critic unavailable", "critic unavailable"}, critic.feedbacks)
}

func TestReflection_ImproveErrorAborts(t *testing.T) {
	gen := draftAgent()
	boom := errors.New("rewrite failed")
	critic := &scriptedCritic{improveErr: boom}

	res, err := NewReflection("reflect", gen, critic, ReflectionConfig{MaxIterations: 3}, testLogger()).
		Execute(context.Background(), domain.AgentContext{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, res.Outputs)
	assert.Equal(t, 1, gen.calls())
}

func TestReflection_GeneratorErrorAborts(t *testing.T) {
	gen := &scriptAgent{name: "narrator", fn: func(context.Context, domain.AgentContext, int) (*domain.AgentOutput, error) {
		return nil, domain.NewAgentError("narrator", domain.ErrService, "llm", errors.New("502"))
	}}
	critic := &scriptedCritic{approveOn: 1}

	_, err := NewReflection("reflect", gen, critic, ReflectionConfig{}, testLogger()).
		Execute(context.Background(), domain.AgentContext{})
	assert.ErrorIs(t, err, domain.ErrService)
	assert.Empty(t, critic.evals)
}

func TestReflection_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReflection("reflect", draftAgent(), &scriptedCritic{}, ReflectionConfig{}, testLogger()).
		Execute(ctx, domain.AgentContext{})
	assert.True(t, domain.IsCancelled(err))
}
