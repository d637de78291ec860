package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfinder/internal/domain"
)

func TestGuardrailBlocklist(t *testing.T) {
	p := replying(`{"safe": true}`)
	g := NewGuardrail([]string{"  Credit Card Number "}, p, discardLogger())

	safe, reason, err := g.Check(context.Background(), "please type your credit card number here")
	require.NoError(t, err)
	assert.False(t, safe)
	assert.Contains(t, reason, "credit card number")
	assert.Empty(t, p.requests, "blocklist hits must not reach the model")
}

func TestGuardrailNoProviderAllows(t *testing.T) {
	g := NewGuardrail(nil, nil, discardLogger())
	safe, _, err := g.Check(context.Background(), "hello there")
	require.NoError(t, err)
	assert.True(t, safe)
}

func TestGuardrailModelVerdict(t *testing.T) {
	g := NewGuardrail(nil, replying(`{"safe": false, "reason": "phishing"}`), discardLogger())

	out, err := g.Process(context.Background(), candidateCtx("click this totally real bank link"))
	require.NoError(t, err)
	assert.Equal(t, domain.NextStop, out.NextKind())
	approved, _ := out.Bool(domain.DataApproved)
	assert.False(t, approved)
	assert.Equal(t, "phishing", out.Data[domain.DataFeedback])
}

func TestGuardrailFailsClosed(t *testing.T) {
	for name, p := range map[string]*mockProvider{
		"provider error": failing(errors.New("upstream down")),
		"garbage reply":  replying("sure, it's fine"),
		"wrong shape":    replying(`{"reason": "ok"}`),
	} {
		t.Run(name, func(t *testing.T) {
			g := NewGuardrail(nil, p, discardLogger())

			safe, _, err := g.Check(context.Background(), "anything")
			assert.Error(t, err)
			assert.False(t, safe)

			out, err := g.Process(context.Background(), candidateCtx("anything"))
			require.NoError(t, err)
			assert.Equal(t, domain.NextStop, out.NextKind())
		})
	}
}

func TestGuardrailSafe(t *testing.T) {
	g := NewGuardrail([]string{"password"}, replying(`{"safe": true}`), discardLogger())
	out, err := g.Process(context.Background(), candidateCtx("The docs are under Help."))
	require.NoError(t, err)
	assert.Equal(t, domain.NextContinue, out.NextKind())
	approved, _ := out.Bool(domain.DataApproved)
	assert.True(t, approved)
}
