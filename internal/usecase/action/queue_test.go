package action

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfinder/internal/domain"
)

func TestQueue_HighRiskLifecycle(t *testing.T) {
	f := newFixture(AutonomyAutonomous)
	ctx := context.Background()

	a, err := f.queue.Submit(ctx, domain.ActionProposal{
		ActionType:  "browser_navigate",
		Description: "navigate to external-payment-site.example",
		Target:      "https://external-payment-site.example/checkout",
		Arguments:   json.RawMessage(`{"url":"https://external-payment-site.example/checkout"}`),
		AutoExecute: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, a.RiskLevel)
	assert.Equal(t, domain.StatusPending, a.Status)
	assert.True(t, a.Reversible)
	assert.Empty(t, f.runner.calls(), "high risk must not run before approval")

	pending := f.queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	approved, err := f.queue.Approve(ctx, a.ID, "user")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	assert.Empty(t, f.queue.Pending())
	assert.Empty(t, f.runner.calls(), "approval must not execute")

	done, err := f.queue.Execute(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, done.Status)

	latest := f.queue.Ledger().Entries(1)
	require.Len(t, latest, 1)
	assert.Equal(t, a.ID, latest[0].ID)
	assert.Equal(t, "browser_navigate", latest[0].ActionType)
	assert.Equal(t, domain.StatusExecuted, latest[0].Status)

	hist := f.queue.Ledger().ForAction(a.ID)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.StatusApproved, hist[0].Status)
	assert.Equal(t, "user", hist[0].ResolvedBy)

	require.Equal(t, 1, f.queue.UndoStack().Len())
	undo := f.queue.UndoStack().List()[0]
	assert.Equal(t, a.ID, undo.ActionID)
	assert.Len(t, undo.ID, 26)
}

func TestQueue_LowRiskAutoExecutes(t *testing.T) {
	f := newFixture(AutonomyAssisted)

	a, err := f.queue.Submit(context.Background(), domain.ActionProposal{
		ActionType:  "browser_highlight",
		Description: "highlight matched text",
		Arguments:   json.RawMessage(`{"text":"install"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, a.Status)
	assert.Empty(t, f.queue.Pending())

	calls := f.runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "browser_highlight", calls[0].ToolName)
	assert.Equal(t, "action-1", calls[0].RequestID)

	latest := f.queue.Ledger().Entries(1)
	require.Len(t, latest, 1)
	assert.Equal(t, domain.StatusExecuted, latest[0].Status)
	assert.Equal(t, ResolvedByPolicy, f.queue.Ledger().ForAction(a.ID)[0].ResolvedBy)
	assert.Zero(t, f.queue.UndoStack().Len(), "highlight is not reversible")
}

func TestQueue_ManualAutonomyParksEverything(t *testing.T) {
	f := newFixture(AutonomyManual)
	a, err := f.queue.Submit(context.Background(), domain.ActionProposal{ActionType: "browser_highlight"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, a.Status)
	assert.Equal(t, domain.RiskLow, a.RiskLevel)
}

func TestQueue_IDsAreMonotonic(t *testing.T) {
	f := newFixture(AutonomyManual)
	var ids []uint64
	for i := 0; i < 5; i++ {
		a, err := f.queue.Submit(context.Background(), domain.ActionProposal{ActionType: "shell_exec"})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)
}

func TestQueue_ResolutionIsIdempotent(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()
	a, err := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "shell_exec"})
	require.NoError(t, err)

	_, err = f.queue.Deny(ctx, a.ID, "user", "looks dangerous")
	require.NoError(t, err)
	before := f.queue.Ledger().Len()

	_, err = f.queue.Deny(ctx, a.ID, "user", "again")
	assert.ErrorIs(t, err, domain.ErrActionNotFound)
	_, err = f.queue.Approve(ctx, a.ID, "user")
	assert.ErrorIs(t, err, domain.ErrActionNotFound)
	assert.Equal(t, before, f.queue.Ledger().Len(), "no double counting")

	denied := f.queue.Ledger().Entries(1)[0]
	assert.Equal(t, domain.StatusDenied, denied.Status)
	assert.Equal(t, "looks dangerous", denied.Reason)

	_, err = f.queue.Approve(ctx, 999, "user")
	assert.ErrorIs(t, err, domain.ErrActionNotFound)
	assert.Equal(t, domain.CodeActionNotFound, domain.ErrorCodeOf(err))
}

func TestQueue_ApproveTwice(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()
	a, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "shell_exec"})

	_, err := f.queue.Approve(ctx, a.ID, "user")
	require.NoError(t, err)
	_, err = f.queue.Approve(ctx, a.ID, "user")
	assert.ErrorIs(t, err, domain.ErrActionNotFound)
	require.Len(t, f.queue.Approved(), 1)
}

func TestQueue_ExecuteRequiresApproval(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()
	a, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "shell_exec"})

	_, err := f.queue.Execute(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, f.runner.calls())

	_, err = f.queue.Execute(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrActionNotFound)

	_, err = f.queue.Approve(ctx, a.ID, "user")
	require.NoError(t, err)
	_, err = f.queue.Execute(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.queue.Execute(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrActionNotFound, "an executed action cannot run twice")
}

func TestQueue_ExecuteFailureIsRecorded(t *testing.T) {
	f := newFixture(AutonomyManual)
	f.runner.invokeFn = func(context.Context, domain.ToolRequest) (*domain.ToolResponse, error) {
		return &domain.ToolResponse{Success: false}, domain.NewMcpError(domain.McpExecutionFailed, "shell_exec", "exit status 1")
	}
	ctx := context.Background()
	a, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "shell_exec"})
	_, _ = f.queue.Approve(ctx, a.ID, "user")

	done, err := f.queue.Execute(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, done.Status)

	last := f.queue.Ledger().Entries(1)[0]
	assert.Equal(t, domain.StatusFailed, last.Status)
	assert.Contains(t, last.Error, "exit status 1")
}

func TestQueue_ReversibleWithoutPreStateStillRuns(t *testing.T) {
	f := newFixture(AutonomyManual)
	f.runner.inverseFn = func(context.Context, domain.ToolRequest) (*domain.ToolRequest, error) {
		return nil, errors.New("no current page")
	}
	ctx := context.Background()
	a, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "browser_navigate", Target: "https://docs.example.com"})
	_, _ = f.queue.Approve(ctx, a.ID, "user")

	done, err := f.queue.Execute(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, done.Status)
	assert.Zero(t, f.queue.UndoStack().Len())
}

func TestQueue_UpdateArguments(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()
	a, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "shell_exec", Arguments: json.RawMessage(`{"command":"ls"}`)})

	_, err := f.queue.UpdateArguments(ctx, a.ID, json.RawMessage(`{bad`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	updated, err := f.queue.UpdateArguments(ctx, a.ID, json.RawMessage(`{"command":"pwd"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"pwd"}`, string(updated.Arguments))

	_, _ = f.queue.Approve(ctx, a.ID, "user")
	_, err = f.queue.UpdateArguments(ctx, a.ID, json.RawMessage(`{"command":"rm"}`))
	assert.ErrorIs(t, err, domain.ErrActionNotFound, "only pending actions are editable")

	_, _ = f.queue.Execute(ctx, a.ID)
	require.Len(t, f.runner.calls(), 1)
	assert.JSONEq(t, `{"command":"pwd"}`, string(f.runner.calls()[0].Arguments))
}

func TestQueue_UpdateArgumentsReclassifies(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()
	a, err := f.queue.Submit(ctx, domain.ActionProposal{
		ActionType: "browser_navigate",
		Target:     "https://docs.example.com",
		Arguments:  json.RawMessage(`{"url":"https://docs.example.com"}`),
	})
	require.NoError(t, err)
	require.Equal(t, domain.RiskMedium, a.RiskLevel)

	edited, err := f.queue.UpdateArguments(ctx, a.ID, json.RawMessage(`{"url":"https://external-payment-site.example"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, edited.RiskLevel)
	assert.Equal(t, "https://external-payment-site.example", edited.Target)

	back, err := f.queue.UpdateArguments(ctx, a.ID, json.RawMessage(`{"url":"https://docs.example.com/guide"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, back.RiskLevel, "an edit never lowers risk")

	_, _ = f.queue.Approve(ctx, a.ID, "user")
	_, _ = f.queue.Execute(ctx, a.ID)
	latest := f.queue.Ledger().Entries(1)
	require.Len(t, latest, 1)
	assert.Equal(t, domain.RiskHigh, latest[0].RiskLevel)
}

func TestQueue_MismatchedNavigationNeverAutoExecutes(t *testing.T) {
	f := newFixture(AutonomyAutonomous)
	a, err := f.queue.Submit(context.Background(), domain.ActionProposal{
		ActionType:  "browser_navigate",
		Target:      "https://docs.example.com",
		Arguments:   json.RawMessage(`{"url":"https://external-payment-site.example/pay"}`),
		AutoExecute: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, a.RiskLevel)
	assert.Equal(t, domain.StatusPending, a.Status)
	assert.Empty(t, f.runner.calls())
}

func TestQueue_SubmitValidation(t *testing.T) {
	f := newFixture(AutonomyManual)
	_, err := f.queue.Submit(context.Background(), domain.ActionProposal{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.queue.Submit(context.Background(), domain.ActionProposal{ActionType: "x", Arguments: json.RawMessage(`nope`)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQueue_Sweep(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()
	old, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "shell_exec"})
	f.advance(30 * time.Second)
	fresh, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "shell_exec"})
	f.advance(30 * time.Second)

	expired := f.queue.Sweep(ctx)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
	assert.Equal(t, domain.StatusExpired, expired[0].Status)

	pending := f.queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.ID, pending[0].ID)

	_, err := f.queue.Approve(ctx, old.ID, "user")
	assert.ErrorIs(t, err, domain.ErrActionNotFound, "expired actions never come back")

	last := f.queue.Ledger().Entries(1)[0]
	assert.Equal(t, domain.StatusExpired, last.Status)
	assert.Equal(t, ResolvedBySweeper, last.ResolvedBy)
}

func TestQueue_Undo(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()

	_, err := f.queue.Undo(ctx)
	assert.ErrorIs(t, err, domain.ErrUndoEmpty)

	a, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "browser_navigate", Target: "https://docs.example.com/a"})
	_, _ = f.queue.Approve(ctx, a.ID, "user")
	_, _ = f.queue.Execute(ctx, a.ID)

	entry, err := f.queue.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, entry.ActionID)

	calls := f.runner.calls()
	require.Len(t, calls, 2)
	assert.JSONEq(t, `{"url":"https://previous.example"}`, string(calls[1].Arguments))
	assert.Zero(t, f.queue.UndoStack().Len())
}

func TestQueue_FailedUndoIsTerminal(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()
	a, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "browser_navigate", Target: "https://docs.example.com/a"})
	_, _ = f.queue.Approve(ctx, a.ID, "user")
	_, _ = f.queue.Execute(ctx, a.ID)

	f.runner.invokeFn = func(context.Context, domain.ToolRequest) (*domain.ToolResponse, error) {
		return nil, errors.New("browser closed")
	}
	entry, err := f.queue.Undo(ctx)
	require.Error(t, err)
	require.NotNil(t, entry)
	assert.Zero(t, f.queue.UndoStack().Len(), "failed undo must not be restored")

	_, err = f.queue.Undo(ctx)
	assert.ErrorIs(t, err, domain.ErrUndoEmpty)
}

func TestQueue_NoResolvedActionReturnsToPending(t *testing.T) {
	f := newFixture(AutonomyAssisted)
	ctx := context.Background()

	var ids []uint64
	for _, typ := range []string{"shell_exec", "shell_exec", "shell_exec", "browser_highlight"} {
		a, err := f.queue.Submit(ctx, domain.ActionProposal{ActionType: typ})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	_, _ = f.queue.Approve(ctx, ids[0], "user")
	_, _ = f.queue.Execute(ctx, ids[0])
	_, _ = f.queue.Deny(ctx, ids[1], "user", "")
	f.advance(2 * time.Minute)
	f.queue.Sweep(ctx)

	// Hammer every operation on every id; none may resurrect an action.
	for _, id := range ids {
		_, _ = f.queue.Approve(ctx, id, "user")
		_, _ = f.queue.Deny(ctx, id, "user", "")
		_, _ = f.queue.Execute(ctx, id)
		_, _ = f.queue.UpdateArguments(id, json.RawMessage(`{}`))
	}
	f.queue.Sweep(ctx)
	assert.Empty(t, f.queue.Pending())

	for _, e := range f.queue.Ledger().Entries(0) {
		assert.NotEqual(t, domain.StatusPending, e.Status)
	}
}

func TestQueue_HighRiskNeverExecutesWithoutApproval(t *testing.T) {
	for _, autonomy := range []Autonomy{AutonomyManual, AutonomyAssisted, AutonomyAutonomous} {
		f := newFixture(autonomy)
		ctx := context.Background()
		for _, prop := range []domain.ActionProposal{
			{ActionType: "shell_exec", AutoExecute: true, RiskHint: domain.RiskLow},
			{ActionType: "browser_submit", AutoExecute: true},
			{ActionType: "browser_highlight", AutoExecute: true, RiskHint: domain.RiskHigh},
			{ActionType: "unknown", AutoExecute: true},
		} {
			_, err := f.queue.Submit(ctx, prop)
			require.NoError(t, err)
		}
		f.queue.Sweep(ctx)
		assert.Empty(t, f.runner.calls(), string(autonomy))

		for _, e := range f.queue.Ledger().Entries(0) {
			if e.RiskLevel == domain.RiskHigh && e.Status == domain.StatusExecuted {
				t.Fatalf("high risk action %d executed without approval", e.ID)
			}
		}
	}
}

func TestQueue_AuditTrail(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()
	a, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "shell_exec"})
	_, _ = f.queue.Deny(ctx, a.ID, "alice", "no")

	require.Len(t, f.audit.events, 1)
	ev := f.audit.events[0]
	assert.Equal(t, domain.AuditActionResolved, ev.Type)
	assert.Equal(t, "denied", ev.Outcome)
	assert.Equal(t, "alice", ev.Detail["resolved_by"])
}

func TestQueue_ConcurrentApproveDeny(t *testing.T) {
	f := newFixture(AutonomyManual)
	ctx := context.Background()
	a, _ := f.queue.Submit(ctx, domain.ActionProposal{ActionType: "shell_exec"})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.queue.Approve(ctx, a.ID, "user")
			} else {
				_, err = f.queue.Deny(ctx, a.ID, "user", "")
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "exactly one resolution may win")
	assert.Len(t, f.queue.Ledger().ForAction(a.ID), 1)
}
