package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/tracer"
	"wayfinder/internal/security"
)

// DefaultTTL is how long an action may wait for confirmation.
const DefaultTTL = 60 * time.Second

// Resolvers recorded in the ledger when no user is involved.
const (
	ResolvedByPolicy  = "policy"
	ResolvedBySweeper = "sweeper"
	ResolvedByRunner  = "runner"
)

// ToolRunner dispatches approved actions through the capability registry.
type ToolRunner interface {
	InvokeTool(ctx context.Context, req domain.ToolRequest) (*domain.ToolResponse, error)
	Inverse(ctx context.Context, req domain.ToolRequest) (*domain.ToolRequest, error)
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	TTL            time.Duration
	ExecuteTimeout time.Duration // zero = bounded only by the capability layer
}

// Queue holds actions awaiting confirmation and drives them through
// Pending -> Approved -> Executed/Failed, or Pending -> Denied/Expired.
// Resolved actions leave the live maps and exist only in the ledger.
type Queue struct {
	mu       sync.RWMutex
	pending  map[uint64]*domain.PendingAction
	approved map[uint64]*domain.PendingAction
	lastID   uint64

	cfg    QueueConfig
	policy *Policy
	ledger *Ledger
	undo   *UndoStack
	runner ToolRunner
	bus    domain.EventBus    // optional
	audit  domain.AuditLogger // optional
	logger *slog.Logger

	now func() time.Time
}

// NewQueue wires a queue. bus and audit may be nil.
func NewQueue(
	cfg QueueConfig,
	policy *Policy,
	ledger *Ledger,
	undo *UndoStack,
	runner ToolRunner,
	bus domain.EventBus,
	audit domain.AuditLogger,
	logger *slog.Logger,
) *Queue {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Queue{
		pending:  make(map[uint64]*domain.PendingAction),
		approved: make(map[uint64]*domain.PendingAction),
		cfg:      cfg,
		policy:   policy,
		ledger:   ledger,
		undo:     undo,
		runner:   runner,
		bus:      bus,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// Ledger returns the resolution history.
func (q *Queue) Ledger() *Ledger { return q.ledger }

// UndoStack returns the undo stack.
func (q *Queue) UndoStack() *UndoStack { return q.undo }

// Submit classifies a proposal. Actions the policy allows to auto-execute
// run immediately and never enter the pending map; everything else waits
// for Approve or Deny. The returned action reflects its state on return.
func (q *Queue) Submit(ctx context.Context, prop domain.ActionProposal) (*domain.PendingAction, error) {
	if prop.ActionType == "" {
		return nil, domain.NewSubSystemError("action", "Queue.Submit", domain.ErrInvalidInput, "empty action type")
	}
	if len(prop.Arguments) > 0 && !json.Valid(prop.Arguments) {
		return nil, domain.NewSubSystemError("action", "Queue.Submit", domain.ErrInvalidInput, "arguments are not valid JSON")
	}

	risk := q.policy.Classify(prop)
	a := &domain.PendingAction{
		ActionType:  prop.ActionType,
		Description: prop.Description,
		Target:      prop.Target,
		RiskLevel:   risk,
		Status:      domain.StatusPending,
		CreatedAt:   q.now(),
		Reason:      prop.Reason,
		Arguments:   cloneRaw(prop.Arguments),
		Source:      prop.Source,
		Reversible:  q.policy.Reversible(prop.ActionType),
	}

	if q.policy.ShouldAutoExecute(risk, prop) {
		q.mu.Lock()
		q.lastID++
		a.ID = q.lastID
		q.mu.Unlock()

		a.Status = domain.StatusApproved
		q.record(ctx, a, ResolvedByPolicy, "")
		q.logger.Info("action auto-approved", "id", a.ID, "type", a.ActionType, "risk", string(risk))
		return q.execute(ctx, a), nil
	}

	q.mu.Lock()
	q.lastID++
	a.ID = q.lastID
	q.pending[a.ID] = a
	snapshot := *a
	q.mu.Unlock()

	q.logger.Info("action pending confirmation", "id", a.ID, "type", a.ActionType, "risk", string(risk))
	q.publish(ctx, domain.EventActionPending, snapshot)
	return &snapshot, nil
}

// Pending lists actions awaiting confirmation, oldest first.
func (q *Queue) Pending() []domain.PendingAction {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return sortedCopy(q.pending)
}

// Approved lists approved actions not yet executed, oldest first.
func (q *Queue) Approved() []domain.PendingAction {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return sortedCopy(q.approved)
}

// Get returns a live (pending or approved) action.
func (q *Queue) Get(id uint64) (*domain.PendingAction, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if a, ok := q.pending[id]; ok {
		cp := *a
		return &cp, nil
	}
	if a, ok := q.approved[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, notFound("Queue.Get", id)
}

// UpdateArguments replaces the arguments of a pending action, for a
// preview-and-edit step before approval. A "url" argument becomes the new
// target, and the action is classified again; the edit can raise its risk
// level but never lower it.
func (q *Queue) UpdateArguments(ctx context.Context, id uint64, args json.RawMessage) (*domain.PendingAction, error) {
	if len(args) > 0 && !json.Valid(args) {
		return nil, domain.NewSubSystemError("action", "Queue.UpdateArguments", domain.ErrInvalidInput, "arguments are not valid JSON")
	}
	q.mu.Lock()
	a, ok := q.pending[id]
	if !ok {
		q.mu.Unlock()
		return nil, notFound("Queue.UpdateArguments", id)
	}
	a.Arguments = cloneRaw(args)
	if u := URLArgument(a.Arguments); u != "" {
		a.Target = u
	}
	a.RiskLevel = q.policy.Classify(domain.ActionProposal{
		ActionType: a.ActionType,
		Target:     a.Target,
		Arguments:  a.Arguments,
		RiskHint:   a.RiskLevel,
	})
	cp := *a
	q.mu.Unlock()

	q.logger.Info("pending action edited", "id", id, "risk", string(cp.RiskLevel))
	q.publish(ctx, domain.EventActionPending, cp)
	return &cp, nil
}

// Approve moves a pending action to Approved. It does not execute it.
// A second call for the same id returns ErrActionNotFound.
func (q *Queue) Approve(ctx context.Context, id uint64, by string) (*domain.PendingAction, error) {
	a, err := q.resolvePending(id, domain.StatusApproved, "", "Queue.Approve")
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	q.approved[id] = a
	snapshot := *a
	q.mu.Unlock()

	q.record(ctx, &snapshot, by, "")
	q.publish(ctx, domain.EventActionApproved, snapshot)
	return &snapshot, nil
}

// Deny rejects a pending action.
func (q *Queue) Deny(ctx context.Context, id uint64, by, reason string) (*domain.PendingAction, error) {
	a, err := q.resolvePending(id, domain.StatusDenied, reason, "Queue.Deny")
	if err != nil {
		return nil, err
	}
	q.record(ctx, a, by, "")
	q.publish(ctx, domain.EventActionDenied, *a)
	return a, nil
}

// Execute runs an approved action and reports Executed or Failed. A tool
// failure is recorded on the action, not returned as an error.
func (q *Queue) Execute(ctx context.Context, id uint64) (*domain.PendingAction, error) {
	q.mu.Lock()
	a, ok := q.approved[id]
	if ok {
		delete(q.approved, id)
	}
	q.mu.Unlock()
	if !ok {
		if _, waiting := q.pendingSnapshot(id); waiting {
			return nil, domain.NewSubSystemError("action", "Queue.Execute", domain.ErrInvalidTransition,
				fmt.Sprintf("action %d is not approved", id))
		}
		return nil, notFound("Queue.Execute", id)
	}
	return q.execute(ctx, a), nil
}

// Sweep expires pending actions older than the TTL and returns them.
func (q *Queue) Sweep(ctx context.Context) []domain.PendingAction {
	now := q.now()

	var expired []domain.PendingAction
	q.mu.Lock()
	err := security.Recover(q.logger, "queue.sweep", func() {
		for id, a := range q.pending {
			if now.Sub(a.CreatedAt) < q.cfg.TTL {
				continue
			}
			a.Status = domain.StatusExpired
			delete(q.pending, id)
			expired = append(expired, *a)
		}
	}, func() {
		// Rebuild from entries that are still genuinely pending.
		rebuilt := make(map[uint64]*domain.PendingAction, len(q.pending))
		for id, a := range q.pending {
			if a != nil && a.Status == domain.StatusPending {
				rebuilt[id] = a
			}
		}
		q.pending = rebuilt
	})
	q.mu.Unlock()
	if err != nil {
		return nil
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	for i := range expired {
		q.record(ctx, &expired[i], ResolvedBySweeper, "")
		q.publish(ctx, domain.EventActionExpired, expired[i])
	}
	if len(expired) > 0 {
		q.logger.Info("expired pending actions", "count", len(expired))
	}
	return expired
}

// Undo pops the most recent reversible action and dispatches its inverse.
// A failed inverse is terminal: the entry is not pushed back.
func (q *Queue) Undo(ctx context.Context) (*domain.UndoEntry, error) {
	entry, err := q.undo.Pop()
	if err != nil {
		return nil, domain.NewSubSystemError("action", "Queue.Undo", err, "")
	}

	inv := entry.Inverse
	if inv.RequestID == "" {
		inv.RequestID = "undo-" + entry.ID
	}
	_, err = q.runner.InvokeTool(ctx, inv)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	q.auditEvent(ctx, domain.AuditActionUndo, entry.ActionType, "undo", outcome, map[string]string{
		"undo_id":   entry.ID,
		"action_id": strconv.FormatUint(entry.ActionID, 10),
	})
	q.publish(ctx, domain.EventActionUndone, map[string]any{
		"undo_id":   entry.ID,
		"action_id": entry.ActionID,
		"success":   err == nil,
	})

	if err != nil {
		q.logger.Warn("undo failed", "action_id", entry.ActionID, "type", entry.ActionType, "error", err)
		return &entry, fmt.Errorf("undo action %d: %w", entry.ActionID, err)
	}
	q.logger.Info("action undone", "action_id", entry.ActionID, "type", entry.ActionType)
	return &entry, nil
}

func (q *Queue) execute(ctx context.Context, a *domain.PendingAction) *domain.PendingAction {
	ctx, span := tracer.StartSpan(ctx, "action.execute",
		trace.WithAttributes(
			tracer.StringAttr("action.type", a.ActionType),
			tracer.StringAttr("action.risk", string(a.RiskLevel)),
		),
	)
	defer span.End()

	req := domain.ToolRequest{
		ToolName:  a.ActionType,
		Arguments: a.Arguments,
		RequestID: "action-" + strconv.FormatUint(a.ID, 10),
	}

	var inverse *domain.ToolRequest
	if a.Reversible {
		inv, err := q.runner.Inverse(ctx, req)
		if err != nil {
			q.logger.Warn("could not capture pre-state, action will not be undoable",
				"id", a.ID, "type", a.ActionType, "error", err)
		} else {
			inverse = inv
		}
	}

	if q.cfg.ExecuteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.ExecuteTimeout)
		defer cancel()
	}

	_, err := q.runner.InvokeTool(ctx, req)
	result := *a
	errText := ""
	if err != nil {
		result.Status = domain.StatusFailed
		errText = err.Error()
		tracer.RecordError(span, err)
	} else {
		result.Status = domain.StatusExecuted
		tracer.SetOK(span)
	}

	q.record(ctx, &result, ResolvedByRunner, errText)

	if err != nil {
		q.logger.Warn("action failed", "id", a.ID, "type", a.ActionType, "error", err)
		q.publish(ctx, domain.EventActionFailed, result)
		return &result
	}

	if inverse != nil {
		q.undo.Push(domain.UndoEntry{
			ID:          ulid.Make().String(),
			ActionID:    a.ID,
			ActionType:  a.ActionType,
			Description: a.Description,
			Inverse:     *inverse,
			CreatedAt:   q.now(),
		})
	}
	q.logger.Info("action executed", "id", a.ID, "type", a.ActionType)
	q.publish(ctx, domain.EventActionExecuted, result)
	return &result
}

// resolvePending removes id from the pending map and moves it to next.
func (q *Queue) resolvePending(id uint64, next domain.ActionStatus, reason, op string) (*domain.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	a, ok := q.pending[id]
	if !ok {
		return nil, notFound(op, id)
	}
	if !a.Status.CanTransition(next) {
		return nil, domain.NewSubSystemError("action", op, domain.ErrInvalidTransition,
			fmt.Sprintf("%s -> %s", a.Status, next))
	}
	delete(q.pending, id)
	a.Status = next
	if reason != "" {
		a.Reason = reason
	}
	cp := *a
	return &cp, nil
}

func (q *Queue) pendingSnapshot(id uint64) (domain.PendingAction, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	a, ok := q.pending[id]
	if !ok {
		return domain.PendingAction{}, false
	}
	return *a, true
}

func (q *Queue) record(ctx context.Context, a *domain.PendingAction, by, errText string) {
	q.ledger.Append(ctx, domain.LedgerEntry{
		PendingAction: *a,
		ResolvedBy:    by,
		ResolvedAt:    q.now(),
		Error:         errText,
	})
	detail := map[string]string{
		"action_id": strconv.FormatUint(a.ID, 10),
		"status":    string(a.Status),
		"risk":      string(a.RiskLevel),
	}
	if errText != "" {
		detail["error"] = errText
	}
	if by != "" {
		detail["resolved_by"] = by
	}
	outcome := "success"
	if a.Status == domain.StatusDenied || a.Status == domain.StatusExpired || a.Status == domain.StatusFailed {
		outcome = string(a.Status)
	}
	q.auditEvent(ctx, domain.AuditActionResolved, a.ActionType, string(a.Status), outcome, detail)
}

func (q *Queue) auditEvent(ctx context.Context, typ domain.AuditEventType, resource, act, outcome string, detail map[string]string) {
	if q.audit == nil {
		return
	}
	err := q.audit.Log(ctx, domain.AuditEvent{
		Timestamp: q.now(),
		Type:      typ,
		Resource:  resource,
		Action:    act,
		Outcome:   outcome,
		Detail:    detail,
	})
	if err != nil {
		q.logger.Warn("audit write failed", "resource", resource, "error", err)
	}
}

func (q *Queue) publish(ctx context.Context, t domain.EventType, payload any) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(ctx, domain.NewEvent(t, payload))
}

func notFound(op string, id uint64) error {
	return domain.NewSubSystemError("action", op, domain.ErrActionNotFound, strconv.FormatUint(id, 10))
}

func sortedCopy(m map[uint64]*domain.PendingAction) []domain.PendingAction {
	out := make([]domain.PendingAction, 0, len(m))
	for _, a := range m {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return bytes.Clone(raw)
}
