package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"wayfinder/internal/domain"
	"wayfinder/internal/usecase/agents"
)

// Trigger kinds understood by the Dispatcher.
const (
	TriggerTimerTick   = "timer_tick"
	TriggerPageChange  = "page_change"
	TriggerUserCommand = "user_command"
)

// Snapshot storage location in the scoped store.
const (
	snapshotScope = "wayfinder"
	snapshotKey   = "context"
)

// transientMeta are per-run metadata keys dropped once a run is folded back.
var transientMeta = []string{
	agents.MetaCommand, agents.MetaCelebrate, agents.MetaWantHint, agents.MetaCandidate,
}

// Trigger is one reason to run a workflow.
type Trigger struct {
	Kind    string `json:"kind"`
	Command string `json:"command,omitempty"` // user_command only
}

// PageUpdate describes the page the user is looking at.
type PageUpdate struct {
	Location   string `json:"location"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

// ProposalSink receives the outputs of finished runs so action proposals
// can be queued. *action.Interceptor implements it.
type ProposalSink interface {
	InterceptAll(ctx context.Context, outs []*domain.AgentOutput) []*domain.PendingAction
}

// IdleSource reports whether the user is away.
type IdleSource interface {
	IsIdle() bool
}

// DispatcherConfig maps trigger kinds to workflow names.
type DispatcherConfig struct {
	Routes map[string]string
}

// Dispatcher owns the live AgentContext, turns triggers into workflow runs
// and folds their results back.
type Dispatcher struct {
	cfg       DispatcherConfig
	workflows map[string]Workflow
	runs      domain.WorkflowStore // optional
	kv        domain.ScopedStore   // optional
	sink      ProposalSink         // optional
	idle      IdleSource           // optional
	bus       domain.EventBus      // optional
	logger    *slog.Logger

	mu   sync.RWMutex
	actx domain.AgentContext

	flightMu sync.Mutex
	inflight *CancelHandle // latest page-change run
}

// NewDispatcher creates a Dispatcher. All collaborators except logger may be nil.
func NewDispatcher(cfg DispatcherConfig, runs domain.WorkflowStore, kv domain.ScopedStore, sink ProposalSink, bus domain.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		workflows: make(map[string]Workflow),
		runs:      runs,
		kv:        kv,
		sink:      sink,
		bus:       bus,
		logger:    logger,
	}
}

// SetIdleSource makes timer ticks skip while src reports idle.
func (d *Dispatcher) SetIdleSource(src IdleSource) { d.idle = src }

// Register adds a workflow under its name.
func (d *Dispatcher) Register(wf Workflow) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.workflows[wf.Name()]; ok {
		return domain.NewSubSystemError("workflow", "Dispatcher.Register", domain.ErrDuplicate, wf.Name())
	}
	d.workflows[wf.Name()] = wf
	return nil
}

// Context returns a copy of the live context.
func (d *Dispatcher) Context() domain.AgentContext {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.actx.Clone()
}

// SetGoal replaces the goal and resets goal-derived state.
func (d *Dispatcher) SetGoal(ctx context.Context, goal *domain.Goal) {
	d.mu.Lock()
	if goal != nil {
		g := *goal
		d.actx.Goal = &g
	} else {
		d.actx.Goal = nil
	}
	d.actx.Proximity = 0
	d.actx.Planning = nil
	d.actx.HintsGiven = 0
	d.actx.Metadata = nil
	snap := d.actx.Clone()
	d.mu.Unlock()

	d.logger.Info("goal set", "goal", goalID(goal))
	d.saveSnapshot(ctx, snap)
}

// UpdatePage records what the user is looking at.
func (d *Dispatcher) UpdatePage(ctx context.Context, p PageUpdate) {
	d.mu.Lock()
	d.actx.Location = p.Location
	d.actx.PageTitle = p.Title
	d.actx.PageContent = p.Content
	d.actx.Screenshot = p.Screenshot
	snap := d.actx.Clone()
	d.mu.Unlock()

	d.saveSnapshot(ctx, snap)
}

// Restore loads the last persisted context snapshot, if any.
func (d *Dispatcher) Restore(ctx context.Context) error {
	if d.kv == nil {
		return nil
	}
	data, err := d.kv.Get(ctx, snapshotScope, snapshotKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return domain.WrapOp("Dispatcher.Restore", err)
	}
	var actx domain.AgentContext
	if err := json.Unmarshal(data, &actx); err != nil {
		return domain.WrapOp("Dispatcher.Restore", err)
	}
	actx.Screenshot = ""

	d.mu.Lock()
	d.actx = actx
	d.mu.Unlock()
	d.logger.Info("context restored", "location", actx.Location, "goal", goalID(actx.Goal))
	return nil
}

// Dispatch runs the workflow routed to trig and folds its result into the
// live context. A page change cancels the previous page-change run. Timer
// ticks while the user is idle are skipped and return (nil, nil).
func (d *Dispatcher) Dispatch(ctx context.Context, trig Trigger) (*domain.WorkflowRun, error) {
	name, ok := d.cfg.Routes[trig.Kind]
	if !ok {
		return nil, domain.NewSubSystemError("workflow", "Dispatcher.Dispatch", domain.ErrNotFound, "no route for "+trig.Kind)
	}
	d.mu.RLock()
	wf, ok := d.workflows[name]
	d.mu.RUnlock()
	if !ok {
		return nil, domain.NewSubSystemError("workflow", "Dispatcher.Dispatch", domain.ErrNotFound, name)
	}

	if trig.Kind == TriggerTimerTick && d.idle != nil && d.idle.IsIdle() {
		d.logger.Debug("tick skipped while idle", "workflow", name)
		return nil, nil
	}

	actx := d.Context()
	if trig.Kind == TriggerUserCommand {
		actx = actx.WithMetadata(agents.MetaCommand, trig.Command)
	}

	h := NewCancelHandle()
	if trig.Kind == TriggerPageChange {
		d.flightMu.Lock()
		if d.inflight != nil {
			d.inflight.Cancel()
		}
		d.inflight = h
		d.flightMu.Unlock()
		defer func() {
			d.flightMu.Lock()
			if d.inflight == h {
				d.inflight = nil
			}
			d.flightMu.Unlock()
		}()
	}

	now := time.Now()
	run := domain.WorkflowRun{
		ID:        generateRunID(now),
		Workflow:  name,
		Trigger:   trig.Kind,
		Status:    domain.RunRunning,
		Proximity: actx.Proximity,
		CreatedAt: now,
	}
	d.saveRun(ctx, run)
	d.emitEvent(ctx, domain.EventWorkflowStarted, map[string]string{
		"run_id":   run.ID,
		"workflow": name,
		"trigger":  trig.Kind,
	})

	res, err := RunCancellable(ctx, wf, actx, h)

	run.FinishedAt = time.Now()
	for _, out := range res.Outputs {
		run.Outputs = append(run.Outputs, *out)
	}

	switch {
	case err == nil:
		run.Status = domain.RunCompleted
		run.Proximity = d.apply(ctx, res)
		if d.sink != nil {
			if queued := d.sink.InterceptAll(ctx, res.Outputs); len(queued) > 0 {
				d.logger.Info("actions proposed", "run_id", run.ID, "count", len(queued))
			}
		}
		d.emitEvent(ctx, domain.EventWorkflowCompleted, map[string]any{
			"run_id":    run.ID,
			"workflow":  name,
			"proximity": run.Proximity,
			"message":   narration(res.Outputs),
		})
	case domain.IsCancelled(err):
		run.Status = domain.RunCancelled
		d.logger.Info("workflow cancelled", "run_id", run.ID, "workflow", name)
		d.emitEvent(ctx, domain.EventWorkflowCancelled, map[string]string{
			"run_id":   run.ID,
			"workflow": name,
		})
	default:
		run.Status = domain.RunFailed
		run.Error = err.Error()
		d.logger.Warn("workflow failed", "run_id", run.ID, "workflow", name, "error", err)
		d.emitEvent(ctx, domain.EventWorkflowFailed, map[string]string{
			"run_id":   run.ID,
			"workflow": name,
			"error":    run.Error,
		})
	}

	d.saveRun(ctx, run)
	return &run, err
}

// apply folds a finished run into the live context and returns the new
// proximity. Page fields written since the run started are preserved.
func (d *Dispatcher) apply(ctx context.Context, res Result) float64 {
	d.mu.Lock()
	merged := FoldAll(d.actx, res.Outputs)
	if res.Context.Planning != nil {
		merged.Planning = res.Context.Planning.Clone()
	}
	for _, k := range transientMeta {
		delete(merged.Metadata, k)
	}
	d.actx = merged
	snap := merged.Clone()
	d.mu.Unlock()

	d.saveSnapshot(ctx, snap)
	return snap.Proximity
}

// narration returns the last thing the narrator said in outs, if anything.
func narration(outs []*domain.AgentOutput) string {
	for i := len(outs) - 1; i >= 0; i-- {
		if outs[i].Agent == agents.NameNarrator && outs[i].Result != "" {
			return outs[i].Result
		}
	}
	return ""
}

// Start subscribes to trigger events on the bus. Runs use ctx rather than
// the publisher's context. The returned function unsubscribes.
func (d *Dispatcher) Start(ctx context.Context) func() {
	if d.bus == nil {
		return func() {}
	}
	handle := func(kind string, decode func(domain.Event) Trigger) domain.EventHandler {
		return func(_ context.Context, ev domain.Event) {
			if ctx.Err() != nil {
				return
			}
			trig := decode(ev)
			trig.Kind = kind
			if kind == TriggerPageChange {
				var p PageUpdate
				if err := json.Unmarshal(ev.Payload, &p); err != nil {
					d.logger.Warn("bad page payload", "error", err)
					return
				}
				d.UpdatePage(ctx, p)
			}
			if _, err := d.Dispatch(ctx, trig); err != nil && !domain.IsCancelled(err) {
				d.logger.Debug("triggered run ended with error", "trigger", kind, "error", err)
			}
		}
	}
	plain := func(domain.Event) Trigger { return Trigger{} }
	command := func(ev domain.Event) Trigger {
		var p struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal(ev.Payload, &p)
		return Trigger{Command: p.Command}
	}

	unsubs := []func(){
		d.bus.Subscribe(domain.EventTimerTick, handle(TriggerTimerTick, plain)),
		d.bus.Subscribe(domain.EventPageChanged, handle(TriggerPageChange, plain)),
		d.bus.Subscribe(domain.EventUserCommand, handle(TriggerUserCommand, command)),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (d *Dispatcher) saveRun(ctx context.Context, run domain.WorkflowRun) {
	if d.runs == nil {
		return
	}
	if err := d.runs.SaveRun(ctx, run); err != nil {
		d.logger.Warn("failed to save workflow run", "run_id", run.ID, "error", err)
	}
}

func (d *Dispatcher) saveSnapshot(ctx context.Context, actx domain.AgentContext) {
	if d.kv == nil {
		return
	}
	actx.Screenshot = ""
	data, err := json.Marshal(actx)
	if err != nil {
		d.logger.Warn("failed to encode context snapshot", "error", err)
		return
	}
	if err := d.kv.Set(ctx, snapshotScope, snapshotKey, data); err != nil {
		d.logger.Warn("failed to persist context snapshot", "error", err)
	}
}

func (d *Dispatcher) emitEvent(ctx context.Context, eventType domain.EventType, payload any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, domain.NewEvent(eventType, payload))
}

func goalID(g *domain.Goal) string {
	if g == nil {
		return ""
	}
	return g.ID
}

func generateRunID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
