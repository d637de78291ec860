// Package workflow composes agents into control-flow strategies: sequential
// pipelines, parallel fan-out, self-correcting loops, generator/critic
// reflection and strategy-driven planning.
//
// Cancellation is cooperative. Workflows poll their context at iteration
// boundaries, race it against in-flight agent calls and against delays.
// An agent call that has already returned is always folded in; an agent
// call that is still running when cancellation wins the race is abandoned
// and its result discarded.
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/tracer"
)

// Workflow orchestrates one or more agents against a context snapshot.
type Workflow interface {
	Name() string
	// Execute runs the workflow. On error, Result holds whatever was
	// produced before the failure.
	Execute(ctx context.Context, actx domain.AgentContext) (Result, error)
}

// Result is what a workflow invocation produced.
type Result struct {
	Outputs []*domain.AgentOutput
	// Context is the working context after all outputs were folded in.
	Context domain.AgentContext
}

// Last returns the final output, or nil.
func (r Result) Last() *domain.AgentOutput {
	if len(r.Outputs) == 0 {
		return nil
	}
	return r.Outputs[len(r.Outputs)-1]
}

// CancelHandle is an external cancellation signal that can be shared by
// the caller and any number of workflow invocations.
type CancelHandle struct {
	once sync.Once
	done chan struct{}
}

// NewCancelHandle returns an untriggered handle.
func NewCancelHandle() *CancelHandle {
	return &CancelHandle{done: make(chan struct{})}
}

// Cancel triggers the handle. Safe to call more than once.
func (h *CancelHandle) Cancel() {
	h.once.Do(func() { close(h.done) })
}

// Done is closed once Cancel has been called.
func (h *CancelHandle) Done() <-chan struct{} { return h.done }

// Cancelled reports whether Cancel has been called.
func (h *CancelHandle) Cancelled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// RunCancellable executes wf, racing it against h. A triggered handle
// yields a Cancelled error even if the workflow itself would have
// finished its current step.
func RunCancellable(ctx context.Context, wf Workflow, actx domain.AgentContext, h *CancelHandle) (Result, error) {
	if h == nil {
		return wf.Execute(ctx, actx)
	}
	if h.Cancelled() {
		return Result{Context: actx}, domain.Cancelled(wf.Name())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := wf.Execute(ctx, actx)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && h.Cancelled() {
			return o.res, domain.Cancelled(wf.Name())
		}
		return o.res, o.err
	case <-h.Done():
		return Result{Context: actx}, domain.Cancelled(wf.Name())
	}
}

// invoke runs one agent call raced against ctx. A call abandoned by
// cancellation keeps running in its goroutine until it returns; its result
// is dropped.
func invoke(ctx context.Context, a domain.Agent, actx domain.AgentContext) (*domain.AgentOutput, error) {
	if ctx.Err() != nil {
		return nil, domain.Cancelled(a.Name())
	}

	ctx, span := tracer.StartSpan(ctx, "agent.process")
	span.SetAttributes(tracer.StringAttr("agent.name", a.Name()))

	type outcome struct {
		out *domain.AgentOutput
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		out, err := a.Process(ctx, actx.Clone())
		ch <- outcome{out, err}
	}()

	select {
	case o := <-ch:
		err := o.err
		if err == nil && o.out == nil {
			err = domain.NewAgentError(a.Name(), domain.ErrProcessing, "agent returned no output", nil)
		}
		if err != nil && errors.Is(err, context.Canceled) && !domain.IsCancelled(err) {
			err = domain.Cancelled(a.Name())
		}
		if err != nil {
			tracer.Finish(span, err)
			return nil, err
		}
		span.SetAttributes(tracer.FloatAttr("agent.confidence", o.out.Confidence))
		tracer.Finish(span, nil)
		return o.out, nil
	case <-ctx.Done():
		err := domain.Cancelled(a.Name())
		tracer.Finish(span, err)
		return nil, err
	}
}

// sleep waits for d or until ctx is done. Returns Cancelled on the latter.
func sleep(ctx context.Context, name string, d time.Duration) error {
	if d <= 0 {
		return ctxCancelled(ctx, name)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return domain.Cancelled(name)
	}
}

// ctxCancelled returns Cancelled when ctx is already done.
func ctxCancelled(ctx context.Context, name string) error {
	if ctx.Err() != nil {
		return domain.Cancelled(name)
	}
	return nil
}

// startSpan opens the per-invocation span for a workflow kind.
func startSpan(ctx context.Context, kind, name string) (context.Context, func(error)) {
	ctx, span := tracer.StartSpan(ctx, "workflow."+kind)
	span.SetAttributes(tracer.StringAttr("workflow.name", name))
	return ctx, func(err error) { tracer.Finish(span, err) }
}
