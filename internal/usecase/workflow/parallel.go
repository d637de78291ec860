package workflow

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"wayfinder/internal/domain"
)

// Parallel fans out to every agent that can handle the context and keeps
// the calls that succeed. Failed calls are dropped.
type Parallel struct {
	name   string
	agents []domain.Agent
	limit  int // max concurrent calls; <= 0 means unbounded
	logger *slog.Logger
}

// NewParallel creates a Parallel workflow.
func NewParallel(name string, limit int, logger *slog.Logger, agents ...domain.Agent) *Parallel {
	return &Parallel{name: name, agents: agents, limit: limit, logger: logger}
}

func (p *Parallel) Name() string { return p.name }

func (p *Parallel) Execute(ctx context.Context, actx domain.AgentContext) (res Result, err error) {
	ctx, finish := startSpan(ctx, "parallel", p.name)
	defer func() { finish(err) }()

	res.Context = actx.Clone()
	if err := ctxCancelled(ctx, p.name); err != nil {
		return res, err
	}

	var selected []domain.Agent
	for _, a := range p.agents {
		if a.CanHandle(actx) {
			selected = append(selected, a)
		}
	}

	slots := make([]*domain.AgentOutput, len(selected))
	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, a := range selected {
		g.Go(func() error {
			out, err := invoke(ctx, a, actx)
			if err != nil {
				p.logger.Debug("parallel agent failed", "workflow", p.name, "agent", a.Name(), "error", err)
				return nil
			}
			slots[i] = out
			return nil
		})
	}
	_ = g.Wait()

	if err := ctxCancelled(ctx, p.name); err != nil {
		return res, err
	}
	for _, out := range slots {
		if out != nil {
			res.Outputs = append(res.Outputs, out)
		}
	}
	res.Context = FoldAll(actx, res.Outputs)
	return res, nil
}
