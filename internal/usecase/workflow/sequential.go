package workflow

import (
	"context"
	"log/slog"

	"wayfinder/internal/domain"
)

// Sequential runs agents in order. Each agent sees the context with every
// predecessor's output folded in.
type Sequential struct {
	name   string
	agents []domain.Agent
	// stopOnGoal ends the run at the first GoalAchieved signal.
	stopOnGoal bool
	logger     *slog.Logger
}

// NewSequential creates a Sequential workflow.
func NewSequential(name string, stopOnGoal bool, logger *slog.Logger, agents ...domain.Agent) *Sequential {
	return &Sequential{name: name, agents: agents, stopOnGoal: stopOnGoal, logger: logger}
}

func (s *Sequential) Name() string { return s.name }

func (s *Sequential) Execute(ctx context.Context, actx domain.AgentContext) (res Result, err error) {
	ctx, finish := startSpan(ctx, "sequential", s.name)
	defer func() { finish(err) }()

	res.Context = actx.Clone()
	for _, a := range s.agents {
		if err := ctxCancelled(ctx, s.name); err != nil {
			return res, err
		}
		if !a.CanHandle(res.Context) {
			s.logger.Debug("agent skipped", "workflow", s.name, "agent", a.Name())
			continue
		}

		out, err := invoke(ctx, a, res.Context)
		if err != nil {
			return res, err
		}
		res.Outputs = append(res.Outputs, out)
		res.Context = Fold(res.Context, out)

		switch out.NextKind() {
		case domain.NextStop:
			s.logger.Debug("sequential stopped", "workflow", s.name, "agent", a.Name())
			return res, nil
		case domain.NextGoalAchieved:
			if s.stopOnGoal {
				return res, nil
			}
		}
	}
	return res, nil
}
