package action

import (
	"context"
	"encoding/json"
	"log/slog"

	"wayfinder/internal/domain"
)

// Interceptor routes action-shaped agent outputs into the queue.
type Interceptor struct {
	queue  *Queue
	logger *slog.Logger
}

// NewInterceptor creates an Interceptor feeding q.
func NewInterceptor(q *Queue, logger *slog.Logger) *Interceptor {
	return &Interceptor{queue: q, logger: logger}
}

// Intercept submits the proposal carried by out, if any. It returns
// (nil, nil) for outputs that do not propose an action.
func (i *Interceptor) Intercept(ctx context.Context, out *domain.AgentOutput) (*domain.PendingAction, error) {
	prop, ok := ProposalFrom(out)
	if !ok {
		return nil, nil
	}
	if prop.Source == "" {
		prop.Source = out.Agent
	}
	return i.queue.Submit(ctx, prop)
}

// InterceptAll submits every proposal in outs. Failures are logged and
// skipped so one malformed proposal cannot block the others.
func (i *Interceptor) InterceptAll(ctx context.Context, outs []*domain.AgentOutput) []*domain.PendingAction {
	var submitted []*domain.PendingAction
	for _, out := range outs {
		a, err := i.Intercept(ctx, out)
		if err != nil {
			i.logger.Warn("dropping action proposal", "agent", out.Agent, "error", err)
			continue
		}
		if a != nil {
			submitted = append(submitted, a)
		}
	}
	return submitted
}

// ProposalFrom extracts the proposal stored under domain.DataProposedAction.
// Agents may store a value, a pointer, or a decoded JSON object.
func ProposalFrom(out *domain.AgentOutput) (domain.ActionProposal, bool) {
	if out == nil {
		return domain.ActionProposal{}, false
	}
	switch v := out.Data[domain.DataProposedAction].(type) {
	case domain.ActionProposal:
		return v, v.ActionType != ""
	case *domain.ActionProposal:
		if v == nil {
			return domain.ActionProposal{}, false
		}
		return *v, v.ActionType != ""
	case map[string]any, json.RawMessage:
		data, err := json.Marshal(v)
		if err != nil {
			return domain.ActionProposal{}, false
		}
		var p domain.ActionProposal
		if err := json.Unmarshal(data, &p); err != nil {
			return domain.ActionProposal{}, false
		}
		return p, p.ActionType != ""
	}
	return domain.ActionProposal{}, false
}
