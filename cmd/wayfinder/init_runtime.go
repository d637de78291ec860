package main

import (
	"context"
	"fmt"
	"log/slog"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/config"
	"wayfinder/internal/infra/logger"
	"wayfinder/internal/usecase/action"
	"wayfinder/internal/usecase/presence"
	"wayfinder/internal/usecase/scheduling"
	"wayfinder/internal/usecase/workflow"
)

// Runtime is everything that reacts to triggers once the companion runs.
type Runtime struct {
	Queue      *action.Queue
	Dispatcher *workflow.Dispatcher
	Presence   *presence.Detector
	Scheduler  *scheduling.Scheduler
}

// initRuntime wires the action queue, the dispatcher and the background
// drivers, and starts them. cleanup stops them in reverse order.
func initRuntime(ctx context.Context, cfg *config.Config, sec *SecurityComponents, caps *CapabilityComponents, wfs []workflow.Workflow, bus domain.EventBus, log *slog.Logger) (*Runtime, func(), error) {
	rt := &Runtime{}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// 1. Action queue
	actLog := logger.Component(log, "action")
	policy := action.NewPolicy(action.PolicyConfig{
		Autonomy:      action.Autonomy(cfg.Actions.Autonomy),
		KnownDomains:  cfg.Actions.KnownDomains,
		HighRiskTypes: cfg.Actions.HighRiskTypes,
	}, caps.Server)
	rt.Queue = action.NewQueue(
		action.QueueConfig{TTL: cfg.Actions.TTL, ExecuteTimeout: cfg.Actions.ExecuteTimeout},
		policy,
		action.NewLedger(cfg.Actions.LedgerCapacity, sec.Store.Ledger(), actLog),
		action.NewUndoStack(cfg.Actions.UndoDepth),
		caps.Server,
		bus,
		sec.AuditLogger,
		actLog,
	)

	// 2. Dispatcher
	runs, err := workflow.NewFileStore(cfg.Workflow.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("workflow store: %w", err)
	}
	wfLog := logger.Component(log, "dispatcher")
	rt.Dispatcher = workflow.NewDispatcher(
		workflow.DispatcherConfig{Routes: cfg.Workflow.Triggers},
		runs, sec.Store.KV(), action.NewInterceptor(rt.Queue, actLog), bus, wfLog)
	for _, wf := range wfs {
		if err := rt.Dispatcher.Register(wf); err != nil {
			return nil, nil, err
		}
	}
	for trig, name := range cfg.Workflow.Triggers {
		if !hasWorkflow(wfs, name) {
			log.Warn("trigger routed to a workflow that is not available", "trigger", trig, "workflow", name)
		}
	}
	if err := rt.Dispatcher.Restore(ctx); err != nil {
		log.Warn("could not restore previous context", "error", err)
	}
	cleanups = append(cleanups, rt.Dispatcher.Start(ctx))

	// 3. Presence
	rt.Presence = presence.NewDetector(presence.Config{
		IdleThreshold: cfg.Presence.IdleThreshold,
		PollInterval:  cfg.Presence.PollInterval,
	}, nil, bus, logger.Component(log, "presence"))
	rt.Dispatcher.SetIdleSource(rt.Presence)
	cleanups = append(cleanups, rt.Presence.Track(bus))
	go rt.Presence.Run(ctx)

	// 4. Scheduler: observation ticks, expiry sweeps, audit retention
	if cfg.Scheduler.Enabled {
		sched := scheduling.NewScheduler(logger.Component(log, "scheduler"))
		sched.RegisterTick(bus)
		sched.RegisterAction(scheduling.ActionSweepActions, func(ctx context.Context) error {
			rt.Queue.Sweep(ctx)
			return nil
		})
		sched.RegisterAction(scheduling.ActionAuditRetention, func(ctx context.Context) error {
			if sec.FileAuditLogger == nil {
				return nil
			}
			removed, err := sec.FileAuditLogger.EnforceRetention(ctx)
			if removed > 0 {
				log.Info("audit retention enforced", "removed", removed)
			}
			return err
		})
		for _, tc := range cfg.Scheduler.Tasks {
			if err := sched.AddTask(scheduling.ScheduledTask{
				Name:     tc.Name,
				Schedule: tc.Schedule,
				Action:   scheduling.ScheduledAction(tc.Action),
				OneShot:  tc.OneShot,
			}); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
		if err := sched.Start(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		rt.Scheduler = sched
		cleanups = append(cleanups, func() { sched.Stop() })
	} else {
		// Without the scheduler the queue still needs its expiry sweep.
		go rt.Queue.RunSweeper(ctx, cfg.Actions.SweepInterval)
	}

	// 5. Page watch
	if caps.Browser != nil {
		go caps.Browser.Watch(ctx, bus, 0)
	}

	return rt, cleanup, nil
}

func hasWorkflow(wfs []workflow.Workflow, name string) bool {
	for _, wf := range wfs {
		if wf.Name() == name {
			return true
		}
	}
	return false
}
