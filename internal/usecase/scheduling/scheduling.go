// Package scheduling drives the recurring background work: observation
// ticks for the dispatcher, pending-action expiry sweeps and audit log
// retention.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wayfinder/internal/domain"
)

// ScheduledAction identifies a type of scheduled action.
type ScheduledAction string

const (
	ActionObserveTick    ScheduledAction = "observe_tick"
	ActionSweepActions   ScheduledAction = "sweep_actions"
	ActionAuditRetention ScheduledAction = "audit_retention"
)

const defaultTaskTimeout = 5 * time.Minute

// ScheduledTask defines a recurring task.
type ScheduledTask struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" OR duration "30s"
	Action   ScheduledAction
	OneShot  bool
	// Timeout bounds one run. Zero means five minutes.
	Timeout time.Duration
}

// Scheduler runs tasks on a recurring schedule using cron expressions or
// durations. A task still running when its next slot arrives is skipped
// for that slot.
type Scheduler struct {
	cron    *cron.Cron
	actions map[ScheduledAction]func(ctx context.Context) error
	entries map[string]cron.EntryID
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger}))),
		actions: make(map[ScheduledAction]func(ctx context.Context) error),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// RegisterAction registers a handler for a scheduled action type.
func (s *Scheduler) RegisterAction(action ScheduledAction, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// RegisterTick registers ActionObserveTick to publish a timer tick event.
func (s *Scheduler) RegisterTick(bus domain.EventBus) {
	s.RegisterAction(ActionObserveTick, func(ctx context.Context) error {
		bus.Publish(ctx, domain.NewEvent(domain.EventTimerTick, map[string]string{
			"at": time.Now().UTC().Format(time.RFC3339),
		}))
		return nil
	})
}

// AddTask adds a scheduled task. Task names must be unique.
func (s *Scheduler) AddTask(task ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.entries[task.Name]; dup {
		return domain.NewSubSystemError("scheduler", "Scheduler.AddTask", domain.ErrDuplicate, task.Name)
	}
	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %q for task %q", task.Action, task.Name)
	}
	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}

	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.run(task, timeout, fn)
		if task.OneShot {
			s.cron.Remove(entryID)
			s.mu.Lock()
			delete(s.entries, task.Name)
			s.mu.Unlock()
		}
	}))
	s.entries[task.Name] = entryID

	s.logger.Info("task added to scheduler", "name", task.Name, "schedule", task.Schedule, "action", string(task.Action))
	return nil
}

func (s *Scheduler) run(task ScheduledTask, timeout time.Duration, fn func(context.Context) error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		s.logger.Debug("scheduler stopped, skipping task", "task", task.Name)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := fn(taskCtx); err != nil {
		s.logger.Warn("scheduled task failed", "task", task.Name, "error", err, "duration", time.Since(start))
		return
	}
	// Ticks fire every few seconds; keep them out of the info log.
	level := slog.LevelInfo
	if task.Action == ActionObserveTick {
		level = slog.LevelDebug
	}
	s.logger.Log(taskCtx, level, "scheduled task completed", "task", task.Name, "duration", time.Since(start))
}

// RemoveTask removes a task by name.
func (s *Scheduler) RemoveTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[name]
	if !ok {
		return domain.NewSubSystemError("scheduler", "Scheduler.RemoveTask", domain.ErrNotFound, name)
	}
	s.cron.Remove(entryID)
	delete(s.entries, name)
	s.logger.Info("task removed from scheduler", "name", name)
	return nil
}

// NextRun returns the next scheduled run time for a task, or nil if unknown
// or the scheduler has not started.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	entryID, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	entry := s.cron.Entry(entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// Start begins running the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop signals the scheduler to stop and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	// Running jobs take s.mu; wait outside it.
	<-s.cron.Stop().Done()
	return nil
}

// parseSchedule tries to parse a schedule string as a cron expression first,
// then falls back to time.ParseDuration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay(dur), nil
}

// ParseSchedule exposes schedule parsing for config validation.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	return parseSchedule(schedule)
}

// constantDelay fires at a fixed interval. Unlike cron.Every it keeps
// sub-second precision.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

// cronLogger adapts slog to cron.Logger for the job-wrapper chain.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Warn("cron: "+msg, append(kv, "error", err)...)
}
