// Package presence tracks whether the user is at the keyboard. Timer-driven
// observation pauses while the user is idle.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wayfinder/internal/domain"
)

// Config tunes the idle detector.
type Config struct {
	IdleThreshold time.Duration
	PollInterval  time.Duration
}

// ActivitySource reports the last moment of user input from outside the
// process (for example the OS input idle counter). Optional.
type ActivitySource interface {
	LastActivity(ctx context.Context) (time.Time, error)
}

// Detector is heartbeat state plus a poll loop that publishes
// EventIdleChanged on every transition.
type Detector struct {
	cfg    Config
	source ActivitySource
	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	lastSeen time.Time
	idle     bool
}

// NewDetector creates a Detector. source and bus may be nil.
func NewDetector(cfg Config, source ActivitySource, bus domain.EventBus, logger *slog.Logger) *Detector {
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Detector{
		cfg:      cfg,
		source:   source,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
		lastSeen: time.Now(),
	}
}

// Heartbeat records user activity now. An idle user becomes active at the
// next poll.
func (d *Detector) Heartbeat() {
	d.mu.Lock()
	d.lastSeen = d.now()
	d.mu.Unlock()
}

// IsIdle reports the state as of the last poll.
func (d *Detector) IsIdle() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.idle
}

// LastSeen returns the most recent activity timestamp.
func (d *Detector) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

// Track treats page changes and user commands on bus as heartbeats.
// The returned function unsubscribes.
func (d *Detector) Track(bus domain.EventBus) func() {
	beat := func(context.Context, domain.Event) { d.Heartbeat() }
	unsubs := []func(){
		bus.Subscribe(domain.EventPageChanged, beat),
		bus.Subscribe(domain.EventUserCommand, beat),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Poll checks activity once and reports whether the idle state changed.
func (d *Detector) Poll(ctx context.Context) bool {
	if d.source != nil {
		if at, err := d.source.LastActivity(ctx); err != nil {
			d.logger.Debug("activity source unavailable", "error", err)
		} else {
			d.mu.Lock()
			if at.After(d.lastSeen) {
				d.lastSeen = at
			}
			d.mu.Unlock()
		}
	}

	d.mu.Lock()
	idleFor := d.now().Sub(d.lastSeen)
	idle := idleFor >= d.cfg.IdleThreshold
	changed := idle != d.idle
	d.idle = idle
	d.mu.Unlock()

	if !changed {
		return false
	}
	d.logger.Info("presence changed", "idle", idle, "idle_for", idleFor.Round(time.Second))
	if d.bus != nil {
		d.bus.Publish(ctx, domain.NewEvent(domain.EventIdleChanged, map[string]any{
			"idle":         idle,
			"idle_seconds": int(idleFor.Seconds()),
		}))
	}
	return true
}

// Run polls until ctx is done.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Poll(ctx)
		}
	}
}
