// Package eventbus is the in-process publish/subscribe channel between the
// dispatcher, the action queue, the scheduler and the UI. Delivery is best
// effort: handlers run in their own goroutines, a panicking handler is
// logged and dropped, and nothing is queued once the bus is closed.
package eventbus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"wayfinder/internal/domain"
	"wayfinder/internal/security"
)

// subscription matches events by exact type, by type prefix, or all events
// when both are empty.
type subscription struct {
	id      uint64
	exact   domain.EventType
	prefix  string
	handler domain.EventHandler
}

func (s subscription) matches(t domain.EventType) bool {
	switch {
	case s.exact != "":
		return s.exact == t
	case s.prefix != "":
		return strings.HasPrefix(string(t), s.prefix)
	}
	return true
}

// Bus is the goroutine-safe domain.EventBus implementation.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish delivers event to every matching subscriber.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		b.logger.Debug("publish on closed bus dropped", "event", string(event.Type))
		return
	}

	b.mu.RLock()
	var matched []subscription
	for _, s := range b.subs {
		if s.matches(event.Type) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		b.dispatch(ctx, event, s)
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, s subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_ = security.Recover(b.logger, "eventbus handler "+string(event.Type), func() {
			s.handler(ctx, event)
		}, nil)
	}()
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(subscription{exact: eventType, handler: handler})
}

// SubscribePrefix registers handler for every event type starting with
// prefix, e.g. "action." or "workflow.".
func (b *Bus) SubscribePrefix(prefix string, handler domain.EventHandler) func() {
	return b.add(subscription{prefix: prefix, handler: handler})
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(subscription{handler: handler})
}

func (b *Bus) add(s subscription) func() {
	s.id = b.nextID.Add(1)
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, cur := range b.subs {
				if cur.id == s.id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of subscriptions that would receive an
// event of type t.
func (b *Bus) Subscribers(t domain.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.matches(t) {
			n++
		}
	}
	return n
}

// Close rejects further publishes and waits for in-flight handlers.
// Calling it more than once is a no-op.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
