package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventLLMCallCompleted  EventType = "llm.call.completed"
	EventAgentError        EventType = "agent.error"

	// Workflow engine events.
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"
	EventWorkflowCancelled EventType = "workflow.cancelled"

	// Action queue events.
	EventActionPending  EventType = "action.pending"
	EventActionApproved EventType = "action.approved"
	EventActionDenied   EventType = "action.denied"
	EventActionExpired  EventType = "action.expired"
	EventActionExecuted EventType = "action.executed"
	EventActionFailed   EventType = "action.failed"
	EventActionUndone   EventType = "action.undone"

	// Triggers and presence.
	EventPageChanged  EventType = "page.changed"
	EventTimerTick    EventType = "timer.tick"
	EventUserCommand  EventType = "user.command"
	EventIdleChanged  EventType = "presence.idle_changed"
	EventNotification EventType = "ui.notification"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a JSON payload. Marshal failures leave the
// payload empty; events are best-effort.
func NewEvent(t EventType, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now()}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
