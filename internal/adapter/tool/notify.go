package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"wayfinder/internal/domain"
)

// ToolNotify is the notification tool name.
const ToolNotify = "notify"

const maxNotificationLen = 500

// Notification is the payload published for the UI.
type Notification struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

// NotifyTool publishes a ui.notification event. It has no effect beyond
// what the UI chooses to render.
type NotifyTool struct {
	base
	bus    domain.EventBus
	logger *slog.Logger
}

// NewNotifyTool creates the notify tool.
func NewNotifyTool(bus domain.EventBus, logger *slog.Logger) *NotifyTool {
	return &NotifyTool{
		base: describe(ToolNotify, domain.CategoryCosmetic,
			"Show a short notification to the user.", true,
			`{"type":"object","properties":{
				"title":{"type":"string"},
				"message":{"type":"string","minLength":1},
				"level":{"type":"string","enum":["info","success","warning"]}
			},"required":["message"],"additionalProperties":false}`),
		bus:    bus,
		logger: logger,
	}
}

// Execute implements domain.Tool.
func (t *NotifyTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.notify", t.logger, raw, func(ctx context.Context, _ trace.Span, n Notification) (any, error) {
		if err := firstErr(requireField("message", n.Message), maxLength("message", n.Message, maxNotificationLen)); err != nil {
			return nil, err
		}
		if n.Level == "" {
			n.Level = "info"
		}
		if t.bus != nil {
			t.bus.Publish(ctx, domain.NewEvent(domain.EventNotification, n))
		}
		return map[string]bool{"shown": t.bus != nil}, nil
	})
}
