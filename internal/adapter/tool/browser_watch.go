package tool

import (
	"context"
	"time"

	"wayfinder/internal/domain"
)

// pageChanged is the EventPageChanged payload.
type pageChanged struct {
	Location string `json:"location"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Watch polls the browser location every interval and publishes
// EventPageChanged with the page text whenever it changes. It returns when
// ctx is done.
func (b *Browser) Watch(ctx context.Context, bus domain.EventBus, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		loc, err := b.backend.Location(ctx)
		if err != nil {
			b.logger.Debug("page watch: location unavailable", "error", err)
			continue
		}
		if loc == last || loc == "" || loc == "about:blank" {
			continue
		}
		last = loc

		ev := pageChanged{Location: loc}
		if pc, err := b.backend.GetContent(ctx, ""); err == nil {
			ev.Title, ev.Content = pc.Title, pc.Text
		} else {
			b.logger.Debug("page watch: content unavailable", "location", loc, "error", err)
		}
		bus.Publish(ctx, domain.NewEvent(domain.EventPageChanged, ev))
	}
}
