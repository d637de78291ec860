package console

import (
	"encoding/json"
	"fmt"
	"strings"

	"wayfinder/internal/domain"
)

// Kind classifies a rendered line.
type Kind int

const (
	KindCompanion Kind = iota
	KindUser
	KindInfo
	KindSuccess
	KindWarning
	KindError
	KindMuted
)

// Line is one rendered transcript entry.
type Line struct {
	Kind Kind
	Text string
}

// Status is the state summarized in the status bar.
type Status struct {
	Location  string
	Proximity float64
	Idle      bool
	Pending   int
}

// Render turns a bus event into a transcript line. ok is false for events
// the user does not need to see.
func Render(ev domain.Event) (Line, bool) {
	switch ev.Type {
	case domain.EventWorkflowCompleted:
		var p struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(ev.Payload, &p) != nil || p.Message == "" {
			return Line{}, false
		}
		return Line{KindCompanion, p.Message}, true

	case domain.EventWorkflowFailed:
		var p struct {
			Workflow string `json:"workflow"`
			Error    string `json:"error"`
		}
		_ = json.Unmarshal(ev.Payload, &p)
		return Line{KindWarning, fmt.Sprintf("%s run failed: %s", p.Workflow, p.Error)}, true

	case domain.EventActionPending:
		a, ok := decodeAction(ev)
		if !ok {
			return Line{}, false
		}
		return Line{KindWarning, fmt.Sprintf("Needs your OK: %s. Type 'approve %d' or 'deny %d'.", describeAction(a), a.ID, a.ID)}, true

	case domain.EventActionExecuted:
		a, ok := decodeAction(ev)
		if !ok {
			return Line{}, false
		}
		return Line{KindSuccess, "Done: " + a.Description}, true

	case domain.EventActionFailed:
		a, ok := decodeAction(ev)
		if !ok {
			return Line{}, false
		}
		return Line{KindError, "Failed: " + a.Description}, true

	case domain.EventActionDenied, domain.EventActionExpired:
		a, ok := decodeAction(ev)
		if !ok {
			return Line{}, false
		}
		return Line{KindMuted, fmt.Sprintf("#%d %s: %s", a.ID, a.Status, a.Description)}, true

	case domain.EventActionUndone:
		var p struct {
			ActionID uint64 `json:"action_id"`
		}
		_ = json.Unmarshal(ev.Payload, &p)
		return Line{KindInfo, fmt.Sprintf("Reverted action #%d.", p.ActionID)}, true

	case domain.EventNotification:
		var n struct {
			Title   string `json:"title"`
			Message string `json:"message"`
			Level   string `json:"level"`
		}
		if json.Unmarshal(ev.Payload, &n) != nil || n.Message == "" {
			return Line{}, false
		}
		text := n.Message
		if n.Title != "" {
			text = n.Title + ": " + n.Message
		}
		switch n.Level {
		case "success":
			return Line{KindSuccess, text}, true
		case "warning":
			return Line{KindWarning, text}, true
		}
		return Line{KindInfo, text}, true

	case domain.EventPageChanged:
		var p struct {
			Location string `json:"location"`
			Title    string `json:"title"`
		}
		if json.Unmarshal(ev.Payload, &p) != nil || p.Location == "" {
			return Line{}, false
		}
		if p.Title != "" {
			return Line{KindMuted, "-> " + p.Title + " (" + p.Location + ")"}, true
		}
		return Line{KindMuted, "-> " + p.Location}, true
	}
	return Line{}, false
}

// Apply folds ev into s.
func (s Status) Apply(ev domain.Event) Status {
	switch ev.Type {
	case domain.EventWorkflowCompleted:
		var p struct {
			Proximity *float64 `json:"proximity"`
		}
		if json.Unmarshal(ev.Payload, &p) == nil && p.Proximity != nil {
			s.Proximity = *p.Proximity
		}
	case domain.EventPageChanged:
		var p struct {
			Location string `json:"location"`
		}
		if json.Unmarshal(ev.Payload, &p) == nil && p.Location != "" {
			s.Location = p.Location
		}
	case domain.EventIdleChanged:
		var p struct {
			Idle bool `json:"idle"`
		}
		if json.Unmarshal(ev.Payload, &p) == nil {
			s.Idle = p.Idle
		}
	case domain.EventActionPending:
		s.Pending++
	case domain.EventActionApproved, domain.EventActionDenied, domain.EventActionExpired:
		if s.Pending > 0 {
			s.Pending--
		}
	}
	return s
}

// String renders the status bar text.
func (s Status) String() string {
	parts := []string{fmt.Sprintf("proximity %.0f%%", s.Proximity*100)}
	if s.Location != "" {
		parts = append(parts, s.Location)
	}
	if s.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", s.Pending))
	}
	if s.Idle {
		parts = append(parts, "away")
	}
	return strings.Join(parts, " | ")
}

func decodeAction(ev domain.Event) (domain.PendingAction, bool) {
	var a domain.PendingAction
	if err := json.Unmarshal(ev.Payload, &a); err != nil || a.ID == 0 {
		return a, false
	}
	return a, true
}
