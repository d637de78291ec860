// Package console is the interactive front end of a running companion:
// it renders bus events for the user and turns typed lines into goals,
// action decisions and free-form commands.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"wayfinder/internal/domain"
)

// ResolvedByConsole is recorded in the ledger for decisions typed here.
const ResolvedByConsole = "console"

// GoalSetter replaces the current goal. *workflow.Dispatcher implements it.
type GoalSetter interface {
	SetGoal(ctx context.Context, goal *domain.Goal)
}

// ActionDesk is the slice of the action queue the console drives.
// *action.Queue implements it.
type ActionDesk interface {
	Submit(ctx context.Context, prop domain.ActionProposal) (*domain.PendingAction, error)
	Pending() []domain.PendingAction
	UpdateArguments(ctx context.Context, id uint64, args json.RawMessage) (*domain.PendingAction, error)
	Approve(ctx context.Context, id uint64, by string) (*domain.PendingAction, error)
	Deny(ctx context.Context, id uint64, by, reason string) (*domain.PendingAction, error)
	Undo(ctx context.Context) (*domain.UndoEntry, error)
}

// LedgerReader lists recent resolutions, newest first.
type LedgerReader interface {
	Entries(limit int) []domain.LedgerEntry
}

// Commands interprets console input. Lines that are not a known command
// are published as user commands for the dispatcher.
type Commands struct {
	goals   GoalSetter
	actions ActionDesk
	ledger  LedgerReader
	bus     domain.EventBus
}

// NewCommands creates a command interpreter. Any dependency may be nil;
// the commands that need it then report that they are unavailable.
func NewCommands(goals GoalSetter, actions ActionDesk, ledger LedgerReader, bus domain.EventBus) *Commands {
	return &Commands{goals: goals, actions: actions, ledger: ledger, bus: bus}
}

// HelpText lists the console commands.
const HelpText = `**Commands**

- goal <text> [| keyword, keyword]: set the current goal
- goal clear: forget the current goal
- open <url>: propose navigating the browser to url
- pending: list actions awaiting confirmation
- edit <id> <json>: replace the arguments of a pending action
- approve <id>: run a pending action
- deny <id> [reason]: reject a pending action
- undo: revert the last reversible action
- ledger [n]: show the last n resolutions
- quit: exit

Anything else is passed to the companion.`

// Handle runs one line and returns the text to show. An empty reply means
// there is nothing to print.
func (c *Commands) Handle(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "help", "?":
		return HelpText, nil
	case "goal":
		return c.goal(ctx, rest)
	case "open":
		return c.open(ctx, rest)
	case "pending":
		return c.pending()
	case "edit":
		return c.edit(ctx, rest)
	case "approve":
		return c.approve(ctx, rest)
	case "deny":
		return c.deny(ctx, rest)
	case "undo":
		return c.undo(ctx)
	case "ledger":
		return c.history(rest)
	}

	if c.bus == nil {
		return "", fmt.Errorf("nobody is listening for commands")
	}
	c.bus.Publish(ctx, domain.NewEvent(domain.EventUserCommand, map[string]string{"command": line}))
	return "", nil
}

func (c *Commands) goal(ctx context.Context, rest string) (string, error) {
	if c.goals == nil {
		return "", fmt.Errorf("goals are unavailable")
	}
	if rest == "" {
		return "", fmt.Errorf("usage: goal <text> [| keyword, keyword]")
	}
	if strings.EqualFold(rest, "clear") {
		c.goals.SetGoal(ctx, nil)
		return "Goal cleared.", nil
	}
	g := ParseGoal(rest)
	c.goals.SetGoal(ctx, g)
	if len(g.Keywords) > 0 {
		return fmt.Sprintf("Goal set: %s (keywords: %s)", g.Description, strings.Join(g.Keywords, ", ")), nil
	}
	return "Goal set: " + g.Description, nil
}

// ParseGoal reads "description | kw1, kw2" into a Goal with a fresh ID.
func ParseGoal(s string) *domain.Goal {
	desc, kws, _ := strings.Cut(s, "|")
	g := &domain.Goal{ID: uuid.NewString(), Description: strings.TrimSpace(desc)}
	for _, k := range strings.Split(kws, ",") {
		if k = strings.TrimSpace(k); k != "" {
			g.Keywords = append(g.Keywords, k)
		}
	}
	return g
}

func (c *Commands) open(ctx context.Context, url string) (string, error) {
	if c.actions == nil {
		return "", fmt.Errorf("actions are unavailable")
	}
	if url == "" {
		return "", fmt.Errorf("usage: open <url>")
	}
	args, _ := json.Marshal(map[string]string{"url": url})
	a, err := c.actions.Submit(ctx, domain.ActionProposal{
		ActionType:  "browser_navigate",
		Description: "Open " + url,
		Target:      url,
		Arguments:   args,
		Reason:      "requested from the console",
		Source:      ResolvedByConsole,
	})
	if err != nil {
		return "", err
	}
	return describeAction(*a), nil
}

func (c *Commands) pending() (string, error) {
	if c.actions == nil {
		return "", fmt.Errorf("actions are unavailable")
	}
	list := c.actions.Pending()
	if len(list) == 0 {
		return "Nothing is waiting for you.", nil
	}
	var b strings.Builder
	for i, a := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(describeAction(a))
	}
	return b.String(), nil
}

// edit replaces a pending action's arguments. The queue reclassifies it,
// so the reply shows the risk level it now carries.
func (c *Commands) edit(ctx context.Context, rest string) (string, error) {
	if c.actions == nil {
		return "", fmt.Errorf("actions are unavailable")
	}
	idText, raw, _ := strings.Cut(rest, " ")
	raw = strings.TrimSpace(raw)
	if idText == "" || raw == "" {
		return "", fmt.Errorf("usage: edit <id> <json>")
	}
	id, err := parseID(idText)
	if err != nil {
		return "", err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "", fmt.Errorf("%w: arguments must be a JSON object: %v", domain.ErrInvalidInput, err)
	}
	a, err := c.actions.UpdateArguments(ctx, id, json.RawMessage(raw))
	if err != nil {
		return "", err
	}
	return "Updated " + describeAction(*a), nil
}

func (c *Commands) approve(ctx context.Context, rest string) (string, error) {
	if c.actions == nil {
		return "", fmt.Errorf("actions are unavailable")
	}
	id, err := parseID(rest)
	if err != nil {
		return "", err
	}
	a, err := c.actions.Approve(ctx, id, ResolvedByConsole)
	if err != nil {
		return "", err
	}
	return describeAction(*a), nil
}

func (c *Commands) deny(ctx context.Context, rest string) (string, error) {
	if c.actions == nil {
		return "", fmt.Errorf("actions are unavailable")
	}
	idText, reason, _ := strings.Cut(rest, " ")
	id, err := parseID(idText)
	if err != nil {
		return "", err
	}
	a, err := c.actions.Deny(ctx, id, ResolvedByConsole, strings.TrimSpace(reason))
	if err != nil {
		return "", err
	}
	return describeAction(*a), nil
}

func (c *Commands) undo(ctx context.Context) (string, error) {
	if c.actions == nil {
		return "", fmt.Errorf("actions are unavailable")
	}
	e, err := c.actions.Undo(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Undid #%d: %s", e.ActionID, e.Description), nil
}

func (c *Commands) history(rest string) (string, error) {
	if c.ledger == nil {
		return "", fmt.Errorf("the ledger is unavailable")
	}
	limit := 10
	if rest != "" {
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("usage: ledger [n]")
		}
		limit = n
	}
	entries := c.ledger.Entries(limit)
	if len(entries) == 0 {
		return "No actions resolved yet.", nil
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s #%d %s %s by %s", e.ResolvedAt.Format("15:04:05"), e.ID, e.Status, e.Description, e.ResolvedBy)
		if e.Error != "" {
			b.WriteString(": " + e.Error)
		}
	}
	return b.String(), nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected an action id, got %q", s)
	}
	return id, nil
}

func describeAction(a domain.PendingAction) string {
	s := fmt.Sprintf("#%d [%s, %s risk] %s", a.ID, a.Status, a.RiskLevel, a.Description)
	if a.Reason != "" {
		s += " (" + a.Reason + ")"
	}
	return s
}
