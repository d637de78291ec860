package console

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"wayfinder/internal/domain"
)

const maxLines = 500

// EventMsg carries a bus event into the update loop.
type EventMsg struct{ Event domain.Event }

// QuitMsg stops the program.
type QuitMsg struct{}

type replyMsg struct {
	text string
	err  error
}

// Model is the Bubble Tea model of the interactive console: a scrolling
// transcript, a status bar and a one-line input.
type Model struct {
	ctx   context.Context
	cmds  *Commands
	input textinput.Model
	view  viewport.Model
	md    *glamour.TermRenderer

	lines  []Line
	status Status
	width  int
	height int
	ready  bool
}

// NewModel creates the console model. ctx bounds the commands it runs.
func NewModel(ctx context.Context, cmds *Commands) Model {
	ti := textinput.New()
	ti.Placeholder = "goal, open, approve, deny, undo, help... or just talk"
	ti.Prompt = "> "
	ti.PromptStyle = stylePrompt
	ti.CharLimit = 2000
	ti.Focus()

	return Model{
		ctx:   ctx,
		cmds:  cmds,
		input: ti,
		lines: []Line{{KindMuted, "Type 'help' for commands."}},
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := max(msg.Height-3, 1)
		if !m.ready {
			m.view = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.view.Width, m.view.Height = msg.Width, h
		}
		m.input.Width = max(msg.Width-4, 10)
		m.md = nil
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}

	case EventMsg:
		m.status = m.status.Apply(msg.Event)
		if line, ok := Render(msg.Event); ok {
			m.push(line)
		}
		return m, nil

	case replyMsg:
		switch {
		case msg.err != nil:
			m.push(Line{KindError, msg.err.Error()})
		case msg.text == HelpText:
			m.push(Line{KindInfo, m.markdown(msg.text)})
		case msg.text != "":
			m.push(Line{KindInfo, msg.text})
		}
		return m, nil

	case QuitMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if value == "" {
		return m, nil
	}
	if isQuit(value) {
		return m, tea.Quit
	}
	m.push(Line{KindUser, value})
	ctx, cmds := m.ctx, m.cmds
	return m, func() tea.Msg {
		text, err := cmds.Handle(ctx, value)
		return replyMsg{text: text, err: err}
	}
}

func (m *Model) push(l Line) {
	m.lines = append(m.lines, l)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(styleLine(l))
	}
	m.view.SetContent(b.String())
	m.view.GotoBottom()
}

func (m *Model) markdown(text string) string {
	if m.md == nil {
		width := m.width
		if width <= 0 {
			width = 80
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
		if err != nil {
			return text
		}
		m.md = r
	}
	out, err := m.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}
	return m.view.View() + "\n" +
		styleStatus.Width(m.width).Render(m.status.String()) + "\n" +
		m.input.View()
}

func styleLine(l Line) string {
	switch l.Kind {
	case KindCompanion:
		return styleCompanion.Render("wayfinder: ") + l.Text
	case KindUser:
		return styleUser.Render("> " + l.Text)
	case KindSuccess:
		return styleSuccess.Render(l.Text)
	case KindWarning:
		return styleWarning.Render(l.Text)
	case KindError:
		return styleError.Render(l.Text)
	case KindMuted:
		return styleMuted.Render(l.Text)
	}
	return styleInfo.Render(l.Text)
}

func isQuit(s string) bool {
	switch strings.ToLower(s) {
	case "quit", "exit", "q":
		return true
	}
	return false
}
