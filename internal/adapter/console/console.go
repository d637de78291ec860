package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"wayfinder/internal/domain"
)

// Console connects Commands and the event bus to a terminal.
type Console struct {
	cmds   *Commands
	bus    domain.EventBus
	logger *slog.Logger
}

// New creates a Console. bus may be nil, in which case nothing is rendered
// besides command replies.
func New(cmds *Commands, bus domain.EventBus, logger *slog.Logger) *Console {
	return &Console{cmds: cmds, bus: bus, logger: logger}
}

// Run serves the console until the user quits or ctx is done. When in is
// a terminal the full-screen interface is used, otherwise plain lines.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return c.runTUI(ctx, in, out)
	}
	return c.RunLines(ctx, in, out)
}

func (c *Console) runTUI(ctx context.Context, in io.Reader, out io.Writer) error {
	program := tea.NewProgram(
		NewModel(ctx, c.cmds),
		tea.WithAltScreen(),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	if c.bus != nil {
		unsub := c.bus.SubscribeAll(func(_ context.Context, ev domain.Event) {
			program.Send(EventMsg{Event: ev})
		})
		defer unsub()
	}
	go func() {
		<-ctx.Done()
		program.Send(QuitMsg{})
	}()
	_, err := program.Run()
	return err
}

// RunLines is the line-oriented console used when input is not a
// terminal. End of input leaves the companion running until ctx is done.
func (c *Console) RunLines(ctx context.Context, in io.Reader, out io.Writer) error {
	var mu sync.Mutex
	emit := func(l Line) {
		mu.Lock()
		defer mu.Unlock()
		prefix := ""
		switch l.Kind {
		case KindCompanion:
			prefix = "wayfinder: "
		case KindError:
			prefix = "error: "
		}
		fmt.Fprintln(out, prefix+l.Text)
	}

	if c.bus != nil {
		unsub := c.bus.SubscribeAll(func(_ context.Context, ev domain.Event) {
			if line, ok := Render(ev); ok {
				emit(line)
			}
		})
		defer unsub()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			c.logger.Warn("console input failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			if isQuit(line) {
				return nil
			}
			text, err := c.cmds.Handle(ctx, line)
			switch {
			case err != nil:
				emit(Line{KindError, err.Error()})
			case text != "":
				emit(Line{KindInfo, text})
			}
		}
	}
}
