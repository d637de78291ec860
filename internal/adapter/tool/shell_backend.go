package tool

import "context"

// ShellBackend runs one command without a shell interpreter.
type ShellBackend interface {
	Execute(ctx context.Context, command string, args []string, workDir string) (ShellResult, error)
	Name() string
}

// ShellResult is the captured outcome of a command.
type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
}
