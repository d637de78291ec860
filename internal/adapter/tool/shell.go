package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/tracer"
	"wayfinder/internal/security"
)

// ToolShellExec is the shell tool name.
const ToolShellExec = "shell_exec"

// ShellTool runs allowlisted commands inside the sandbox.
type ShellTool struct {
	base
	backend ShellBackend
	allowed map[string]bool
	sandbox *security.Sandbox
	logger  *slog.Logger
}

// NewShellTool creates the shell_exec tool. Only commands whose base name
// is in allowed may run.
func NewShellTool(backend ShellBackend, allowed []string, sandbox *security.Sandbox, logger *slog.Logger) *ShellTool {
	m := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		m[c] = true
	}
	return &ShellTool{
		base: describe(ToolShellExec, domain.CategoryShell,
			"Run an allowlisted command (no shell interpreter) inside the workspace.", true,
			`{"type":"object","properties":{
				"command":{"type":"string","minLength":1},
				"args":{"type":"array","items":{"type":"string"}},
				"workdir":{"type":"string"}
			},"required":["command"],"additionalProperties":false}`),
		backend: backend,
		allowed: m,
		sandbox: sandbox,
		logger:  logger,
	}
}

type shellArgs struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	WorkDir string   `json:"workdir,omitempty"`
}

// Execute implements domain.Tool.
func (t *ShellTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.shell_exec", t.logger, raw, func(ctx context.Context, span trace.Span, p shellArgs) (any, error) {
		if err := t.checkCommand(p.Command); err != nil {
			return nil, err
		}
		workDir := t.sandbox.Root()
		if p.WorkDir != "" {
			resolved, err := t.sandbox.Resolve(p.WorkDir)
			if err != nil {
				return nil, err
			}
			workDir = resolved
		}
		span.SetAttributes(tracer.StringAttr("shell.command", p.Command))

		res, err := t.backend.Execute(ctx, p.Command, p.Args, workDir)
		if err != nil {
			t.logger.Debug("shell command failed", "command", p.Command, "exit_code", res.ExitCode, "error", err)
			if res.Stderr != "" {
				return nil, fmt.Errorf("%w\n%s", err, res.Stderr)
			}
			return nil, err
		}
		t.logger.Debug("shell command completed", "command", p.Command)
		return res, nil
	})
}

// checkCommand rejects anything whose base name is not allowlisted, and any
// path-qualified command, so "./ls" cannot shadow "ls".
func (t *ShellTool) checkCommand(command string) error {
	if err := requireField("command", command); err != nil {
		return err
	}
	base := filepath.Base(command)
	if base != command || !t.allowed[base] {
		return domain.NewSubSystemError("shell", "ShellTool.checkCommand", domain.ErrCommandNotAllowed,
			fmt.Sprintf("command %q not in allowlist", command))
	}
	return nil
}
