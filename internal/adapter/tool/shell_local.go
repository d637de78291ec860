package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"wayfinder/internal/domain"
)

// maxShellOutput caps each captured stream.
const maxShellOutput = 64 * 1024

// LocalShellBackend executes commands on this host.
type LocalShellBackend struct {
	timeout time.Duration
}

// NewLocalShellBackend creates a backend; timeout bounds every command.
func NewLocalShellBackend(timeout time.Duration) *LocalShellBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalShellBackend{timeout: timeout}
}

// Name implements ShellBackend.
func (b *LocalShellBackend) Name() string { return "local" }

// Execute implements ShellBackend. A non-zero exit is reported in the result
// together with an error.
func (b *LocalShellBackend) Execute(ctx context.Context, command string, args []string, workDir string) (ShellResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = workDir
	cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "LANG=C.UTF-8"}

	var stdout, stderr cappedBuffer
	stdout.limit, stderr.limit = maxShellOutput, maxShellOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ShellResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	switch {
	case err == nil:
		return res, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%w: %s exceeded %v", domain.ErrTimeout, command, b.timeout)
	default:
		return res, fmt.Errorf("%s: %w", command, err)
	}
}

// cappedBuffer keeps the first limit bytes and silently drops the rest.
type cappedBuffer struct {
	bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.Len(); room < len(p) {
		c.truncated = true
		if room > 0 {
			c.Buffer.Write(p[:room])
		}
		return len(p), nil
	}
	return c.Buffer.Write(p)
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.Buffer.String() + "\n[truncated]"
	}
	return c.Buffer.String()
}
