package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wayfinder/internal/domain"
)

// Sandbox confines filesystem and shell capabilities to one directory tree.
type Sandbox struct {
	root string // absolute, symlink-resolved
}

// NewSandbox roots a sandbox at dir, creating it when missing.
func NewSandbox(dir string) (*Sandbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("eval symlinks for sandbox root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q is not a directory", resolved)
	}
	return &Sandbox{root: resolved}, nil
}

// Resolve maps requested onto an absolute path inside the sandbox. Relative
// paths are taken from the root, not the process working directory. Symlinks
// are resolved before the containment check; for a path that does not exist
// yet the nearest existing ancestor is resolved instead.
func (s *Sandbox) Resolve(requested string) (string, error) {
	if strings.TrimSpace(requested) == "" {
		return "", domain.NewSubSystemError("sandbox", "Sandbox.Resolve", domain.ErrInvalidInput, "empty path")
	}
	p := requested
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)

	resolved, err := resolveExisting(p)
	if err != nil {
		return "", domain.NewSubSystemError("sandbox", "Sandbox.Resolve", domain.ErrPathOutsideSandbox, err.Error())
	}
	if !s.contains(resolved) {
		return "", domain.NewSubSystemError("sandbox", "Sandbox.Resolve", domain.ErrPathOutsideSandbox,
			fmt.Sprintf("%q resolves outside %q", requested, s.root))
	}
	return resolved, nil
}

// Rel returns path relative to the sandbox root, for display.
func (s *Sandbox) Rel(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return rel
}

// Root returns the sandbox root directory.
func (s *Sandbox) Root() string { return s.root }

func (s *Sandbox) contains(path string) bool {
	return path == s.root || strings.HasPrefix(path, s.root+string(os.PathSeparator))
}

// resolveExisting evaluates symlinks on the longest existing prefix of p and
// re-attaches the missing tail.
func resolveExisting(p string) (string, error) {
	var tail []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}
