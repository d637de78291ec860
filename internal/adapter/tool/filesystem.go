package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/tracer"
	"wayfinder/internal/security"
)

// Filesystem tool names.
const (
	ToolFSRead   = "fs_read"
	ToolFSList   = "fs_list"
	ToolFSWrite  = "fs_write"
	ToolFSDelete = "fs_delete"
)

// maxFileBytes caps reads and writes.
const maxFileBytes = 1 << 20

// Filesystem exposes sandboxed file access as capability tools.
type Filesystem struct {
	backend FilesystemBackend
	sandbox *security.Sandbox
	logger  *slog.Logger
}

// NewFilesystem creates the filesystem provider.
func NewFilesystem(backend FilesystemBackend, sandbox *security.Sandbox, logger *slog.Logger) *Filesystem {
	return &Filesystem{backend: backend, sandbox: sandbox, logger: logger}
}

const pathSchema = `{"type":"object","properties":{"path":{"type":"string","minLength":1}},"required":["path"],"additionalProperties":false}`

// Tools returns fs_read, fs_list, fs_write and fs_delete.
func (f *Filesystem) Tools() []domain.Tool {
	return []domain.Tool{
		&fsReadTool{f: f, base: describe(ToolFSRead, domain.CategoryRead,
			"Read a text file inside the workspace.", false, pathSchema)},
		&fsListTool{f: f, base: describe(ToolFSList, domain.CategoryRead,
			"List a directory inside the workspace.", false,
			`{"type":"object","properties":{"path":{"type":"string"}},"additionalProperties":false}`)},
		&fsWriteTool{f: f, base: describe(ToolFSWrite, domain.CategoryFilesystem,
			"Write a text file inside the workspace, replacing any previous content.", true,
			`{"type":"object","properties":{"path":{"type":"string","minLength":1},"content":{"type":"string"}},"required":["path","content"],"additionalProperties":false}`).reversible()},
		&fsDeleteTool{f: f, base: describe(ToolFSDelete, domain.CategoryFilesystem,
			"Delete a file inside the workspace.", true, pathSchema).reversible()},
	}
}

type fsArgs struct {
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
}

func (f *Filesystem) resolve(path string) (string, error) {
	if path == "" || path == "." {
		return f.sandbox.Root(), nil
	}
	return f.sandbox.Resolve(path)
}

// snapshot returns the inverse that restores path to its current state:
// rewrite the old content, or delete a file that does not exist yet.
func (f *Filesystem) snapshot(path string) (*domain.ToolRequest, error) {
	resolved, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := f.backend.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return inverse(ToolFSDelete, fsArgs{Path: path})
	case err != nil:
		return nil, fmt.Errorf("capture %s: %w", path, err)
	case len(data) > maxFileBytes:
		return nil, domain.NewDomainError("Filesystem.snapshot", domain.ErrNotReversible, "file too large to snapshot")
	}
	content := string(data)
	return inverse(ToolFSWrite, fsArgs{Path: path, Content: &content})
}

type fsReadTool struct {
	base
	f *Filesystem
}

func (t *fsReadTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.fs_read", t.f.logger, raw, func(_ context.Context, span trace.Span, p fsArgs) (any, error) {
		path, err := t.f.resolve(p.Path)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(tracer.StringAttr("fs.path", t.f.sandbox.Rel(path)))
		info, err := t.f.backend.Stat(path)
		if err != nil {
			return nil, fsError(p.Path, err)
		}
		if info.Size() > maxFileBytes {
			return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", domain.ErrInvalidInput, p.Path, info.Size(), maxFileBytes)
		}
		data, err := t.f.backend.ReadFile(path)
		if err != nil {
			return nil, fsError(p.Path, err)
		}
		return map[string]any{"path": p.Path, "content": string(data), "size": len(data)}, nil
	})
}

type fsListTool struct {
	base
	f *Filesystem
}

type dirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

func (t *fsListTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.fs_list", t.f.logger, raw, func(_ context.Context, _ trace.Span, p fsArgs) (any, error) {
		path, err := t.f.resolve(p.Path)
		if err != nil {
			return nil, err
		}
		entries, err := t.f.backend.ReadDir(path)
		if err != nil {
			return nil, fsError(p.Path, err)
		}
		out := make([]dirEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, dirEntry{Name: e.Name(), IsDir: e.IsDir()})
		}
		return map[string]any{"path": t.f.sandbox.Rel(path), "entries": out}, nil
	})
}

type fsWriteTool struct {
	base
	f *Filesystem
}

func (t *fsWriteTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.fs_write", t.f.logger, raw, func(_ context.Context, _ trace.Span, p fsArgs) (any, error) {
		if p.Content == nil {
			return nil, requireField("content", "")
		}
		if err := maxLength("content", *p.Content, maxFileBytes); err != nil {
			return nil, err
		}
		path, err := t.f.resolve(p.Path)
		if err != nil {
			return nil, err
		}
		if path == t.f.sandbox.Root() {
			return nil, fmt.Errorf("%w: cannot write to the workspace root", domain.ErrInvalidInput)
		}
		if err := t.f.backend.WriteFile(path, []byte(*p.Content)); err != nil {
			return nil, fsError(p.Path, err)
		}
		t.f.logger.Debug("file written", "path", t.f.sandbox.Rel(path), "size", len(*p.Content))
		return map[string]any{"path": p.Path, "written": len(*p.Content)}, nil
	})
}

// PrepareInverse captures the file's current content.
func (t *fsWriteTool) PrepareInverse(_ context.Context, raw json.RawMessage) (*domain.ToolRequest, error) {
	var p fsArgs
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return t.f.snapshot(p.Path)
}

type fsDeleteTool struct {
	base
	f *Filesystem
}

func (t *fsDeleteTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.fs_delete", t.f.logger, raw, func(_ context.Context, _ trace.Span, p fsArgs) (any, error) {
		path, err := t.f.resolve(p.Path)
		if err != nil {
			return nil, err
		}
		if path == t.f.sandbox.Root() {
			return nil, fmt.Errorf("%w: cannot delete the workspace root", domain.ErrInvalidInput)
		}
		if err := t.f.backend.Remove(path); err != nil {
			return nil, fsError(p.Path, err)
		}
		return map[string]string{"deleted": p.Path}, nil
	})
}

// PrepareInverse captures the content so the file can be recreated.
func (t *fsDeleteTool) PrepareInverse(_ context.Context, raw json.RawMessage) (*domain.ToolRequest, error) {
	var p fsArgs
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	inv, err := t.f.snapshot(p.Path)
	if err != nil {
		return nil, err
	}
	if inv.ToolName == ToolFSDelete {
		return nil, domain.NewDomainError("fs_delete.PrepareInverse", domain.ErrNotReversible, "file does not exist")
	}
	return inv, nil
}

func fsError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewSubSystemError("filesystem", path, domain.ErrNotFound, err.Error())
	}
	return fmt.Errorf("%s: %w", path, err)
}
