// Package mcpserve exposes the capability registry to external tool hosts as
// an MCP server.
package mcpserve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"wayfinder/internal/domain"
)

// Capabilities is the part of the capability server that gets published.
type Capabilities interface {
	Manifest() domain.Manifest
	InvokeForModel(ctx context.Context, req domain.ToolRequest) (string, error)
	ReadResource(ctx context.Context, req domain.ResourceRequest) (*domain.ResourceResponse, error)
	RenderPrompt(name string, params map[string]string) (string, error)
}

// Server bridges Capabilities onto an mcp-go server.
type Server struct {
	caps   Capabilities
	mcp    *server.MCPServer
	codes  *errorCodes
	logger *slog.Logger
}

// New builds an MCP server from the manifest as it is now. Capabilities
// registered afterwards are not published.
//
// Only tools without side effects are published. An external host has no
// way to reach the confirmation queue, so a side-effecting call from it
// could never be approved by the user.
func New(caps Capabilities, version string, logger *slog.Logger) *Server {
	codes := newErrorCodes()
	hooks := &server.Hooks{}
	hooks.AddOnError(codes.record)

	s := &Server{
		caps: caps,
		mcp: server.NewMCPServer("wayfinder", version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithPromptCapabilities(false),
			server.WithHooks(hooks),
			server.WithRecovery(),
		),
		codes:  codes,
		logger: logger,
	}

	m := caps.Manifest()
	published := 0
	for _, t := range m.Tools {
		if t.IsSideEffect {
			logger.Debug("tool withheld from mcp hosts", "tool", t.Name, "category", t.Category)
			continue
		}
		s.mcp.AddTool(toMCPTool(t), s.callTool)
		published++
	}
	for _, r := range m.Resources {
		res := mcp.NewResource(r.URI, r.Name,
			mcp.WithResourceDescription(r.Description),
			mcp.WithMIMEType(r.MimeType),
		)
		s.mcp.AddResource(res, s.readResource)
	}
	for _, p := range m.Prompts {
		s.mcp.AddPrompt(toMCPPrompt(p), s.getPrompt)
	}
	logger.Info("mcp server ready",
		"tools", published,
		"withheld", len(m.Tools)-published,
		"resources", len(m.Resources),
		"prompts", len(m.Prompts),
	)
	return s
}

// ServeStdio serves newline-delimited JSON-RPC on in and out until ctx is
// cancelled or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, in, codeWriter{w: out, codes: s.codes}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve mcp stdio: %w", err)
	}
	return nil
}

// HandleMessage processes one JSON-RPC message in process, with the same
// error codes ServeStdio writes.
func (s *Server) HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage {
	resp := s.mcp.HandleMessage(ctx, raw)
	if e, ok := resp.(mcp.JSONRPCError); ok {
		s.codes.apply(&e)
		return e
	}
	return resp
}

// MCP returns the underlying mcp-go server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

func toMCPTool(d domain.ToolDescriptor) mcp.Tool {
	schema := d.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	t := mcp.NewToolWithRawSchema(d.Name, d.Description, schema)
	readOnly := !d.IsSideEffect
	t.Annotations.ReadOnlyHint = &readOnly
	if d.IsSideEffect {
		destructive := d.Category == domain.CategoryFilesystem || d.Category == domain.CategoryShell
		t.Annotations.DestructiveHint = &destructive
	}
	return t
}

func toMCPPrompt(d domain.PromptDescriptor) mcp.Prompt {
	opts := []mcp.PromptOption{mcp.WithPromptDescription(d.Description)}
	for _, a := range d.Arguments {
		argOpts := []mcp.ArgumentOption{mcp.ArgumentDescription(a.Description)}
		if a.Required {
			argOpts = append(argOpts, mcp.RequiredArgument())
		}
		opts = append(opts, mcp.WithArgument(a.Name, argOpts...))
	}
	return mcp.NewPrompt(d.Name, opts...)
}

// callTool reports execution failures inside the result, so the host model
// sees them. Failures with a dedicated JSON-RPC code are protocol errors.
func (s *Server) callTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := json.Marshal(req.GetArguments())
	if err != nil {
		return nil, domain.WrapMcpError(domain.McpInvalidArguments, req.Params.Name, err)
	}
	text, err := s.caps.InvokeForModel(ctx, domain.ToolRequest{
		ToolName:  req.Params.Name,
		Arguments: args,
	})
	if err != nil {
		s.logger.Debug("mcp tool call failed", "tool", req.Params.Name, "error", err)
		if inResult(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText(text), nil
}

// inResult reports whether a tool failure belongs in the call result.
func inResult(err error) bool {
	switch domain.McpErrorKindOf(err) {
	case "", domain.McpExecutionFailed, domain.McpConnectionError:
		return true
	}
	return false
}

func (s *Server) readResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	params := make(map[string]string, len(req.Params.Arguments))
	for k, v := range req.Params.Arguments {
		params[k] = fmt.Sprint(v)
	}
	resp, err := s.caps.ReadResource(ctx, domain.ResourceRequest{URI: req.Params.URI, Params: params})
	if err != nil {
		return nil, err
	}
	c := resp.Content
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: c.URI, MIMEType: c.MimeType, Text: c.Text},
	}, nil
}

func (s *Server) getPrompt(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text, err := s.caps.RenderPrompt(req.Params.Name, req.Params.Arguments)
	if err != nil {
		return nil, err
	}
	return mcp.NewGetPromptResult("", []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
	}), nil
}
