package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/config"
)

// mcpCallTimeout bounds a single remote tool call.
const mcpCallTimeout = 30 * time.Second

// mcpClient is the subset of the mcp-go client the bridge uses.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type mcpServerConn struct {
	name   string
	client mcpClient
}

// MCPBridge connects to remote MCP servers and exposes their tools as
// capabilities named mcp_<server>_<tool>.
type MCPBridge struct {
	servers []mcpServerConn
	tools   []domain.Tool
	logger  *slog.Logger
}

// NewMCPBridge connects to every configured server and discovers its tools.
// A server that fails to connect or list is skipped with a warning; the
// bridge fails only when every configured server fails.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{logger: logger}
	var errs []string
	for _, srv := range servers {
		c, err := connectMCP(ctx, srv)
		if err != nil {
			logger.Warn("mcp server unavailable, skipping", "server", srv.Name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.Name, err))
			continue
		}
		logger.Info("mcp server connected", "server", srv.Name, "transport", srv.Transport)
		b.servers = append(b.servers, mcpServerConn{name: srv.Name, client: c})
	}
	b.discover(ctx)
	if len(servers) > 0 && len(b.tools) == 0 && len(errs) == len(servers) {
		b.Close()
		return nil, fmt.Errorf("%w: all mcp servers failed: %s", domain.ErrProviderError, strings.Join(errs, "; "))
	}
	return b, nil
}

func newMCPBridgeWithClients(ctx context.Context, servers []mcpServerConn, logger *slog.Logger) *MCPBridge {
	b := &MCPBridge{servers: servers, logger: logger}
	b.discover(ctx)
	return b
}

func connectMCP(ctx context.Context, srv config.MCPServer) (mcpClient, error) {
	var c *mcpclient.Client
	switch srv.Transport {
	case "stdio", "":
		sc, err := mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("start stdio client: %w", err)
		}
		c = sc
	case "http":
		t, err := transport.NewStreamableHTTP(srv.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c = mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported transport %q", domain.ErrInvalidInput, srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "wayfinder", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, domain.WrapOp("initialize", err)
	}
	return c, nil
}

func (b *MCPBridge) discover(ctx context.Context) {
	for _, srv := range b.servers {
		res, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp tool discovery failed", "server", srv.name, "error", err)
			continue
		}
		for _, t := range res.Tools {
			b.tools = append(b.tools, newMCPTool(srv, t, b.logger))
		}
		b.logger.Info("mcp tools discovered", "server", srv.name, "count", len(res.Tools))
	}
}

// Tools returns the bridged tools.
func (b *MCPBridge) Tools() []domain.Tool { return b.tools }

// Close shuts down every server connection.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close failed", "server", srv.name, "error", err)
		}
	}
}

// mcpTool is one remote tool. Read-only hints from the server map to the
// read category; everything else is remote and a side effect.
type mcpTool struct {
	base
	server string
	remote string
	client mcpClient
	logger *slog.Logger
}

func newMCPTool(srv mcpServerConn, t mcp.Tool, logger *slog.Logger) *mcpTool {
	schema := `{"type":"object"}`
	if len(t.InputSchema.Properties) > 0 || len(t.InputSchema.Required) > 0 {
		if data, err := json.Marshal(t.InputSchema); err == nil {
			schema = string(data)
		}
	}
	desc := t.Description
	if desc == "" {
		desc = fmt.Sprintf("Tool %q from MCP server %q.", t.Name, srv.name)
	}
	category, sideEffect := domain.CategoryRemote, true
	if ro := t.Annotations.ReadOnlyHint; ro != nil && *ro {
		category, sideEffect = domain.CategoryRead, false
	}
	return &mcpTool{
		base:   describe(MCPToolName(srv.name, t.Name), category, desc, sideEffect, schema),
		server: srv.name,
		remote: t.Name,
		client: srv.client,
		logger: logger,
	}
}

// MCPToolName is the local capability name of a remote tool.
func MCPToolName(server, tool string) string {
	return "mcp_" + sanitizeName(server) + "_" + sanitizeName(tool)
}

func (t *mcpTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args map[string]any
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = t.remote
	req.Params.Arguments = args

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	t.logger.Debug("mcp tool call", "server", t.server, "tool", t.remote)
	res, err := t.client.CallTool(callCtx, req)
	if err != nil {
		return nil, domain.WrapMcpError(domain.McpConnectionError, t.desc.Name, err)
	}
	text := mcpText(res)
	if res.IsError {
		return nil, domain.NewMcpError(domain.McpExecutionFailed, t.desc.Name, "%s", text)
	}
	return encodeResult(text)
}

func mcpText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, s)
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
