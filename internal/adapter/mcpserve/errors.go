package mcpserve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"wayfinder/internal/domain"
)

// maxPendingCodes bounds codes recorded for responses nobody rewrote.
const maxPendingCodes = 256

// rpcCode returns the JSON-RPC code for a failed request, when it has a
// more specific one than mcp-go assigns. Handler errors reach the wire as
// INTERNAL_ERROR, and mcp-go reports unknown names with its own codes.
func rpcCode(err error) (int, bool) {
	var me *domain.McpError
	switch {
	case errors.As(err, &me):
		return me.RPCCode(), true
	case errors.Is(err, server.ErrToolNotFound),
		errors.Is(err, server.ErrPromptNotFound),
		errors.Is(err, server.ErrResourceNotFound):
		return domain.RPCMethodNotFound, true
	}
	return 0, false
}

// errorCodes carries the code of a failed request from the error hook to
// the response that reports it, keyed by request id.
type errorCodes struct {
	mu    sync.Mutex
	codes map[string]int
}

func newErrorCodes() *errorCodes {
	return &errorCodes{codes: make(map[string]int)}
}

// record is a server.OnErrorHookFunc.
func (c *errorCodes) record(_ context.Context, id any, _ mcp.MCPMethod, _ any, err error) {
	code, ok := rpcCode(err)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.codes) >= maxPendingCodes {
		clear(c.codes)
	}
	c.codes[mcp.NewRequestId(id).String()] = code
}

// apply rewrites e's code when one was recorded for its id.
func (c *errorCodes) apply(e *mcp.JSONRPCError) bool {
	key := e.ID.String()
	c.mu.Lock()
	code, ok := c.codes[key]
	delete(c.codes, key)
	c.mu.Unlock()
	if !ok || code == e.Error.Code {
		return false
	}
	e.Error.Code = code
	return true
}

// codeWriter sits between the stdio transport and its output and applies
// recorded codes to error responses. The transport writes one message per
// call.
type codeWriter struct {
	w     io.Writer
	codes *errorCodes
}

func (cw codeWriter) Write(p []byte) (int, error) {
	if !bytes.Contains(p, []byte(`"error"`)) {
		return cw.w.Write(p)
	}
	var resp mcp.JSONRPCError
	if err := json.Unmarshal(p, &resp); err != nil || resp.Error.Code == 0 || !cw.codes.apply(&resp) {
		return cw.w.Write(p)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return cw.w.Write(p)
	}
	if _, err := cw.w.Write(append(data, '\n')); err != nil {
		return 0, err
	}
	return len(p), nil
}
