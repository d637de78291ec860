package domain

import (
	"errors"
	"fmt"
)

// McpErrorKind classifies capability-layer failures.
type McpErrorKind string

const (
	McpToolNotFound     McpErrorKind = "tool_not_found"
	McpResourceNotFound McpErrorKind = "resource_not_found"
	McpPromptNotFound   McpErrorKind = "prompt_not_found"
	McpInvalidArguments McpErrorKind = "invalid_arguments"
	McpExecutionFailed  McpErrorKind = "execution_failed"
	McpConnectionError  McpErrorKind = "connection_error"
	McpTimeout          McpErrorKind = "timeout"
	McpPermissionDenied McpErrorKind = "permission_denied"
)

// JSON-RPC 2.0 error codes. The -32000..-32099 range is reserved for
// implementation-defined server errors.
const (
	RPCParseError       = -32700
	RPCInvalidRequest   = -32600
	RPCMethodNotFound   = -32601
	RPCInvalidParams    = -32602
	RPCInternalError    = -32603
	RPCTimeout          = -32001
	RPCPermissionDenied = -32002
)

// McpError is the typed failure returned by the capability server.
type McpError struct {
	Kind    McpErrorKind
	Target  string // tool name, resource URI or prompt name
	Message string
	Err     error
}

func (e *McpError) Error() string {
	msg := string(e.Kind)
	if e.Target != "" {
		msg += " " + e.Target
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *McpError) Unwrap() error { return e.Err }

// RPCCode maps the error onto its JSON-RPC error code.
func (e *McpError) RPCCode() int {
	switch e.Kind {
	case McpToolNotFound, McpResourceNotFound, McpPromptNotFound:
		return RPCMethodNotFound
	case McpInvalidArguments:
		return RPCInvalidParams
	case McpTimeout:
		return RPCTimeout
	case McpPermissionDenied:
		return RPCPermissionDenied
	default:
		return RPCInternalError
	}
}

// Retryable reports whether a later attempt may succeed.
func (e *McpError) Retryable() bool {
	return e.Kind == McpConnectionError || e.Kind == McpTimeout || errors.Is(e.Err, ErrRateLimit)
}

// NewMcpError creates an McpError.
func NewMcpError(kind McpErrorKind, target, format string, args ...any) *McpError {
	return &McpError{Kind: kind, Target: target, Message: fmt.Sprintf(format, args...)}
}

// WrapMcpError creates an McpError carrying a cause.
func WrapMcpError(kind McpErrorKind, target string, err error) *McpError {
	return &McpError{Kind: kind, Target: target, Err: err}
}

// McpErrorKindOf returns the kind of the McpError in err's chain, or "".
func McpErrorKindOf(err error) McpErrorKind {
	var me *McpError
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}
