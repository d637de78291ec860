package capability

import (
	"context"
	"errors"
	"strings"

	"wayfinder/internal/domain"
)

// permissionSentinels are refusals that no retry will fix.
var permissionSentinels = []error{
	domain.ErrPermissionDenied,
	domain.ErrPathOutsideSandbox,
	domain.ErrCommandNotAllowed,
	domain.ErrSSRFBlocked,
	domain.ErrAuthInvalid,
}

// connectionPatterns are substrings in error messages that indicate the
// backing system could not be reached. Checked case-insensitively.
var connectionPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"broken pipe",
	"not connected",
	"temporarily unavailable",
	"service unavailable",
	"eof",
}

// classifyInvokeError maps a provider error onto the capability taxonomy so
// callers can tell "retry later" apart from "never valid".
func classifyInvokeError(target string, err error) *domain.McpError {
	if me, ok := errAsMcp(err); ok {
		return me
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return domain.WrapMcpError(domain.McpTimeout, target, err)
	case errors.Is(err, domain.ErrInvalidInput):
		return domain.WrapMcpError(domain.McpInvalidArguments, target, err)
	case errors.Is(err, domain.ErrNotFound):
		return domain.WrapMcpError(domain.McpExecutionFailed, target, err)
	}
	for _, sentinel := range permissionSentinels {
		if errors.Is(err, sentinel) {
			return domain.WrapMcpError(domain.McpPermissionDenied, target, err)
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range connectionPatterns {
		if strings.Contains(lower, p) {
			return domain.WrapMcpError(domain.McpConnectionError, target, err)
		}
	}
	return domain.WrapMcpError(domain.McpExecutionFailed, target, err)
}
