package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound   = fmt.Errorf("llm provider not found")
	ErrPathOutsideSandbox = fmt.Errorf("path is outside sandbox boundary")
	ErrCommandNotAllowed  = fmt.Errorf("command not in allowlist")
	ErrSSRFBlocked        = fmt.Errorf("request to private/reserved IP blocked")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrAuditWrite         = fmt.Errorf("audit log write failed")
	ErrStore              = fmt.Errorf("store operation failed")
	ErrRateLimit          = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid        = fmt.Errorf("authentication failed")
	ErrContextOverflow    = fmt.Errorf("context window exceeded")

	// ErrCircuitOpen is returned by the language-model router while its
	// breaker is open. Workflows back off and retry instead of aborting.
	ErrCircuitOpen = fmt.Errorf("circuit breaker open")

	// Action queue errors.
	ErrActionNotFound    = fmt.Errorf("action not found")
	ErrInvalidTransition = fmt.Errorf("invalid action status transition")
	ErrUndoEmpty         = fmt.Errorf("undo stack empty")
	ErrNotReversible     = fmt.Errorf("action is not reversible")
)

// Agent error kinds. Every AgentError carries exactly one of these as its Kind.
var (
	ErrProcessing   = fmt.Errorf("processing error")
	ErrService      = fmt.Errorf("service error")
	ErrConfig       = fmt.Errorf("config error")
	ErrAgentTimeout = fmt.Errorf("agent timeout")
	ErrCancelled    = fmt.Errorf("cancelled")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Queue.Approve")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "action", "workflow"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrCircuitOpen)
}

// AgentError is the closed error taxonomy returned by agents and workflows.
type AgentError struct {
	Agent  string // agent or workflow name
	Kind   error  // one of ErrProcessing, ErrService, ErrConfig, ErrAgentTimeout, ErrCancelled
	Detail string
	Err    error // optional cause
}

func (e *AgentError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Agent, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AgentError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewAgentError creates an AgentError of the given kind.
func NewAgentError(agent string, kind error, detail string, cause error) *AgentError {
	return &AgentError{Agent: agent, Kind: kind, Detail: detail, Err: cause}
}

// Cancelled returns the canonical cancellation error for a workflow or agent.
func Cancelled(name string) *AgentError {
	return &AgentError{Agent: name, Kind: ErrCancelled}
}

// AgentErrorKind returns the kind of an AgentError found in err's chain,
// or nil if err is not an AgentError.
func AgentErrorKind(err error) error {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return nil
}

// IsCancelled reports whether err represents a user-initiated cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsTransient reports whether err signals a temporary upstream outage that a
// workflow should wait out rather than abort on.
func IsTransient(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodePathOutsideSandbox ErrorCode = "PATH_OUTSIDE_SANDBOX"
	CodeCommandNotAllowed  ErrorCode = "COMMAND_NOT_ALLOWED"
	CodeSSRFBlocked        ErrorCode = "SSRF_BLOCKED"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeAuditWrite         ErrorCode = "AUDIT_WRITE"
	CodeStore              ErrorCode = "STORE"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	CodeActionNotFound     ErrorCode = "ACTION_NOT_FOUND"
	CodeInvalidTransition  ErrorCode = "ACTION_INVALID_TRANSITION"
	CodeUndoEmpty          ErrorCode = "UNDO_EMPTY"
	CodeNotReversible      ErrorCode = "NOT_REVERSIBLE"
	CodeAgentProcessing    ErrorCode = "AGENT_PROCESSING"
	CodeAgentService       ErrorCode = "AGENT_SERVICE"
	CodeAgentConfig        ErrorCode = "AGENT_CONFIG"
	CodeAgentTimeout       ErrorCode = "AGENT_TIMEOUT"
	CodeCancelled          ErrorCode = "CANCELLED"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate   ErrorCode = "AGENT_DUPLICATE"
	CodeWorkflowNotFound ErrorCode = "WORKFLOW_NOT_FOUND"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeToolDuplicate    ErrorCode = "TOOL_DUPLICATE"
	CodeBrowserTimeout   ErrorCode = "BROWSER_TIMEOUT"
	CodeWorkflowTimeout  ErrorCode = "WORKFLOW_TIMEOUT"

	// Category error codes, used when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeLimitReached     ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrLimitReached:     CodeLimitReached,
	ErrPermissionDenied: CodePermissionDenied,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,

	ErrProviderNotFound:   CodeProviderNotFound,
	ErrPathOutsideSandbox: CodePathOutsideSandbox,
	ErrCommandNotAllowed:  CodeCommandNotAllowed,
	ErrSSRFBlocked:        CodeSSRFBlocked,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrAuditWrite:         CodeAuditWrite,
	ErrStore:              CodeStore,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrContextOverflow:    CodeContextOverflow,
	ErrCircuitOpen:        CodeCircuitOpen,
	ErrActionNotFound:     CodeActionNotFound,
	ErrInvalidTransition:  CodeInvalidTransition,
	ErrUndoEmpty:          CodeUndoEmpty,
	ErrNotReversible:      CodeNotReversible,

	ErrProcessing:   CodeAgentProcessing,
	ErrService:      CodeAgentService,
	ErrConfig:       CodeAgentConfig,
	ErrAgentTimeout: CodeAgentTimeout,
	ErrCancelled:    CodeCancelled,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent":      CodeAgentNotFound,
		"workflow":   CodeWorkflowNotFound,
		"capability": CodeToolNotFound,
	},
	ErrDuplicate: {
		"agent":      CodeAgentDuplicate,
		"capability": CodeToolDuplicate,
	},
	ErrTimeout: {
		"workflow": CodeWorkflowTimeout,
		"browser":  CodeBrowserTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	// AgentError kinds take precedence over causes.
	if kind := AgentErrorKind(err); kind != nil {
		if code, ok := errorCodeMap[kind]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
