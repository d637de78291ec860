// Package capability implements the registry through which agents and
// workflows reach the outside world: tools, resources and prompt templates.
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/tracer"
)

// Config tunes a Server.
type Config struct {
	// InvokeTimeout bounds a single tool call. Zero disables the bound.
	InvokeTimeout time.Duration
	// RatePerSec and Burst configure a token bucket per tool. Zero disables limiting.
	RatePerSec float64
	Burst      int
	Sanitize   SanitizeConfig
}

type toolEntry struct {
	tool    domain.Tool
	desc    domain.ToolDescriptor
	schema  *jsonschema.Schema // nil = accept all
	limiter *rate.Limiter      // nil = unlimited
}

// Server aggregates registered tools, resources and prompts.
// Registration happens at startup; lookups are concurrent-safe afterwards.
type Server struct {
	mu        sync.RWMutex
	tools     map[string]*toolEntry
	toolOrder []string
	resources map[string]domain.Resource
	resOrder  []string
	prompts   map[string]domain.Prompt
	prmOrder  []string

	cfg       Config
	sanitizer *Sanitizer
	bus       domain.EventBus    // optional
	audit     domain.AuditLogger // optional
	logger    *slog.Logger
}

// NewServer creates an empty capability server. bus and audit may be nil.
func NewServer(cfg Config, bus domain.EventBus, audit domain.AuditLogger, logger *slog.Logger) *Server {
	return &Server{
		tools:     make(map[string]*toolEntry),
		resources: make(map[string]domain.Resource),
		prompts:   make(map[string]domain.Prompt),
		cfg:       cfg,
		sanitizer: NewSanitizer(cfg.Sanitize),
		bus:       bus,
		audit:     audit,
		logger:    logger,
	}
}

// RegisterTool adds a tool and compiles its input schema.
func (s *Server) RegisterTool(t domain.Tool) error {
	desc := t.Descriptor()
	if desc.Name == "" {
		return domain.NewSubSystemError("capability", "Server.RegisterTool", domain.ErrInvalidInput, "empty tool name")
	}

	schema, err := compileSchema(desc.Name, desc.InputSchema)
	if err != nil {
		return domain.NewSubSystemError("capability", "Server.RegisterTool", domain.ErrInvalidInput, err.Error())
	}

	entry := &toolEntry{tool: t, desc: desc, schema: schema}
	if s.cfg.RatePerSec > 0 && s.cfg.Burst > 0 {
		entry.limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSec), s.cfg.Burst)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[desc.Name]; exists {
		return domain.NewSubSystemError("capability", "Server.RegisterTool", domain.ErrDuplicate, desc.Name)
	}
	s.tools[desc.Name] = entry
	s.toolOrder = append(s.toolOrder, desc.Name)
	return nil
}

// RegisterResource adds a resource keyed by its URI.
func (s *Server) RegisterResource(r domain.Resource) error {
	uri := r.Descriptor().URI
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.resources[uri]; exists {
		return domain.NewSubSystemError("capability", "Server.RegisterResource", domain.ErrDuplicate, uri)
	}
	s.resources[uri] = r
	s.resOrder = append(s.resOrder, uri)
	return nil
}

// RegisterPrompt adds a prompt template.
func (s *Server) RegisterPrompt(p domain.Prompt) error {
	name := p.Descriptor().Name
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.prompts[name]; exists {
		return domain.NewSubSystemError("capability", "Server.RegisterPrompt", domain.ErrDuplicate, name)
	}
	s.prompts[name] = p
	s.prmOrder = append(s.prmOrder, name)
	return nil
}

// Manifest lists every registered capability in registration order.
func (s *Server) Manifest() domain.Manifest {
	return domain.Manifest{
		Tools:     s.DiscoverTools(""),
		Resources: s.DiscoverResources(),
		Prompts:   s.DiscoverPrompts(),
	}
}

// DiscoverTools lists tool descriptors, optionally filtered by category.
func (s *Server) DiscoverTools(category string) []domain.ToolDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ToolDescriptor, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		d := s.tools[name].desc
		if category != "" && d.Category != category {
			continue
		}
		out = append(out, d)
	}
	return out
}

// DiscoverResources lists resource descriptors.
func (s *Server) DiscoverResources() []domain.ResourceDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ResourceDescriptor, 0, len(s.resOrder))
	for _, uri := range s.resOrder {
		out = append(out, s.resources[uri].Descriptor())
	}
	return out
}

// DiscoverPrompts lists prompt descriptors.
func (s *Server) DiscoverPrompts() []domain.PromptDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PromptDescriptor, 0, len(s.prmOrder))
	for _, name := range s.prmOrder {
		out = append(out, s.prompts[name].Descriptor())
	}
	return out
}

// Describe returns the descriptor for a tool.
func (s *Server) Describe(name string) (domain.ToolDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tools[name]
	if !ok {
		return domain.ToolDescriptor{}, false
	}
	return e.desc, true
}

// InvokeTool validates and executes a tool call. It always returns a response
// envelope; err is a *domain.McpError exactly when resp.Success is false.
func (s *Server) InvokeTool(ctx context.Context, req domain.ToolRequest) (resp *domain.ToolResponse, err error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	start := time.Now()

	ctx, span := tracer.StartSpan(ctx, "capability.invoke_tool",
		trace.WithAttributes(
			tracer.StringAttr("tool.name", req.ToolName),
			tracer.StringAttr("request.id", req.RequestID),
		),
	)
	defer func() { tracer.Finish(span, err) }()

	s.publish(ctx, domain.EventToolCallStarted, req)

	data, mcpErr := s.invoke(ctx, req)
	resp = &domain.ToolResponse{
		RequestID:       req.RequestID,
		Success:         mcpErr == nil,
		Data:            data,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
	if mcpErr != nil {
		resp.Error = mcpErr.Error()
		s.logger.Warn("tool invocation failed",
			"tool", req.ToolName,
			"request_id", req.RequestID,
			"kind", string(mcpErr.Kind),
			"error", mcpErr,
		)
	}

	s.publish(ctx, domain.EventToolCallCompleted, resp)
	s.auditInvoke(ctx, req, resp)

	if mcpErr != nil {
		return resp, mcpErr
	}
	return resp, nil
}

func (s *Server) invoke(ctx context.Context, req domain.ToolRequest) (json.RawMessage, *domain.McpError) {
	s.mu.RLock()
	entry, ok := s.tools[req.ToolName]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewMcpError(domain.McpToolNotFound, req.ToolName, "not registered")
	}

	args := req.Arguments
	if len(bytes.TrimSpace(args)) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	if entry.schema != nil {
		var v any
		if err := json.Unmarshal(args, &v); err != nil {
			return nil, &domain.McpError{Kind: domain.McpInvalidArguments, Target: req.ToolName, Message: "arguments are not valid JSON", Err: err}
		}
		if err := entry.schema.Validate(v); err != nil {
			return nil, &domain.McpError{Kind: domain.McpInvalidArguments, Target: req.ToolName, Message: "schema validation failed", Err: err}
		}
	} else if !json.Valid(args) {
		return nil, domain.NewMcpError(domain.McpInvalidArguments, req.ToolName, "arguments are not valid JSON")
	}

	if entry.limiter != nil && !entry.limiter.Allow() {
		return nil, domain.WrapMcpError(domain.McpExecutionFailed, req.ToolName, domain.ErrRateLimit)
	}

	if s.cfg.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.InvokeTimeout)
		defer cancel()
	}

	data, err := entry.tool.Execute(ctx, args)
	if err != nil {
		return nil, classifyInvokeError(req.ToolName, err)
	}
	return data, nil
}

// InvokeForModel runs a tool and returns its result as sanitized text,
// suitable for inclusion in a language-model prompt.
func (s *Server) InvokeForModel(ctx context.Context, req domain.ToolRequest) (string, error) {
	resp, err := s.InvokeTool(ctx, req)
	if err != nil {
		return "", err
	}
	return s.sanitizer.Sanitize(string(resp.Data)), nil
}

// Sanitize bounds arbitrary text headed toward a language model.
func (s *Server) Sanitize(text string) string {
	return s.sanitizer.Sanitize(text)
}

// Inverse asks a reversible tool to capture pre-state and build its undo request.
func (s *Server) Inverse(ctx context.Context, req domain.ToolRequest) (*domain.ToolRequest, error) {
	s.mu.RLock()
	entry, ok := s.tools[req.ToolName]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewMcpError(domain.McpToolNotFound, req.ToolName, "not registered")
	}
	rev, ok := entry.tool.(domain.Reversible)
	if !ok || !entry.desc.Reversible {
		return nil, domain.NewDomainError("Server.Inverse", domain.ErrNotReversible, req.ToolName)
	}
	inv, err := rev.PrepareInverse(ctx, req.Arguments)
	if err != nil {
		return nil, classifyInvokeError(req.ToolName, err)
	}
	return inv, nil
}

// ReadResource reads a registered resource.
func (s *Server) ReadResource(ctx context.Context, req domain.ResourceRequest) (*domain.ResourceResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	start := time.Now()

	s.mu.RLock()
	r, ok := s.resources[req.URI]
	s.mu.RUnlock()

	resp := &domain.ResourceResponse{RequestID: req.RequestID}
	if !ok {
		err := domain.NewMcpError(domain.McpResourceNotFound, req.URI, "not registered")
		resp.Error = err.Error()
		return resp, err
	}

	content, err := r.Read(ctx, req.Params)
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		mcpErr := classifyInvokeError(req.URI, err)
		resp.Error = mcpErr.Error()
		return resp, mcpErr
	}
	resp.Success = true
	resp.Content = content
	return resp, nil
}

// RenderPrompt fills a prompt template with params.
func (s *Server) RenderPrompt(name string, params map[string]string) (string, error) {
	s.mu.RLock()
	p, ok := s.prompts[name]
	s.mu.RUnlock()
	if !ok {
		return "", domain.NewMcpError(domain.McpPromptNotFound, name, "not registered")
	}

	for _, arg := range p.Descriptor().Arguments {
		if _, set := params[arg.Name]; arg.Required && !set {
			return "", domain.NewMcpError(domain.McpInvalidArguments, name, "missing required argument %q", arg.Name)
		}
	}

	out, err := p.Render(params)
	if err != nil {
		return "", &domain.McpError{Kind: domain.McpInvalidArguments, Target: name, Message: "render failed", Err: err}
	}
	return out, nil
}

func (s *Server) publish(ctx context.Context, t domain.EventType, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewEvent(t, payload))
}

func (s *Server) auditInvoke(ctx context.Context, req domain.ToolRequest, resp *domain.ToolResponse) {
	if s.audit == nil {
		return
	}
	outcome := "success"
	if !resp.Success {
		outcome = "failure"
	}
	err := s.audit.Log(ctx, domain.AuditEvent{
		Timestamp: time.Now(),
		Type:      domain.AuditToolExec,
		Resource:  req.ToolName,
		Action:    "invoke",
		Outcome:   outcome,
		Detail: map[string]string{
			"request_id":        req.RequestID,
			"execution_time_ms": strconv.FormatInt(resp.ExecutionTimeMs, 10),
			"error":             resp.Error,
		},
	})
	if err != nil {
		s.logger.Warn("audit write failed", "tool", req.ToolName, "error", err)
	}
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", name, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", name, err)
	}
	return compiled, nil
}

// Compile-time interface check.
var _ domain.CapabilityClient = (*Server)(nil)

// errAsMcp is a helper for callers holding a generic error.
func errAsMcp(err error) (*domain.McpError, bool) {
	var me *domain.McpError
	ok := errors.As(err, &me)
	return me, ok
}
