package domain

import (
	"context"
	"encoding/json"
)

// Tool categories used by the risk policy.
const (
	CategoryCosmetic   = "cosmetic"
	CategoryNavigation = "navigation"
	CategoryForm       = "form"
	CategoryInput      = "input"
	CategoryShell      = "shell"
	CategoryFilesystem = "filesystem"
	CategoryCredential = "credential"
	CategoryRead       = "read"
	CategoryRemote     = "remote"
)

// ToolDescriptor is the manifest entry for a tool.
type ToolDescriptor struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	IsSideEffect bool            `json:"is_side_effect"`
	Category     string          `json:"category"`
	Reversible   bool            `json:"reversible,omitempty"`
}

// ResourceDescriptor is the manifest entry for a resource.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type"`
	IsDynamic   bool   `json:"is_dynamic"`
}

// PromptArgument describes one template parameter.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptDescriptor is the manifest entry for a prompt template.
type PromptDescriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// Manifest lists everything a capability server exposes.
type Manifest struct {
	Tools     []ToolDescriptor     `json:"tools"`
	Resources []ResourceDescriptor `json:"resources"`
	Prompts   []PromptDescriptor   `json:"prompts"`
}

// Tool is an executable, schema-described capability.
type Tool interface {
	Descriptor() ToolDescriptor
	Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// Reversible is implemented by tools whose effect can be undone. PrepareInverse
// runs before Execute, captures the pre-state and returns the inverse request.
type Reversible interface {
	PrepareInverse(ctx context.Context, args json.RawMessage) (*ToolRequest, error)
}

// ResourceContent is the body returned by a resource read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mime_type"`
	Text     string `json:"text"`
}

// Resource is a readable data source.
type Resource interface {
	Descriptor() ResourceDescriptor
	Read(ctx context.Context, params map[string]string) (*ResourceContent, error)
}

// Prompt is a parametrized template.
type Prompt interface {
	Descriptor() PromptDescriptor
	Render(params map[string]string) (string, error)
}

// ToolRequest is the tool invocation envelope.
type ToolRequest struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	RequestID string          `json:"request_id"`
}

// ToolResponse is the tool invocation result envelope.
type ToolResponse struct {
	RequestID       string          `json:"request_id"`
	Success         bool            `json:"success"`
	Data            json.RawMessage `json:"data,omitempty"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// ResourceRequest is the resource read envelope.
type ResourceRequest struct {
	URI       string            `json:"uri"`
	Params    map[string]string `json:"params,omitempty"`
	RequestID string            `json:"request_id"`
}

// ResourceResponse is the resource read result envelope.
type ResourceResponse struct {
	RequestID       string           `json:"request_id"`
	Success         bool             `json:"success"`
	Content         *ResourceContent `json:"content,omitempty"`
	Error           string           `json:"error,omitempty"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
}

// CapabilityClient is how agents reach the outside world.
type CapabilityClient interface {
	InvokeTool(ctx context.Context, req ToolRequest) (*ToolResponse, error)
	ReadResource(ctx context.Context, req ResourceRequest) (*ResourceResponse, error)
	RenderPrompt(name string, params map[string]string) (string, error)
}
