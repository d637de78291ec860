// Package tool provides the capability providers wayfinder registers with
// the capability server: browser automation, sandboxed shell and filesystem
// access, UI notifications, and tools bridged from remote MCP servers.
package tool

import (
	"context"
	"encoding/json"

	"wayfinder/internal/domain"
)

// base carries a static descriptor. Tools embed it and add Execute.
type base struct {
	desc domain.ToolDescriptor
}

func (b base) Descriptor() domain.ToolDescriptor { return b.desc }

func describe(name, category, description string, sideEffect bool, schema string) base {
	return base{desc: domain.ToolDescriptor{
		Name:         name,
		Description:  description,
		InputSchema:  json.RawMessage(schema),
		IsSideEffect: sideEffect,
		Category:     category,
	}}
}

func (b base) reversible() base {
	b.desc.Reversible = true
	return b
}

// inverse builds an undo request for tool with args marshalled to JSON.
func inverse(tool string, args any) (*domain.ToolRequest, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &domain.ToolRequest{ToolName: tool, Arguments: raw}, nil
}

// funcResource is a Resource with a fixed descriptor and a read func.
type funcResource struct {
	desc domain.ResourceDescriptor
	read func(ctx context.Context, params map[string]string) (*domain.ResourceContent, error)
}

func (r funcResource) Descriptor() domain.ResourceDescriptor { return r.desc }

func (r funcResource) Read(ctx context.Context, params map[string]string) (*domain.ResourceContent, error) {
	return r.read(ctx, params)
}
