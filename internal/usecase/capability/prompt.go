package capability

import (
	"bytes"
	"fmt"
	"text/template"

	"wayfinder/internal/domain"
)

// TemplatePrompt is a Prompt backed by text/template. Unset keys are an error.
type TemplatePrompt struct {
	desc domain.PromptDescriptor
	tmpl *template.Template
}

// NewTemplatePrompt parses body as a template named after desc.
func NewTemplatePrompt(desc domain.PromptDescriptor, body string) (*TemplatePrompt, error) {
	tmpl, err := template.New(desc.Name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %q: %w", desc.Name, err)
	}
	return &TemplatePrompt{desc: desc, tmpl: tmpl}, nil
}

// MustTemplatePrompt is NewTemplatePrompt for compile-time constant templates.
func MustTemplatePrompt(desc domain.PromptDescriptor, body string) *TemplatePrompt {
	p, err := NewTemplatePrompt(desc, body)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *TemplatePrompt) Descriptor() domain.PromptDescriptor { return p.desc }

// Render executes the template. Optional arguments that were not supplied
// render as empty strings.
func (p *TemplatePrompt) Render(params map[string]string) (string, error) {
	data := make(map[string]string, len(p.desc.Arguments)+len(params))
	for _, arg := range p.desc.Arguments {
		data[arg.Name] = ""
	}
	for k, v := range params {
		data[k] = v
	}
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
