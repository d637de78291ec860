package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"wayfinder/internal/domain"
)

// verdictSchema is a compiled JSON Schema used to validate model replies.
type verdictSchema struct {
	schema *jsonschema.Schema
}

// mustSchema compiles a schema literal. Schemas are package constants, so a
// failure is a programming error.
func mustSchema(raw string) *verdictSchema {
	s, err := jsonschema.NewCompiler().Compile([]byte(raw))
	if err != nil {
		panic(fmt.Sprintf("agents: invalid schema: %v", err))
	}
	return &verdictSchema{schema: s}
}

func (v *verdictSchema) validate(data any) error {
	result := v.schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}

// chatJSON asks provider for a JSON object, validates it against schema and
// decodes it into dst. Provider failures come back as service errors;
// malformed or off-schema replies as processing errors.
func chatJSON(ctx context.Context, name string, provider domain.LLMProvider, req domain.ChatRequest, schema *verdictSchema, dst any) error {
	req.JSONMode = true
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		return serviceError(name, err)
	}

	raw := stripCodeFences(resp.Message.Content)
	if raw == "" {
		return processingError(name, "empty model reply", nil)
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return processingError(name, "model reply is not JSON", err)
	}
	if schema != nil {
		if err := schema.validate(parsed); err != nil {
			return processingError(name, "model reply does not match schema", err)
		}
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return processingError(name, "decode model reply", err)
	}
	return nil
}

// chatText asks provider for free text.
func chatText(ctx context.Context, name string, provider domain.LLMProvider, req domain.ChatRequest) (string, error) {
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		return "", serviceError(name, err)
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", processingError(name, "empty model reply", nil)
	}
	return text, nil
}

func messages(system, user string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
}

var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// clip shortens s to at most n bytes on a rune boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for i := range s {
		if i > n {
			break
		}
		end = i
	}
	return s[:end]
}
