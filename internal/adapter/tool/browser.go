package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"wayfinder/internal/domain"
	"wayfinder/internal/infra/tracer"
)

// Browser tool names.
const (
	ToolNavigate       = "browser_navigate"
	ToolBack           = "browser_back"
	ToolHighlight      = "browser_highlight"
	ToolClearHighlight = "browser_clear_highlight"
	ToolClick          = "browser_click"
	ToolType           = "browser_type"
	ToolSubmitForm     = "browser_submit_form"
)

// Browser resource URIs.
const (
	ResourcePage       = "browser://page"
	ResourceLocation   = "browser://location"
	ResourceScreenshot = "browser://screenshot"
)

const (
	defaultHighlightColor = "#f5a623"
	maxTypedText          = 4096
)

// URLChecker vets a navigation target. *security.URLGuard satisfies it.
type URLChecker interface {
	Check(ctx context.Context, raw string) (*url.URL, error)
}

// Browser exposes a BrowserBackend as capability tools and resources.
type Browser struct {
	backend BrowserBackend
	guard   URLChecker
	logger  *slog.Logger
}

// NewBrowser wraps backend. guard may be nil to allow any URL.
func NewBrowser(backend BrowserBackend, guard URLChecker, logger *slog.Logger) *Browser {
	return &Browser{backend: backend, guard: guard, logger: logger}
}

// Tools returns the browser tools.
func (b *Browser) Tools() []domain.Tool {
	return []domain.Tool{
		&navigateTool{b: b, base: describe(ToolNavigate, domain.CategoryNavigation,
			"Open a URL in the current tab.", true,
			`{"type":"object","properties":{"url":{"type":"string","minLength":1}},"required":["url"],"additionalProperties":false}`).reversible()},
		&backTool{b: b, base: describe(ToolBack, domain.CategoryNavigation,
			"Go back one page in the tab history.", true,
			`{"type":"object","additionalProperties":false}`)},
		&highlightTool{b: b, base: describe(ToolHighlight, domain.CategoryCosmetic,
			"Outline the elements matching a CSS selector to draw the user's attention.", true,
			`{"type":"object","properties":{"selector":{"type":"string","minLength":1},"color":{"type":"string"}},"required":["selector"],"additionalProperties":false}`).reversible()},
		&clearHighlightTool{b: b, base: describe(ToolClearHighlight, domain.CategoryCosmetic,
			"Remove highlights, from one selector or from the whole page.", true,
			`{"type":"object","properties":{"selector":{"type":"string"}},"additionalProperties":false}`)},
		&clickTool{b: b, base: describe(ToolClick, domain.CategoryInput,
			"Click the element matching a CSS selector.", true,
			`{"type":"object","properties":{"selector":{"type":"string","minLength":1}},"required":["selector"],"additionalProperties":false}`)},
		&typeTool{b: b, base: describe(ToolType, domain.CategoryInput,
			"Type text into the input matching a CSS selector.", true,
			`{"type":"object","properties":{"selector":{"type":"string","minLength":1},"text":{"type":"string"}},"required":["selector","text"],"additionalProperties":false}`)},
		&submitTool{b: b, base: describe(ToolSubmitForm, domain.CategoryForm,
			"Submit the form containing the element matching a CSS selector.", true,
			`{"type":"object","properties":{"selector":{"type":"string","minLength":1}},"required":["selector"],"additionalProperties":false}`)},
	}
}

// Resources returns the browser resources.
func (b *Browser) Resources() []domain.Resource {
	return []domain.Resource{
		funcResource{
			desc: domain.ResourceDescriptor{URI: ResourcePage, Name: "page",
				Description: "Readable text, links and forms of the current page. Param selector scopes the extraction.",
				MimeType:    "application/json", IsDynamic: true},
			read: b.readPage,
		},
		funcResource{
			desc: domain.ResourceDescriptor{URI: ResourceLocation, Name: "location",
				Description: "URL of the current page.", MimeType: "text/plain", IsDynamic: true},
			read: b.readLocation,
		},
		funcResource{
			desc: domain.ResourceDescriptor{URI: ResourceScreenshot, Name: "screenshot",
				Description: "JPEG screenshot of the viewport as a data URI.", MimeType: "text/plain", IsDynamic: true},
			read: b.readScreenshot,
		},
	}
}

// Close releases the backend.
func (b *Browser) Close() error { return b.backend.Close() }

func (b *Browser) readPage(ctx context.Context, params map[string]string) (*domain.ResourceContent, error) {
	pc, err := b.backend.GetContent(ctx, params["selector"])
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(pc)
	if err != nil {
		return nil, err
	}
	return &domain.ResourceContent{URI: ResourcePage, MimeType: "application/json", Text: string(data)}, nil
}

func (b *Browser) readLocation(ctx context.Context, _ map[string]string) (*domain.ResourceContent, error) {
	loc, err := b.backend.Location(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.ResourceContent{URI: ResourceLocation, MimeType: "text/plain", Text: loc}, nil
}

func (b *Browser) readScreenshot(ctx context.Context, _ map[string]string) (*domain.ResourceContent, error) {
	img, err := b.backend.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.ResourceContent{URI: ResourceScreenshot, MimeType: "text/plain", Text: "data:image/jpeg;base64," + img}, nil
}

type urlArgs struct {
	URL string `json:"url"`
}

type selectorArgs struct {
	Selector string `json:"selector"`
	Color    string `json:"color,omitempty"`
	Text     string `json:"text,omitempty"`
}

type navigateTool struct {
	base
	b *Browser
}

func (t *navigateTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.browser_navigate", t.b.logger, raw, func(ctx context.Context, span trace.Span, p urlArgs) (any, error) {
		if err := requireField("url", p.URL); err != nil {
			return nil, err
		}
		target := strings.TrimSpace(p.URL)
		if t.b.guard != nil {
			u, err := t.b.guard.Check(ctx, target)
			if err != nil {
				return nil, err
			}
			target = u.String()
		}
		span.SetAttributes(tracer.StringAttr("browser.url", target))
		if err := t.b.backend.Navigate(ctx, target); err != nil {
			return nil, domain.WrapOp("navigate", err)
		}
		t.b.logger.Debug("browser navigated", "url", target)
		return map[string]string{"location": target}, nil
	})
}

// PrepareInverse captures the current location so undo can return to it.
func (t *navigateTool) PrepareInverse(ctx context.Context, _ json.RawMessage) (*domain.ToolRequest, error) {
	prev, err := t.b.backend.Location(ctx)
	if err != nil {
		return nil, err
	}
	if prev == "" || prev == "about:blank" {
		return nil, domain.NewDomainError("browser_navigate.PrepareInverse", domain.ErrNotReversible, "no previous page")
	}
	return inverse(ToolNavigate, urlArgs{URL: prev})
}

type backTool struct {
	base
	b *Browser
}

func (t *backTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.browser_back", t.b.logger, raw, func(ctx context.Context, _ trace.Span, _ struct{}) (any, error) {
		if err := t.b.backend.Back(ctx); err != nil {
			return nil, domain.WrapOp("back", err)
		}
		loc, err := t.b.backend.Location(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"location": loc}, nil
	})
}

type highlightTool struct {
	base
	b *Browser
}

func (t *highlightTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.browser_highlight", t.b.logger, raw, func(ctx context.Context, _ trace.Span, p selectorArgs) (any, error) {
		if err := requireField("selector", p.Selector); err != nil {
			return nil, err
		}
		color := p.Color
		if color == "" {
			color = defaultHighlightColor
		}
		if err := t.b.backend.Evaluate(ctx, highlightJS(p.Selector, color)); err != nil {
			return nil, domain.WrapOp("highlight", err)
		}
		return map[string]string{"highlighted": p.Selector}, nil
	})
}

// PrepareInverse returns a clear_highlight for the same selector.
func (t *highlightTool) PrepareInverse(_ context.Context, raw json.RawMessage) (*domain.ToolRequest, error) {
	var p selectorArgs
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, domain.NewDomainError("browser_highlight.PrepareInverse", domain.ErrInvalidInput, err.Error())
	}
	return inverse(ToolClearHighlight, selectorArgs{Selector: p.Selector})
}

type clearHighlightTool struct {
	base
	b *Browser
}

func (t *clearHighlightTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.browser_clear_highlight", t.b.logger, raw, func(ctx context.Context, _ trace.Span, p selectorArgs) (any, error) {
		if err := t.b.backend.Evaluate(ctx, clearHighlightJS(p.Selector)); err != nil {
			return nil, domain.WrapOp("clear highlight", err)
		}
		return map[string]string{"cleared": p.Selector}, nil
	})
}

type clickTool struct {
	base
	b *Browser
}

func (t *clickTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.browser_click", t.b.logger, raw, func(ctx context.Context, _ trace.Span, p selectorArgs) (any, error) {
		if err := requireField("selector", p.Selector); err != nil {
			return nil, err
		}
		if err := t.b.backend.Click(ctx, p.Selector); err != nil {
			return nil, domain.WrapOp("click", err)
		}
		return map[string]string{"clicked": p.Selector}, nil
	})
}

type typeTool struct {
	base
	b *Browser
}

func (t *typeTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.browser_type", t.b.logger, raw, func(ctx context.Context, _ trace.Span, p selectorArgs) (any, error) {
		if err := firstErr(requireField("selector", p.Selector), maxLength("text", p.Text, maxTypedText)); err != nil {
			return nil, err
		}
		if err := t.b.backend.Type(ctx, p.Selector, p.Text); err != nil {
			return nil, domain.WrapOp("type", err)
		}
		return map[string]any{"selector": p.Selector, "chars": len(p.Text)}, nil
	})
}

type submitTool struct {
	base
	b *Browser
}

func (t *submitTool) Execute(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return run(ctx, "tool.browser_submit_form", t.b.logger, raw, func(ctx context.Context, _ trace.Span, p selectorArgs) (any, error) {
		if err := requireField("selector", p.Selector); err != nil {
			return nil, err
		}
		if err := t.b.backend.Submit(ctx, p.Selector); err != nil {
			return nil, domain.WrapOp("submit form", err)
		}
		return map[string]string{"submitted": p.Selector}, nil
	})
}
