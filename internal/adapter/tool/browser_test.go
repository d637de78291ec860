package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfinder/internal/domain"
)

// fakeBrowser is an in-memory BrowserBackend with a history stack.
type fakeBrowser struct {
	history   []string
	scripts   []string
	clicked   []string
	typed     map[string]string
	submitted []string
	navErr    error
}

func newFakeBrowser(start string) *fakeBrowser {
	return &fakeBrowser{history: []string{start}, typed: map[string]string{}}
}

func (f *fakeBrowser) Navigate(_ context.Context, u string) error {
	if f.navErr != nil {
		return f.navErr
	}
	f.history = append(f.history, u)
	return nil
}

func (f *fakeBrowser) Back(context.Context) error {
	if len(f.history) > 1 {
		f.history = f.history[:len(f.history)-1]
	}
	return nil
}

func (f *fakeBrowser) Location(context.Context) (string, error) {
	return f.history[len(f.history)-1], nil
}

func (f *fakeBrowser) GetContent(_ context.Context, selector string) (*PageContent, error) {
	return &PageContent{Title: "Docs", URL: f.history[len(f.history)-1], Text: "scope:" + selector}, nil
}

func (f *fakeBrowser) Screenshot(context.Context) (string, error) { return "AAAA", nil }

func (f *fakeBrowser) Click(_ context.Context, sel string) error {
	f.clicked = append(f.clicked, sel)
	return nil
}

func (f *fakeBrowser) Type(_ context.Context, sel, text string) error {
	f.typed[sel] = text
	return nil
}

func (f *fakeBrowser) Submit(_ context.Context, sel string) error {
	f.submitted = append(f.submitted, sel)
	return nil
}

func (f *fakeBrowser) Evaluate(_ context.Context, script string) error {
	f.scripts = append(f.scripts, script)
	return nil
}

func (f *fakeBrowser) Close() error { return nil }
func (f *fakeBrowser) Name() string { return "fake" }

type denyGuard struct{ host string }

func (g denyGuard) Check(_ context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == g.host {
		return nil, domain.NewDomainError("guard", domain.ErrSSRFBlocked, raw)
	}
	return u, nil
}

func TestBrowserDescriptors(t *testing.T) {
	b := NewBrowser(newFakeBrowser("about:blank"), nil, discardLogger())
	tools := b.Tools()

	want := map[string]struct {
		category   string
		reversible bool
	}{
		ToolNavigate:       {domain.CategoryNavigation, true},
		ToolBack:           {domain.CategoryNavigation, false},
		ToolHighlight:      {domain.CategoryCosmetic, true},
		ToolClearHighlight: {domain.CategoryCosmetic, false},
		ToolClick:          {domain.CategoryInput, false},
		ToolType:           {domain.CategoryInput, false},
		ToolSubmitForm:     {domain.CategoryForm, false},
	}
	require.Len(t, tools, len(want))
	for _, tl := range tools {
		d := tl.Descriptor()
		w, ok := want[d.Name]
		require.True(t, ok, d.Name)
		assert.Equal(t, w.category, d.Category, d.Name)
		assert.Equal(t, w.reversible, d.Reversible, d.Name)
		assert.True(t, json.Valid(d.InputSchema), d.Name)
		if d.Reversible {
			_, isRev := tl.(domain.Reversible)
			assert.True(t, isRev, "%s is marked reversible but has no PrepareInverse", d.Name)
		}
	}
}

func TestBrowserNavigateAndInverse(t *testing.T) {
	fb := newFakeBrowser("https://docs.example.com/start")
	nav := toolByName(t, NewBrowser(fb, nil, discardLogger()).Tools(), ToolNavigate)
	args := json.RawMessage(`{"url":"https://docs.example.com/pricing"}`)

	inv, err := nav.(domain.Reversible).PrepareInverse(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, ToolNavigate, inv.ToolName)
	assert.JSONEq(t, `{"url":"https://docs.example.com/start"}`, string(inv.Arguments))

	out, err := nav.Execute(context.Background(), args)
	require.NoError(t, err)
	assert.JSONEq(t, `{"location":"https://docs.example.com/pricing"}`, string(out))

	// Running the inverse returns to the captured page.
	_, err = nav.Execute(context.Background(), inv.Arguments)
	require.NoError(t, err)
	loc, _ := fb.Location(context.Background())
	assert.Equal(t, "https://docs.example.com/start", loc)
}

func TestBrowserNavigateInverseFromBlank(t *testing.T) {
	nav := toolByName(t, NewBrowser(newFakeBrowser("about:blank"), nil, discardLogger()).Tools(), ToolNavigate)
	_, err := nav.(domain.Reversible).PrepareInverse(context.Background(), json.RawMessage(`{"url":"https://x.example"}`))
	assert.ErrorIs(t, err, domain.ErrNotReversible)
}

func TestBrowserNavigateGuarded(t *testing.T) {
	fb := newFakeBrowser("about:blank")
	nav := toolByName(t, NewBrowser(fb, denyGuard{host: "intranet"}, discardLogger()).Tools(), ToolNavigate)

	_, err := nav.Execute(context.Background(), json.RawMessage(`{"url":"http://intranet/admin"}`))
	assert.ErrorIs(t, err, domain.ErrSSRFBlocked)
	assert.Len(t, fb.history, 1, "blocked URL must not be visited")
}

func TestBrowserNavigateBackendError(t *testing.T) {
	fb := newFakeBrowser("about:blank")
	fb.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	nav := toolByName(t, NewBrowser(fb, nil, discardLogger()).Tools(), ToolNavigate)

	_, err := nav.Execute(context.Background(), json.RawMessage(`{"url":"https://nowhere.example"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "navigate")
}

func TestBrowserHighlightAndInverse(t *testing.T) {
	fb := newFakeBrowser("https://example.com")
	tools := NewBrowser(fb, nil, discardLogger()).Tools()
	hl := toolByName(t, tools, ToolHighlight)
	args := json.RawMessage(`{"selector":"#pricing"}`)

	_, err := hl.Execute(context.Background(), args)
	require.NoError(t, err)
	require.Len(t, fb.scripts, 1)
	assert.Contains(t, fb.scripts[0], `"#pricing"`)
	assert.Contains(t, fb.scripts[0], defaultHighlightColor)

	inv, err := hl.(domain.Reversible).PrepareInverse(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, ToolClearHighlight, inv.ToolName)

	_, err = toolByName(t, tools, ToolClearHighlight).Execute(context.Background(), inv.Arguments)
	require.NoError(t, err)
	assert.Contains(t, fb.scripts[1], "data-wayfinder-hl")
}

func TestBrowserInputTools(t *testing.T) {
	fb := newFakeBrowser("https://example.com/signup")
	tools := NewBrowser(fb, nil, discardLogger()).Tools()
	ctx := context.Background()

	_, err := toolByName(t, tools, ToolClick).Execute(ctx, json.RawMessage(`{"selector":"button.next"}`))
	require.NoError(t, err)
	_, err = toolByName(t, tools, ToolType).Execute(ctx, json.RawMessage(`{"selector":"#email","text":"a@b.c"}`))
	require.NoError(t, err)
	_, err = toolByName(t, tools, ToolSubmitForm).Execute(ctx, json.RawMessage(`{"selector":"form#signup"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"button.next"}, fb.clicked)
	assert.Equal(t, "a@b.c", fb.typed["#email"])
	assert.Equal(t, []string{"form#signup"}, fb.submitted)

	_, err = toolByName(t, tools, ToolClick).Execute(ctx, json.RawMessage(`{"selector":"  "}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	long := strings.Repeat("x", maxTypedText+1)
	_, err = toolByName(t, tools, ToolType).Execute(ctx, json.RawMessage(`{"selector":"#q","text":"`+long+`"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBrowserBack(t *testing.T) {
	fb := newFakeBrowser("https://a.example")
	fb.history = append(fb.history, "https://b.example")
	out, err := toolByName(t, NewBrowser(fb, nil, discardLogger()).Tools(), ToolBack).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"location":"https://a.example"}`, string(out))
}

func TestBrowserResources(t *testing.T) {
	b := NewBrowser(newFakeBrowser("https://example.com/docs"), nil, discardLogger())
	res := map[string]domain.Resource{}
	for _, r := range b.Resources() {
		res[r.Descriptor().URI] = r
	}
	require.Len(t, res, 3)

	page, err := res[ResourcePage].Read(context.Background(), map[string]string{"selector": "main"})
	require.NoError(t, err)
	var pc PageContent
	require.NoError(t, json.Unmarshal([]byte(page.Text), &pc))
	assert.Equal(t, "scope:main", pc.Text)

	loc, err := res[ResourceLocation].Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", loc.Text)

	shot, err := res[ResourceScreenshot].Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", shot.Text)
}

func TestExtractionJSScopesRoot(t *testing.T) {
	js := extractionJS(`document.querySelector("#main")`, 1234)
	assert.Contains(t, js, "const MAX = 1234;")
	assert.Contains(t, js, `document.querySelector("#main")`)
}

func TestBrowserWatchPublishesPageChange(t *testing.T) {
	b := NewBrowser(newFakeBrowser("https://docs.example.com/start"), nil, discardLogger())
	bus := &recordingBus{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Watch(ctx, bus, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.events) > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.events, 1, "an unchanged location is published once")
	assert.Equal(t, domain.EventPageChanged, bus.events[0].Type)
	assert.JSONEq(t, `{"location":"https://docs.example.com/start","title":"Docs","content":"scope:"}`, string(bus.events[0].Payload))
}
