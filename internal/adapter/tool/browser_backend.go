package tool

import "context"

// BrowserBackend drives a single browser tab.
type BrowserBackend interface {
	// Navigate loads url and waits for the body to be ready.
	Navigate(ctx context.Context, url string) error
	// Back goes one entry back in the tab history.
	Back(ctx context.Context) error
	// Location returns the current URL.
	Location(ctx context.Context) (string, error)
	// GetContent extracts readable page text, optionally scoped to selector.
	GetContent(ctx context.Context, selector string) (*PageContent, error)
	// Screenshot returns the viewport as a base64 JPEG.
	Screenshot(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	// Submit submits the form containing selector.
	Submit(ctx context.Context, selector string) error
	// Evaluate runs a script and discards the result.
	Evaluate(ctx context.Context, script string) error
	Close() error
	Name() string
}

// PageContent is the readable extraction of the current page.
type PageContent struct {
	Title string     `json:"title"`
	URL   string     `json:"url"`
	Text  string     `json:"text"`
	Links []PageLink `json:"links,omitempty"`
	Forms []PageForm `json:"forms,omitempty"`
}

// PageLink is one anchor on the page.
type PageLink struct {
	Text     string `json:"text"`
	Href     string `json:"href"`
	Selector string `json:"selector"`
}

// PageForm is one form and its named fields.
type PageForm struct {
	Selector string   `json:"selector"`
	Action   string   `json:"action,omitempty"`
	Fields   []string `json:"fields,omitempty"`
}
