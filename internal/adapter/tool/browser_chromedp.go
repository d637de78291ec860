package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"wayfinder/internal/domain"
)

// maxScreenshotBase64 caps the encoded screenshot size handed to a vision model.
const maxScreenshotBase64 = 200_000

// screenshotQualities are tried in order until a capture fits.
var screenshotQualities = []int64{80, 60, 40, 20}

// ChromeDPConfig configures the chromedp backend.
type ChromeDPConfig struct {
	// RemoteURL attaches to a running browser's DevTools endpoint. Empty
	// launches a local Chrome.
	RemoteURL string
	Headless  bool
	// Timeout bounds each browser action.
	Timeout time.Duration
	// MaxContent caps extracted page text in characters.
	MaxContent int
}

// ChromeDPBackend implements BrowserBackend over one chromedp tab.
type ChromeDPBackend struct {
	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	timeout     time.Duration
	maxContent  int
	logger      *slog.Logger
}

// NewChromeDPBackend starts or attaches to a browser and opens a tab.
func NewChromeDPBackend(cfg ChromeDPConfig, logger *slog.Logger) (*ChromeDPBackend, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxContent <= 0 {
		cfg.MaxContent = 20_000
	}
	b := &ChromeDPBackend{timeout: cfg.Timeout, maxContent: cfg.MaxContent, logger: logger}

	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		logger.Info("chromedp attaching to remote browser", "url", cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1280, 800),
		)
		allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		logger.Info("chromedp launching local browser", "headless", cfg.Headless)
	}

	// The first Run binds the CDP session to tabCtx, so it must not carry a
	// deadline of its own; the start timeout is enforced from outside.
	b.tabCtx, b.tabCancel = chromedp.NewContext(allocCtx)
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(b.tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-time.After(cfg.Timeout):
		b.Close()
		return nil, fmt.Errorf("start browser: %w after %v", domain.ErrTimeout, cfg.Timeout)
	}
	return b, nil
}

// Name implements BrowserBackend.
func (b *ChromeDPBackend) Name() string { return "chromedp" }

// do runs actions on the tab under the per-action timeout. The caller's ctx
// cancels the action too.
func (b *ChromeDPBackend) do(ctx context.Context, actions ...chromedp.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tabCtx == nil {
		return fmt.Errorf("browser closed")
	}

	tctx, cancel := context.WithTimeout(b.tabCtx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(tctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate implements BrowserBackend.
func (b *ChromeDPBackend) Navigate(ctx context.Context, url string) error {
	return b.do(ctx, chromedp.Navigate(url), chromedp.WaitReady("body"))
}

// Back implements BrowserBackend.
func (b *ChromeDPBackend) Back(ctx context.Context) error {
	return b.do(ctx, chromedp.NavigateBack(), chromedp.WaitReady("body"))
}

// Location implements BrowserBackend.
func (b *ChromeDPBackend) Location(ctx context.Context) (string, error) {
	var loc string
	if err := b.do(ctx, chromedp.Location(&loc)); err != nil {
		return "", domain.WrapOp("location", err)
	}
	return loc, nil
}

// GetContent implements BrowserBackend.
func (b *ChromeDPBackend) GetContent(ctx context.Context, selector string) (*PageContent, error) {
	root := "document.body"
	if selector != "" {
		root = fmt.Sprintf("document.querySelector(%q)", selector)
	}
	var raw string
	if err := b.do(ctx, chromedp.Evaluate(extractionJS(root, b.maxContent), &raw)); err != nil {
		return nil, domain.WrapOp("get content", err)
	}
	var pc PageContent
	if err := json.Unmarshal([]byte(raw), &pc); err != nil {
		pc.Text = raw
	}
	return &pc, nil
}

// Screenshot implements BrowserBackend. Quality is stepped down until the
// encoded image fits; the smallest attempt is returned regardless.
func (b *ChromeDPBackend) Screenshot(ctx context.Context) (string, error) {
	var encoded string
	for _, q := range screenshotQualities {
		var buf []byte
		err := b.do(ctx, chromedp.ActionFunc(func(actx context.Context) error {
			data, err := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(q).
				Do(actx)
			buf = data
			return err
		}))
		if err != nil {
			return "", domain.WrapOp("screenshot", err)
		}
		encoded = base64.StdEncoding.EncodeToString(buf)
		if len(encoded) <= maxScreenshotBase64 {
			return encoded, nil
		}
		b.logger.Debug("screenshot too large, lowering quality", "quality", q, "size", len(encoded))
	}
	return encoded, nil
}

// Click implements BrowserBackend.
func (b *ChromeDPBackend) Click(ctx context.Context, selector string) error {
	return b.do(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Type implements BrowserBackend.
func (b *ChromeDPBackend) Type(ctx context.Context, selector, text string) error {
	return b.do(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// Submit implements BrowserBackend.
func (b *ChromeDPBackend) Submit(ctx context.Context, selector string) error {
	return b.do(ctx,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Submit(selector, chromedp.ByQuery),
	)
}

// Evaluate implements BrowserBackend.
func (b *ChromeDPBackend) Evaluate(ctx context.Context, script string) error {
	var ignored any
	return b.do(ctx, chromedp.Evaluate(script, &ignored))
}

// Close releases the tab and the allocator.
func (b *ChromeDPBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tabCancel != nil {
		b.tabCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.tabCtx = nil
	b.logger.Info("chromedp browser closed")
	return nil
}

var _ BrowserBackend = (*ChromeDPBackend)(nil)
