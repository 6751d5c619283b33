// Package render loads pages in a headless browser for sites whose event
// listings only exist after JavaScript has run.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pevans/eventfed/logger"
)

var (
	// ErrDisabled is returned by a renderer that has been switched off.
	ErrDisabled = errors.New("headless rendering disabled")
)

// DefaultTimeout bounds a render when the caller passes zero.
const DefaultTimeout = 45 * time.Second

// Renderer returns the DOM of url after scripts have run. Callers treat
// failures as non-fatal and fall back to the static HTML they already hold.
type Renderer interface {
	Render(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// Config configures a ChromeRenderer.
type Config struct {
	// ExecPath is the Chrome/Chromium binary. Empty lets chromedp search
	// the usual locations.
	ExecPath string
	// UserAgent overrides the browser user agent.
	UserAgent string
	// Settle is how long to wait after the document is ready, so late XHR
	// calendars can fill in.
	Settle time.Duration
}

// ChromeRenderer renders pages with chromedp. Every call starts its own
// browser and tears it down before returning.
type ChromeRenderer struct {
	cfg Config
	log logger.Logger
}

// NewChromeRenderer creates a new ChromeRenderer.
func NewChromeRenderer(cfg Config, log logger.Logger) *ChromeRenderer {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChromeRenderer{cfg: cfg, log: log}
}

func (r *ChromeRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	if r.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.cfg.UserAgent))
	}
	return opts
}

// Render navigates to url and returns the outer HTML of the document. The
// browser is released on every return path.
func (r *ChromeRenderer) Render(ctx context.Context, url string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	start := time.Now()
	var html string
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if r.cfg.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(r.cfg.Settle))
	}
	tasks = append(tasks, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", url, err)
	}

	r.log.Debug("page rendered",
		logger.String("url", url),
		logger.Int("bytes", len(html)),
		logger.Duration("duration", time.Since(start)))
	return html, nil
}

// Disabled is a Renderer that always fails with ErrDisabled.
type Disabled struct{}

// Render implements Renderer.
func (Disabled) Render(context.Context, string, time.Duration) (string, error) {
	return "", ErrDisabled
}
