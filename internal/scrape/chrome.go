package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const defaultChromeTimeout = 60 * time.Second

// Chrome renders pages in a local headless Chrome. It needs no API key and
// is the fallback when no Firecrawl key is configured.
type Chrome struct {
	logger *slog.Logger
	opts   []chromedp.ExecAllocatorOption
}

func NewChrome(logger *slog.Logger) *Chrome {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-crash-reporter", true),
		chromedp.Flag("crash-dumps-dir", "/tmp"),
	)
	return &Chrome{logger: logger, opts: opts}
}

func (c *Chrome) Markdown(ctx context.Context, req Request) (string, error) {
	base, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", req.URL, err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.opts...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultChromeTimeout
	}
	tabCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	start := time.Now()
	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(req.WaitFor),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("chromedp %s: %w", req.URL, err)
	}

	md, err := HTMLToMarkdown(strings.NewReader(html), base)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", req.URL, err)
	}
	c.logger.Debug("chrome render", "url", req.URL, "bytes", len(md), "elapsed", time.Since(start))
	return md, nil
}
