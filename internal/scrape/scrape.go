// Package scrape renders vendor web apps into markdown for the extract parsers.
package scrape

import (
	"context"
	"time"

	"github.com/web3-frozen/yield-monitor/internal/metrics"
)

// Request describes one page render.
type Request struct {
	URL string
	// WaitFor is how long to let client-side rendering settle before capture.
	WaitFor time.Duration
	// Timeout bounds the whole render; zero means the fetcher default.
	Timeout time.Duration
}

// Fetcher returns the rendered markdown of a page.
type Fetcher interface {
	Markdown(ctx context.Context, req Request) (string, error)
}

type counted struct {
	backend string
	next    Fetcher
}

// Counted records every render of f under the given backend label.
func Counted(backend string, f Fetcher) Fetcher {
	return &counted{backend: backend, next: f}
}

func (c *counted) Markdown(ctx context.Context, req Request) (string, error) {
	md, err := c.next.Markdown(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ScrapeTotal.WithLabelValues(c.backend, status).Inc()
	return md, err
}
