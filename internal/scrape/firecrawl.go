package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// Firecrawl renders pages through the Firecrawl scrape API.
type Firecrawl struct {
	client *resty.Client
	logger *slog.Logger
}

func NewFirecrawl(baseURL, apiKey string, logger *slog.Logger) *Firecrawl {
	if baseURL == "" {
		baseURL = DefaultFirecrawlURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)
	return &Firecrawl{client: client, logger: logger}
}

type firecrawlRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	WaitFor         int64    `json:"waitFor,omitempty"`
	Timeout         int64    `json:"timeout,omitempty"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
}

func (f *Firecrawl) Markdown(ctx context.Context, req Request) (string, error) {
	body := firecrawlRequest{
		URL:             req.URL,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
		WaitFor:         req.WaitFor.Milliseconds(),
		Timeout:         req.Timeout.Milliseconds(),
	}

	var out firecrawlResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/v1/scrape")
	if err != nil {
		return "", fmt.Errorf("firecrawl %s: %w", req.URL, err)
	}
	if resp.IsError() {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return "", fmt.Errorf("firecrawl %s: status %d: %s", req.URL, resp.StatusCode(), msg)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "scrape unsuccessful"
		}
		return "", fmt.Errorf("firecrawl %s: %s", req.URL, msg)
	}

	f.logger.Debug("firecrawl scrape", "url", req.URL, "bytes", len(out.Data.Markdown))
	return out.Data.Markdown, nil
}
