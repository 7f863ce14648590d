// Package analysis asks a search-backed chat model why a pool's yield moved.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

const (
	DefaultURL   = "https://api.perplexity.ai"
	DefaultModel = "sonar"

	// Unavailable is stored when the model returns no content.
	Unavailable = "analysis unavailable"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("analysis: api key not configured")

// Result is an explanation with the pages it cites.
type Result struct {
	Text    string   `json:"analysis"`
	Sources []string `json:"sources"`
}

// Analyst explains alerts through the Perplexity chat completions API.
type Analyst struct {
	client   *resty.Client
	logger   *slog.Logger
	model    string
	language string
	apiKey   string
}

// Config selects the endpoint and answer language. Empty fields take defaults.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
}

func New(cfg Config, logger *slog.Logger) *Analyst {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(90 * time.Second)
	return &Analyst{
		client:   client,
		logger:   logger,
		model:    cfg.Model,
		language: cfg.Language,
		apiKey:   cfg.APIKey,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	SearchRecencyFilter string        `json:"search_recency_filter"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Analyze asks for the likely cause of an alert's move. pool must be the
// alert's pool.
func (a *Analyst) Analyze(ctx context.Context, al market.Alert, pool market.Pool) (Result, error) {
	if a.apiKey == "" {
		return Result{}, ErrNotConfigured
	}

	req := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(a.language)},
			{Role: "user", Content: userPrompt(al, pool)},
		},
		SearchRecencyFilter: "week",
	}

	var out chatResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return Result{}, fmt.Errorf("analyze alert %s: %w", al.ID, err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("analyze alert %s: status %d: %s", al.ID, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	res := Result{Text: Unavailable, Sources: out.Citations}
	if len(out.Choices) > 0 && strings.TrimSpace(out.Choices[0].Message.Content) != "" {
		res.Text = out.Choices[0].Message.Content
	}
	if res.Sources == nil {
		res.Sources = []string{}
	}
	a.logger.Info("alert analyzed", "alert", al.ID, "sources", len(res.Sources))
	return res, nil
}

func systemPrompt(language string) string {
	return "You are a DeFi analyst. Find the reason for a yield change in a fixed-term yield pool.\n" +
		"Answer in " + language + ". Be brief and specific (200 words at most).\n" +
		"Include:\n" +
		"1. The likely cause (protocol updates, emission changes, market conditions, large holders)\n" +
		"2. Concrete sources if you found any\n" +
		"3. Short recommendations\n\n" +
		"If no specific cause can be found, suggest the most likely scenarios for this asset type under current market conditions."
}

func userPrompt(al market.Alert, pool market.Pool) string {
	asset := pool.DisplayName()
	direction := strings.ToLower(market.Direction(al.Falling()))

	var b strings.Builder
	fmt.Fprintf(&b, "Pool: %s\n", pool.Name)
	fmt.Fprintf(&b, "Platform: %s\n", pool.Platform.Label())
	fmt.Fprintf(&b, "Asset: %s\n", asset)
	fmt.Fprintf(&b, "Network: %s\n", market.PlatformChainName(pool.Platform, pool.ChainID))
	fmt.Fprintf(&b, "Event: %s\n", al.Label())
	fmt.Fprintf(&b, "Previous value: %s\n", market.FormatPercent(al.PreviousValue))
	fmt.Fprintf(&b, "Current value: %s\n", market.FormatPercent(al.CurrentValue))
	fmt.Fprintf(&b, "Change: %s\n\n", market.FormatChange(al.ChangePercent))
	fmt.Fprintf(&b, "Find the reason for this yield %s. Check recent news about %s, protocol changes and large transactions.", direction, asset)
	return b.String()
}
