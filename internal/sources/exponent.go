package sources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/web3-frozen/yield-monitor/internal/alert"
	"github.com/web3-frozen/yield-monitor/internal/extract"
	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/scrape"
)

const (
	exponentIncomeURL = "https://www.exponent.finance/income"
	// Exponent publishes no underlying rate; it is estimated from the fixed APY.
	exponentUnderlyingRatio = 0.7
)

// Exponent collects markets by rendering the Exponent income page.
type Exponent struct {
	fetcher scrape.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

func NewExponent(fetcher scrape.Fetcher, logger *slog.Logger) *Exponent {
	return &Exponent{fetcher: fetcher, logger: logger, now: time.Now}
}

func (e *Exponent) Name() string              { return "exponent" }
func (e *Exponent) Platform() market.Platform { return market.Exponent }
func (e *Exponent) Policy() alert.Policy      { return alert.ScrapedPolicy }

func (e *Exponent) Collect(ctx context.Context) ([]market.Observation, error) {
	md, err := e.fetcher.Markdown(ctx, scrape.Request{
		URL:     exponentIncomeURL,
		WaitFor: 15 * time.Second,
		Timeout: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("scrape exponent: %w", err)
	}

	pools := extract.ParseExponent(md, e.now().UTC())
	e.logger.Info("exponent page parsed", "bytes", len(md), "pools", len(pools))

	out := make([]market.Observation, 0, len(pools))
	for _, p := range pools {
		implied := p.FixedAPY / 100
		out = append(out, market.Observation{
			Pool: market.Pool{
				Platform:        market.Exponent,
				ChainID:         market.ExponentChainID,
				MarketAddress:   "exponent-" + market.Slug(p.PTToken),
				Name:            p.Name,
				UnderlyingAsset: p.Token,
				PTAddress:       p.PTToken,
				Expiry:          p.Expiry,
			},
			ImpliedAPY:    implied,
			UnderlyingAPY: implied * exponentUnderlyingRatio,
			Liquidity:     p.Liquidity,
		})
	}
	return out, nil
}
