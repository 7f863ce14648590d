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

const spectraPoolsURL = "https://app.spectra.finance/pools"

// Spectra collects pools by rendering the Spectra pools page.
type Spectra struct {
	fetcher scrape.Fetcher
	logger  *slog.Logger
}

func NewSpectra(fetcher scrape.Fetcher, logger *slog.Logger) *Spectra {
	return &Spectra{fetcher: fetcher, logger: logger}
}

func (s *Spectra) Name() string              { return "spectra" }
func (s *Spectra) Platform() market.Platform { return market.Spectra }
func (s *Spectra) Policy() alert.Policy      { return alert.ScrapedPolicy }

func (s *Spectra) Collect(ctx context.Context) ([]market.Observation, error) {
	md, err := s.fetcher.Markdown(ctx, scrape.Request{URL: spectraPoolsURL, WaitFor: 8 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("scrape spectra: %w", err)
	}

	pools := extract.ParseSpectra(md)
	s.logger.Info("spectra page parsed", "bytes", len(md), "pools", len(pools))

	out := make([]market.Observation, 0, len(pools))
	for _, p := range pools {
		out = append(out, market.Observation{
			Pool: market.Pool{
				Platform:        market.Spectra,
				ChainID:         p.ChainID,
				MarketAddress:   fmt.Sprintf("spectra-%d-%s", p.ChainID, p.PoolAddress),
				Name:            p.Name,
				UnderlyingAsset: p.Underlying,
				Expiry:          p.Expiry,
			},
			ImpliedAPY: p.MaxAPY / 100,
			Liquidity:  p.Liquidity,
		})
	}
	return out, nil
}
