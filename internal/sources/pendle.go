package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/web3-frozen/yield-monitor/internal/alert"
	"github.com/web3-frozen/yield-monitor/internal/market"
)

const (
	DefaultPendleURL  = "https://api-v2.pendle.finance"
	pendleConcurrency = 4
)

type pendleAddress struct {
	Address string `json:"address"`
}

type pendleMarket struct {
	Address         string         `json:"address"`
	Name            string         `json:"name"`
	Expiry          string         `json:"expiry"`
	PT              *pendleAddress `json:"pt"`
	YT              *pendleAddress `json:"yt"`
	SY              *pendleAddress `json:"sy"`
	UnderlyingAsset *struct {
		Symbol string `json:"symbol"`
	} `json:"underlyingAsset"`
	ImpliedAPY    float64 `json:"impliedApy"`
	UnderlyingAPY float64 `json:"underlyingApy"`
	Liquidity     *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	TradingVolume *struct {
		USD float64 `json:"usd"`
	} `json:"tradingVolume"`
}

// Pendle collects markets from the Pendle REST API across every supported chain.
type Pendle struct {
	client *resty.Client
	logger *slog.Logger
	chains []market.Chain
}

func NewPendle(baseURL string, logger *slog.Logger) *Pendle {
	if baseURL == "" {
		baseURL = DefaultPendleURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second)
	return &Pendle{client: client, logger: logger, chains: market.PendleChains}
}

func (p *Pendle) Name() string              { return "pendle" }
func (p *Pendle) Platform() market.Platform { return market.Pendle }
func (p *Pendle) Policy() alert.Policy      { return alert.PendlePolicy }

// Collect queries every chain concurrently. A failing chain is logged and
// skipped; the run fails only when every chain fails.
func (p *Pendle) Collect(ctx context.Context) ([]market.Observation, error) {
	var (
		mu     sync.Mutex
		out    []market.Observation
		failed int
	)

	var g errgroup.Group
	g.SetLimit(pendleConcurrency)
	for _, chain := range p.chains {
		g.Go(func() error {
			markets, err := p.fetchChain(ctx, chain.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				p.logger.Warn("pendle chain fetch failed", "chain", chain.Name, "chain_id", chain.ID, "error", err)
				return nil
			}
			p.logger.Info("pendle chain fetched", "chain", chain.Name, "markets", len(markets))
			for _, m := range markets {
				out = append(out, pendleObservation(chain.ID, m))
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	if len(p.chains) > 0 && failed == len(p.chains) {
		return nil, fmt.Errorf("pendle: all %d chains failed", failed)
	}
	return out, nil
}

func (p *Pendle) fetchChain(ctx context.Context, chainID int64) ([]pendleMarket, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/core/v1/%d/markets?order_by=name%%3A1&skip=0&limit=100", chainID))
	if err != nil {
		return nil, fmt.Errorf("pendle API: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pendle API status: %d", resp.StatusCode())
	}
	return decodePendleMarkets(resp.Body())
}

// decodePendleMarkets accepts either {"results": [...]} or a bare array.
func decodePendleMarkets(body []byte) ([]pendleMarket, error) {
	body = bytes.TrimSpace(body)
	var markets []pendleMarket
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &markets); err != nil {
			return nil, fmt.Errorf("decode pendle markets: %w", err)
		}
		return markets, nil
	}
	var wrapped struct {
		Results []pendleMarket `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode pendle markets: %w", err)
	}
	return wrapped.Results, nil
}

func pendleObservation(chainID int64, m pendleMarket) market.Observation {
	var underlying string
	if m.UnderlyingAsset != nil {
		underlying = m.UnderlyingAsset.Symbol
	}
	name := m.Name
	if name == "" {
		name = firstNonEmpty(underlying, "Unknown") + " Pool"
	}

	obs := market.Observation{
		Pool: market.Pool{
			Platform:        market.Pendle,
			ChainID:         chainID,
			MarketAddress:   m.Address,
			Name:            name,
			UnderlyingAsset: underlying,
			PTAddress:       addressOf(m.PT),
			YTAddress:       addressOf(m.YT),
			SYAddress:       addressOf(m.SY),
			Expiry:          parseTime(m.Expiry),
		},
		ImpliedAPY:    m.ImpliedAPY,
		UnderlyingAPY: m.UnderlyingAPY,
	}
	if m.Liquidity != nil {
		obs.Liquidity = m.Liquidity.USD
	}
	if m.TradingVolume != nil {
		obs.Volume24h = m.TradingVolume.USD
	}
	return obs
}

func addressOf(a *pendleAddress) string {
	if a == nil {
		return ""
	}
	return a.Address
}
