package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/web3-frozen/yield-monitor/internal/alert"
	"github.com/web3-frozen/yield-monitor/internal/extract"
	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/scrape"
)

const (
	DefaultRateXURL = "https://api.rate-x.io/"
	rateXAppURL     = "https://app.rate-x.io"
)

// flexFloat decodes a JSON number, a numeric string, or null. Anything
// unparseable becomes 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexString decodes a JSON string or the literal text of any other scalar.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(b)
	return nil
}

type rateXSymbol struct {
	ID                     flexFloat  `json:"id"`
	Symbol                 flexString `json:"symbol"`
	SymbolName             flexString `json:"symbol_name"`
	SymbolLevel1Category   flexString `json:"symbol_level1_category"`
	SymbolLevel2Category   flexString `json:"symbol_level2_category"`
	Term                   flexString `json:"term"`
	DueDate                flexString `json:"due_date"`
	SumPrice               flexFloat  `json:"sum_price"`
	TradeCommission        flexFloat  `json:"trade_commission"`
	PTMint                 flexString `json:"pt_mint"`
	Partners               flexString `json:"partners"`
	PartnersIcon           flexString `json:"partners_icon"`
	PartnersRewardBoost    flexString `json:"partners_reward_boost"`
	EarnW                  flexFloat  `json:"earn_w"`
	InitialLowerYieldRange flexFloat  `json:"initial_lower_yield_range"`
	InitialUpperYieldRange flexFloat  `json:"initial_upper_yield_range"`
	IsDelete               flexString `json:"is_delete"`
}

type rateXRequest struct {
	ServerName string         `json:"serverName"`
	Method     string         `json:"method"`
	Content    map[string]any `json:"content"`
}

type rateXResponse struct {
	// Code is nil when the response carries no code, which is not a success.
	Code *flexFloat      `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// RateXStats are the platform-wide totals.
type RateXStats struct {
	TVL    float64 `json:"total_tvl"`
	Volume float64 `json:"total_volume"`
}

// ImpliedYield is a yield pair scraped from a RateX swap page.
type ImpliedYield struct {
	Symbol       string    `json:"symbol"`
	ImpliedYield float64   `json:"impliedYield"`
	RealYield    float64   `json:"realYield"`
	Timestamp    time.Time `json:"timestamp"`
}

// RateXMarketStore receives the vendor market descriptors on every run.
type RateXMarketStore interface {
	UpsertRateXMarket(ctx context.Context, m market.RateXMarket) error
}

// RateX collects markets from the RateX admin RPC endpoint.
type RateX struct {
	client  *resty.Client
	logger  *slog.Logger
	markets RateXMarketStore
	fetcher scrape.Fetcher
	// scrapeYields overrides RPC yields with the swap page figures.
	scrapeYields bool
	now          func() time.Time
}

// RateXOption configures optional RateX behavior.
type RateXOption func(*RateX)

// WithMarketStore mirrors every fetched market descriptor into s.
func WithMarketStore(s RateXMarketStore) RateXOption {
	return func(r *RateX) { r.markets = s }
}

// WithYieldScraper enables swap page scraping. With override set, scraped
// yields replace the RPC yield ranges during collection.
func WithYieldScraper(f scrape.Fetcher, override bool) RateXOption {
	return func(r *RateX) {
		r.fetcher = f
		r.scrapeYields = override
	}
}

func NewRateX(baseURL string, logger *slog.Logger, opts ...RateXOption) *RateX {
	if baseURL == "" {
		baseURL = DefaultRateXURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "*/*").
		SetHeader("Origin", rateXAppURL).
		SetHeader("Referer", rateXAppURL+"/").
		SetTimeout(30 * time.Second)
	r := &RateX{client: client, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RateX) Name() string              { return "ratex" }
func (r *RateX) Platform() market.Platform { return market.RateX }
func (r *RateX) Policy() alert.Policy      { return alert.RateXPolicy }

func (r *RateX) call(ctx context.Context, method string, out any) error {
	body := rateXRequest{
		ServerName: "AdminSvr",
		Method:     method,
		Content:    map[string]any{"cid": uuid.NewString()},
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/")
	if err != nil {
		return fmt.Errorf("ratex %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("ratex %s: status %d", method, resp.StatusCode())
	}
	// Proxies may omit the JSON content type.
	var res rateXResponse
	if err := json.Unmarshal(resp.Body(), &res); err != nil {
		return fmt.Errorf("decode ratex %s: %w", method, err)
	}
	if res.Code == nil {
		return fmt.Errorf("ratex %s: response without code: %s", method, res.Msg)
	}
	if *res.Code != 0 {
		return fmt.Errorf("ratex %s: code %v: %s", method, float64(*res.Code), res.Msg)
	}
	if out == nil || len(res.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Data, out); err != nil {
		return fmt.Errorf("decode ratex %s: %w", method, err)
	}
	return nil
}

func (r *RateX) symbols(ctx context.Context) ([]rateXSymbol, error) {
	var raw json.RawMessage
	if err := r.call(ctx, "querySymbol", &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)

	var syms []rateXSymbol
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &syms); err != nil {
			return nil, fmt.Errorf("decode ratex symbols: %w", err)
		}
		return syms, nil
	}
	var nested struct {
		Symbols []rateXSymbol `json:"symbols"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, fmt.Errorf("decode ratex symbols: %w", err)
		}
	}
	return nested.Symbols, nil
}

// Stats returns platform TVL and volume.
func (r *RateX) Stats(ctx context.Context) (RateXStats, error) {
	var data struct {
		TVL    flexFloat `json:"total_u_tvl"`
		Volume flexFloat `json:"total_u_volume"`
	}
	if err := r.call(ctx, "queryTotalVolumeAndTvl", &data); err != nil {
		return RateXStats{}, err
	}
	return RateXStats{TVL: float64(data.TVL), Volume: float64(data.Volume)}, nil
}

func (r *RateX) Collect(ctx context.Context) ([]market.Observation, error) {
	syms, err := r.symbols(ctx)
	if err != nil {
		return nil, err
	}

	if stats, err := r.Stats(ctx); err != nil {
		r.logger.Warn("ratex stats failed", "error", err)
	} else {
		r.logger.Info("ratex stats", "tvl", stats.TVL, "volume", stats.Volume)
	}

	now := r.now()
	out := make([]market.Observation, 0, len(syms))
	for _, s := range syms {
		if s.IsDelete == "1" || s.Symbol == "" {
			continue
		}
		desc := rateXDescriptor(s, now)

		if r.markets != nil {
			if err := r.markets.UpsertRateXMarket(ctx, desc); err != nil {
				r.logger.Warn("mirror ratex market failed", "symbol", desc.Symbol, "error", err)
			}
		}

		obs := market.Observation{
			Pool: market.Pool{
				Platform:        market.RateX,
				ChainID:         market.RateXChainID,
				MarketAddress:   "ratex-" + desc.Symbol,
				Name:            firstNonEmpty(desc.SymbolName, desc.Symbol),
				UnderlyingAsset: desc.CategoryL1,
				PTAddress:       desc.PTMint,
				Expiry:          desc.DueDate,
			},
			ImpliedAPY:    desc.InitialUpperYieldRange / 100,
			UnderlyingAPY: desc.InitialLowerYieldRange / 100,
		}

		if r.scrapeYields && r.fetcher != nil && obs.Pool.Active(now) {
			y, err := r.scrapeYield(ctx, desc.Symbol)
			if err != nil {
				r.logger.Warn("ratex yield scrape failed", "symbol", desc.Symbol, "error", err)
			} else {
				if y.Implied != nil {
					obs.ImpliedAPY = *y.Implied
				}
				if y.Real != nil {
					obs.UnderlyingAPY = *y.Real
				}
			}
		}
		out = append(out, obs)
	}
	r.logger.Info("ratex markets fetched", "total", len(syms), "kept", len(out))
	return out, nil
}

func rateXDescriptor(s rateXSymbol, now time.Time) market.RateXMarket {
	return market.RateXMarket{
		Symbol:                 string(s.Symbol),
		SymbolName:             string(s.SymbolName),
		CategoryL1:             string(s.SymbolLevel1Category),
		CategoryL2:             string(s.SymbolLevel2Category),
		Term:                   string(s.Term),
		DueDate:                parseTime(string(s.DueDate)),
		PTMint:                 string(s.PTMint),
		Partners:               string(s.Partners),
		PartnersIcon:           string(s.PartnersIcon),
		PartnersRewardBoost:    string(s.PartnersRewardBoost),
		TradeCommission:        float64(s.TradeCommission),
		InitialLowerYieldRange: float64(s.InitialLowerYieldRange),
		InitialUpperYieldRange: float64(s.InitialUpperYieldRange),
		EarnW:                  float64(s.EarnW),
		SumPrice:               float64(s.SumPrice),
		RateXID:                int64(s.ID),
		UpdatedAt:              now,
	}
}

func (r *RateX) scrapeYield(ctx context.Context, symbol string) (extract.RateXYield, error) {
	md, err := r.fetcher.Markdown(ctx, scrape.Request{
		URL:     rateXAppURL + "/swap/" + symbol,
		WaitFor: 5 * time.Second,
	})
	if err != nil {
		return extract.RateXYield{}, err
	}
	return extract.ParseRateXYield(md), nil
}

// ImpliedYields scrapes the swap page of each symbol. Symbols whose page
// shows no implied yield are left out; a failing page is logged and skipped.
func (r *RateX) ImpliedYields(ctx context.Context, symbols []string) ([]ImpliedYield, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("ratex: no page fetcher configured")
	}
	out := make([]ImpliedYield, 0, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		y, err := r.scrapeYield(ctx, sym)
		if err != nil {
			r.logger.Warn("ratex yield scrape failed", "symbol", sym, "error", err)
			continue
		}
		if y.Implied == nil {
			continue
		}
		iy := ImpliedYield{Symbol: sym, ImpliedYield: *y.Implied, Timestamp: r.now().UTC()}
		if y.Real != nil {
			iy.RealYield = *y.Real
		}
		out = append(out, iy)
	}
	return out, nil
}
