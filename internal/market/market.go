// Package market holds the canonical pool, snapshot and alert schema shared
// by every source, the store and the HTTP API.
package market

import (
	"regexp"
	"strings"
	"time"
)

// Platform identifies which upstream a pool was collected from.
type Platform string

const (
	Pendle   Platform = "pendle"
	Spectra  Platform = "spectra"
	Exponent Platform = "exponent"
	RateX    Platform = "ratex"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{Pendle, Spectra, Exponent, RateX}

// Label returns the human-readable platform name.
func (p Platform) Label() string {
	switch p {
	case Pendle:
		return "Pendle"
	case Spectra:
		return "Spectra"
	case Exponent:
		return "Exponent"
	case RateX:
		return "RateX"
	}
	return string(p)
}

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// Pool is a fixed-term yield market. (ChainID, MarketAddress) is unique.
type Pool struct {
	ID              string     `json:"id"`
	Platform        Platform   `json:"platform"`
	ChainID         int64      `json:"chain_id"`
	MarketAddress   string     `json:"market_address"`
	Name            string     `json:"name"`
	UnderlyingAsset string     `json:"underlying_asset,omitempty"`
	PTAddress       string     `json:"pt_address,omitempty"`
	YTAddress       string     `json:"yt_address,omitempty"`
	SYAddress       string     `json:"sy_address,omitempty"`
	Expiry          *time.Time `json:"expiry,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Active reports whether the pool has not expired yet. Pools without an
// expiry are always active.
func (p *Pool) Active(now time.Time) bool {
	return p.Expiry == nil || p.Expiry.After(now)
}

// DisplayName prefers the underlying asset symbol over the full market name.
func (p *Pool) DisplayName() string {
	if p.UnderlyingAsset != "" {
		return p.UnderlyingAsset
	}
	if p.Name != "" {
		return p.Name
	}
	return "Unknown"
}

// Snapshot is one timestamped reading of a pool's rates. APYs are decimal
// fractions, liquidity and volume are USD.
type Snapshot struct {
	ID            int64     `json:"id"`
	PoolID        string    `json:"pool_id"`
	ImpliedAPY    float64   `json:"implied_apy"`
	UnderlyingAPY float64   `json:"underlying_apy"`
	Liquidity     float64   `json:"liquidity"`
	Volume24h     float64   `json:"volume_24h"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Observation is a normalized market record produced by a source in one
// collection run.
type Observation struct {
	Pool          Pool
	ImpliedAPY    float64
	UnderlyingAPY float64
	Liquidity     float64
	Volume24h     float64
}

// PoolWithRate is a pool joined with its most recent snapshot.
type PoolWithRate struct {
	Pool
	LatestRate *Snapshot `json:"latest_rate,omitempty"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]`)

// Slug lowercases s and replaces every character outside [a-z0-9] with '-'.
func Slug(s string) string {
	return nonSlug.ReplaceAllString(strings.ToLower(s), "-")
}
