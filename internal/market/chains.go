package market

import (
	"fmt"
	"strings"
)

// Pseudo chain ids for non-EVM platforms.
const (
	ExponentChainID int64 = 501
	RateXChainID    int64 = 502
)

// Chain is an EVM network a platform is deployed on.
type Chain struct {
	ID   int64
	Name string
}

// PendleChains are the networks queried on every Pendle collection.
var PendleChains = []Chain{
	{1, "Ethereum"},
	{42161, "Arbitrum"},
	{56, "BNB Chain"},
	{10, "Optimism"},
	{5000, "Mantle"},
	{8453, "Base"},
	{146, "Sonic"},
	{999, "Hyperliquid"},
	{21000000, "Corn"},
	{80094, "Berachain"},
}

var chainNames = map[int64]string{
	1:               "Ethereum",
	42161:           "Arbitrum",
	56:              "BNB Chain",
	10:              "Optimism",
	5000:            "Mantle",
	8453:            "Base",
	146:             "Sonic",
	999:             "Hyperliquid",
	21000000:        "Corn",
	80094:           "Berachain",
	14:              "Flare",
	43114:           "Avalanche",
	747474:          "Katana",
	ExponentChainID: "Solana",
	RateXChainID:    "Solana",
}

// ChainName returns the display name of a chain id, or "Unknown".
func ChainName(id int64) string {
	if n, ok := chainNames[id]; ok {
		return n
	}
	return "Unknown"
}

// Spectra labels chain 999 by its EVM name rather than Pendle's.
var spectraChainNames = map[int64]string{
	999: "HyperEVM",
}

// PlatformChainName is ChainName with a platform's own chain labels applied.
func PlatformChainName(p Platform, id int64) string {
	if p == Spectra {
		if n, ok := spectraChainNames[id]; ok {
			return n
		}
	}
	return ChainName(id)
}

var spectraSlugs = map[string]int64{
	"eth":       1,
	"ethereum":  1,
	"arbitrum":  42161,
	"arb":       42161,
	"op":        10,
	"optimism":  10,
	"base":      8453,
	"sonic":     146,
	"avax":      43114,
	"avalanche": 43114,
	"bsc":       56,
	"bnb":       56,
	"flare":     14,
	"katana":    747474,
	"hyperevm":  999,
}

// spectraLabels maps chain labels that appear in scraped link text.
var spectraLabels = []struct {
	label string
	id    int64
}{
	{"Katana", 747474},
	{"Avalanche", 43114},
	{"Flare", 14},
	{"Base", 8453},
	{"Ethereum", 1},
	{"Arbitrum", 42161},
	{"Optimism", 10},
	{"HyperEVM", 999},
	{"Sonic", 146},
	{"BNB", 56},
}

// SpectraChainID resolves a Spectra URL slug, falling back to a chain label
// found in the surrounding text, then to Ethereum.
func SpectraChainID(slug, label string) int64 {
	if id, ok := spectraSlugs[strings.ToLower(slug)]; ok {
		return id
	}
	for _, l := range spectraLabels {
		if strings.Contains(label, l.label) {
			return l.id
		}
	}
	return 1
}

var spectraSlugByID = map[int64]string{
	1:      "eth",
	42161:  "arbitrum",
	10:     "op",
	8453:   "base",
	146:    "sonic",
	43114:  "avax",
	56:     "bsc",
	14:     "flare",
	747474: "katana",
	999:    "hyperevm",
}

var pendleSlugByID = map[int64]string{
	1:        "ethereum",
	42161:    "arbitrum",
	56:       "bsc",
	10:       "optimism",
	5000:     "mantle",
	8453:     "base",
	146:      "sonic",
	999:      "hyperliquid",
	21000000: "corn",
	80094:    "berachain",
}

// MarketURL links to the pool's trading page on its platform.
func MarketURL(p *Pool) string {
	if p == nil {
		return ""
	}
	switch p.Platform {
	case Spectra:
		slug, ok := spectraSlugByID[p.ChainID]
		if !ok {
			slug = "eth"
		}
		return "https://app.spectra.finance/trade-yield?network=" + slug
	case Exponent:
		return "https://www.exponent.finance/income"
	case RateX:
		return "https://app.rate-x.io/swap/" + strings.TrimPrefix(p.MarketAddress, "ratex-")
	}
	slug, ok := pendleSlugByID[p.ChainID]
	if !ok {
		slug = "ethereum"
	}
	return fmt.Sprintf("https://app.pendle.finance/trade/markets/%s?chain=%s", p.MarketAddress, slug)
}
