package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

const (
	spectraAPYCap       = 200 // percent; larger Max APY figures are clamped
	spectraLookback     = 1500
	spectraNameLookback = 500
)

// SpectraPool is one pool card recovered from the Spectra pools page.
type SpectraPool struct {
	Name        string     `json:"name"`
	Token       string     `json:"token"`
	Provider    string     `json:"provider,omitempty"`
	Underlying  string     `json:"underlying"`
	MaxAPY      float64    `json:"max_apy"` // percent
	Liquidity   float64    `json:"liquidity"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	ChainID     int64      `json:"chain_id"`
	ChainName   string     `json:"chain_name"`
	PoolAddress string     `json:"pool_address"`
}

var (
	// Link text may nest one level of brackets, e.g. a chain icon image.
	spectraLink = regexp.MustCompile(`(?i)\[((?:[^\[\]]|\[[^\]]*\])*)\]\(https://app\.spectra\.finance/(?:pools|yield|liquidity)/(\w+)[:/](0x[a-f0-9]+)\)`)

	spectraAPY = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Max APY\s*([0-9]+(?:\.[0-9]+)?)\s*%`),
		regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*%\s*\+?\s*Interest-Bearing`),
		regexp.MustCompile(`(?i)APY\s*([0-9]+(?:\.[0-9]+)?)\s*%`),
	}
	spectraLiquidity = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Liquidity\s*\$\s*([\d,]+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d+)?)\s*(?:Liquidity|Expiry)`),
		regexp.MustCompile(`\$([\d,]{2,})`),
	}
	spectraExpiry = regexp.MustCompile(`Expiry\s*([A-Z][a-z]+ \d{1,2},? \d{4})`)

	// "...ExpiryMay 15 2026avUSD - AvantavUSDx": name and provider follow the date.
	spectraNameProvider = regexp.MustCompile(`Expiry\s*[A-Z][a-z]+ \d{1,2},? \d{4}\s*(\S+?)\s+-\s+([^\n\]]+)`)
	// Multi-line cards: "vbUSDC\n\nProvider\n\nMax APY".
	spectraBlockName = regexp.MustCompile(`([\w./+-]+)[ \t]*\n+[ \t]*([A-Za-z0-9 ()]+?)[ \t]*\n+[ \t]*Max APY`)
	spectraIBT       = regexp.MustCompile(`Interest-Bearing Token\s*([A-Za-z0-9.+_-]+?)\s*Liquidity`)

	spectraTokens = []*regexp.Regexp{
		regexp.MustCompile(`((?:vb|st|sav|yv|sj|av|re|hb)[A-Z0-9]+)`),
		regexp.MustCompile(`(ynETH[\w/-]*)`),
		regexp.MustCompile(`(BOLD|USDN|HYPE|AUSD|USDC|jEURx?|wETH|cbBTC)`),
	}
)

// ParseSpectra recovers pools from the markdown of app.spectra.finance/pools.
// Each pool card is a link to its pool page; fields are searched in the link
// text first and then in the text between the previous card and this one.
func ParseSpectra(md string) []SpectraPool {
	md = Normalize(md)

	var pools []SpectraPool
	seen := make(map[string]bool)
	prevEnd := 0

	for _, loc := range spectraLink.FindAllStringSubmatchIndex(md, -1) {
		start, end := loc[0], loc[1]
		linkText := md[loc[2]:loc[3]]
		slug := md[loc[4]:loc[5]]
		addr := strings.ToLower(md[loc[6]:loc[7]])

		from := start - spectraLookback
		if from < prevEnd {
			from = prevEnd
		}
		if from < 0 {
			from = 0
		}
		before := md[from:start]
		prevEnd = end

		if seen[addr] {
			continue
		}

		apy := 0.0
		if m := firstMatch(spectraAPY, linkText, before); m != nil {
			apy = parseFloat(m[1])
		}
		if apy <= 0 {
			continue
		}
		if apy > spectraAPYCap {
			apy = spectraAPYCap
		}

		liquidity := 0.0
		if m := firstMatch(spectraLiquidity, linkText, before); m != nil {
			liquidity = parseAmount(m[1], "")
		}
		if liquidity <= 0 {
			continue
		}

		pool := SpectraPool{
			MaxAPY:      apy,
			Liquidity:   liquidity,
			ChainID:     market.SpectraChainID(slug, linkText),
			PoolAddress: addr,
		}
		pool.ChainName = market.PlatformChainName(market.Spectra, pool.ChainID)

		if m := firstMatch([]*regexp.Regexp{spectraExpiry}, linkText, before); m != nil {
			if t, ok := ParseDate(m[1]); ok {
				pool.Expiry = &t
			}
		}

		nameFrom := start - spectraNameLookback
		if nameFrom < from {
			nameFrom = from
		}
		pool.Token, pool.Provider = spectraName(linkText, md[nameFrom:start])
		if pool.Token == "" {
			pool.Token = "Pool-" + shortAddr(addr)
		}
		pool.Name = pool.Token
		if pool.Provider != "" {
			pool.Name = pool.Token + " (" + pool.Provider + ")"
		}
		pool.Underlying = underlyingOf(pool.Token)

		seen[addr] = true
		pools = append(pools, pool)
	}
	return pools
}

func spectraName(linkText, near string) (token, provider string) {
	if m := spectraNameProvider.FindStringSubmatch(linkText); m != nil {
		token = strings.TrimSpace(m[1])
		provider = strings.TrimSpace(m[2])
		// The interest-bearing token symbol is glued onto the provider.
		if ibt := spectraIBT.FindStringSubmatch(linkText); ibt != nil {
			if p := strings.TrimSpace(strings.TrimSuffix(provider, ibt[1])); p != "" {
				provider = p
			}
		}
		return token, provider
	}
	for _, text := range []string{linkText, near} {
		if m := spectraBlockName.FindStringSubmatch(text); m != nil {
			return m[1], strings.TrimSpace(m[2])
		}
	}
	if m := firstMatch(spectraTokens, linkText, near); m != nil {
		return m[1], ""
	}
	return "", ""
}

func shortAddr(addr string) string {
	addr = strings.TrimPrefix(addr, "0x")
	if len(addr) > 4 {
		addr = addr[:4]
	}
	return addr
}
