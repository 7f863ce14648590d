package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ExponentPool is one market recovered from the Exponent income page.
type ExponentPool struct {
	Name      string     `json:"name"`
	Token     string     `json:"token"`
	Provider  string     `json:"provider,omitempty"`
	PTToken   string     `json:"pt_token"`
	FixedAPY  float64    `json:"fixed_apy"` // percent
	Liquidity float64    `json:"liquidity"`
	Expiry    *time.Time `json:"expiry,omitempty"`
}

var (
	exponentHeader = regexp.MustCompile(`(?i)\|\s*Market\s*\|\s*Your Positions\s*\|\s*Liquidity\s*\|\s*Fixed APY\s*\|\s*Time Left\s*\|`)

	mdImage = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLink  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)

	exponentPT        = regexp.MustCompile(`PT-[\w+]+(?:-[\w+]+)*`)
	exponentPTToken   = regexp.MustCompile(`^PT-([A-Za-z0-9+.]+)-`)
	exponentProvider  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 .]*$`)
	exponentLiquidity = regexp.MustCompile(`(?i)\$\s*([\d.,]+)\s*([KMB])?`)
	exponentAPY       = regexp.MustCompile(`([\d.]+)\s*%`)
	exponentTimeLeft  = regexp.MustCompile(`(?i)(\d+)\s*(days?|months?)`)

	exponentCardSplit     = regexp.MustCompile(`(?i)Current Fixed APY`)
	exponentCardAPY       = regexp.MustCompile(`^\s*([\d.]+)\s*%`)
	exponentCardToken     = regexp.MustCompile(`(?i)([A-Za-z0-9+]+)\s*\n\s*Maturity:`)
	exponentCardLine      = regexp.MustCompile(`\n([A-Za-z0-9+]+)[ \t]*\n`)
	exponentCardMaturity  = regexp.MustCompile(`(?i)Maturity:\s*(\d{1,2}\s+[A-Za-z]+\s+\d{4})`)
	exponentCardLiquidity = regexp.MustCompile(`(?i)\$([\d.,]+)\s*([KMB])`)
)

// ParseExponent recovers markets from the markdown of exponent.finance/income.
// The page renders a markets table; when that is missing the card layout is
// parsed instead. now anchors "time left" countdowns.
func ParseExponent(md string, now time.Time) []ExponentPool {
	md = Normalize(md)
	loc := exponentHeader.FindStringIndex(md)
	if loc == nil {
		return parseExponentCards(md)
	}
	return parseExponentTable(md[loc[1]:], now)
}

func parseExponentTable(md string, now time.Time) []ExponentPool {
	var pools []ExponentPool
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.Contains(line, "|") {
			break
		}
		if strings.Contains(line, "---") {
			continue
		}
		if p, ok := parseExponentRow(line, now); ok {
			pools = append(pools, p)
		}
	}
	return pools
}

// parseExponentRow reads one row such as
// | ![..](..)eUSXSolstice PT-eUSX-01JUN26 | - | $957.80K | 8.56% | 113 days |
func parseExponentRow(line string, now time.Time) (ExponentPool, bool) {
	line = strings.TrimPrefix(strings.TrimSuffix(line, "|"), "|")
	cells := strings.Split(line, "|")
	if len(cells) < 5 {
		return ExponentPool{}, false
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}

	marketCell := mdImage.ReplaceAllString(cells[0], "")
	marketCell = strings.TrimSpace(mdLink.ReplaceAllString(marketCell, "$1"))

	loc := exponentPT.FindStringIndex(marketCell)
	if loc == nil {
		return ExponentPool{}, false
	}
	pt := strings.TrimRight(marketCell[loc[0]:loc[1]], "-")

	token := strings.TrimPrefix(pt, "PT-")
	if m := exponentPTToken.FindStringSubmatch(pt); m != nil {
		token = m[1]
	}

	var provider string
	head := strings.Join(strings.Fields(marketCell[:loc[0]]), " ")
	if strings.HasPrefix(head, token) {
		head = strings.TrimSpace(strings.TrimPrefix(head, token))
		if exponentProvider.MatchString(head) {
			provider = head
		}
	}

	lm := exponentLiquidity.FindStringSubmatch(cells[2])
	if lm == nil {
		return ExponentPool{}, false
	}
	am := exponentAPY.FindStringSubmatch(cells[3])
	if am == nil {
		return ExponentPool{}, false
	}

	pool := ExponentPool{
		Token:     token,
		Provider:  provider,
		PTToken:   pt,
		FixedAPY:  parseFloat(am[1]),
		Liquidity: parseAmount(lm[1], lm[2]),
	}
	pool.Name = token
	if provider != "" {
		pool.Name = token + " (" + provider + ")"
	}

	if tm := exponentTimeLeft.FindStringSubmatch(cells[4]); tm != nil {
		n, _ := strconv.Atoi(tm[1])
		days := n
		if strings.HasPrefix(strings.ToLower(tm[2]), "month") {
			days = n * 30
		}
		t := now.AddDate(0, 0, days)
		pool.Expiry = &t
	}
	// The maturity encoded in the PT symbol beats the rounded countdown.
	if t, ok := ParseCompactDate(pt); ok {
		pool.Expiry = &t
	}
	return pool, true
}

// parseExponentCards handles the card layout, where every market is a block
// ending in "Current Fixed APY" followed by the rate.
func parseExponentCards(md string) []ExponentPool {
	blocks := exponentCardSplit.Split(md, -1)

	var pools []ExponentPool
	for i := 1; i < len(blocks); i++ {
		block, prev := blocks[i], blocks[i-1]

		am := exponentCardAPY.FindStringSubmatch(block)
		if am == nil {
			continue
		}
		apy := parseFloat(am[1])

		token := lastSubmatch(exponentCardToken, prev)
		if token == "" {
			token = lastSubmatch(exponentCardLine, prev)
		}
		if token == "" || apy <= 0 {
			continue
		}

		pool := ExponentPool{
			Name:     token,
			Token:    token,
			PTToken:  "PT-" + token,
			FixedAPY: apy,
		}

		maturity := lastSubmatch(exponentCardMaturity, prev)
		if maturity == "" {
			maturity = lastSubmatch(exponentCardMaturity, block)
		}
		if t, ok := ParseDate(maturity); ok {
			pool.Expiry = &t
		}

		// TVL printed beside the APY wins over TVL printed in the card header.
		own, _ := splitCard(block, false)
		_, header := splitCard(prev, i == 1)
		lm := exponentCardLiquidity.FindStringSubmatch(own)
		if lm == nil {
			lm = exponentCardLiquidity.FindStringSubmatch(header)
		}
		if lm != nil {
			pool.Liquidity = parseAmount(lm[1], lm[2])
		}

		pools = append(pools, pool)
	}
	return pools
}

// splitCard divides a block into the tail of the card whose APY opens it and
// the header of the card that follows. The first block is all header.
func splitCard(block string, first bool) (tail, header string) {
	if first {
		return "", block
	}
	if loc := exponentCardToken.FindStringIndex(block); loc != nil {
		return block[:loc[0]], block[loc[0]:]
	}
	end := 0
	if loc := exponentCardAPY.FindStringIndex(block); loc != nil {
		end = loc[1]
	}
	nl := strings.IndexByte(block[end:], '\n')
	if nl < 0 {
		return block, ""
	}
	return block[:end+nl], block[end+nl:]
}

func lastSubmatch(re *regexp.Regexp, s string) string {
	all := re.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return ""
	}
	return strings.TrimSpace(all[len(all)-1][1])
}
