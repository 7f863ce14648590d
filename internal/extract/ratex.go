package extract

import "regexp"

var (
	ratexImplied = regexp.MustCompile(`(?i)Implied\s*Yield[\s:]*(\d+(?:\.\d+)?)\s*%`)
	ratexReal    = regexp.MustCompile(`(?i)Real\s*Yield[\s:]*(\d+(?:\.\d+)?)\s*%`)
)

// RateXYield holds the yields shown on a RateX swap page as decimal fractions.
type RateXYield struct {
	Implied *float64 `json:"implied_yield"`
	Real    *float64 `json:"real_yield"`
}

// ParseRateXYield reads "Implied Yield" and "Real Yield" from a swap page.
// A nil field means the figure was not found.
func ParseRateXYield(md string) RateXYield {
	md = Normalize(md)
	var y RateXYield
	if m := ratexImplied.FindStringSubmatch(md); m != nil {
		v := parseFloat(m[1]) / 100
		y.Implied = &v
	}
	if m := ratexReal.FindStringSubmatch(md); m != nil {
		v := parseFloat(m[1]) / 100
		y.Real = &v
	}
	return y
}
