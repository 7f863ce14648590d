// Package extract recovers pool records from markdown produced by scraping
// vendor web apps. Every parser is best effort: a record that cannot be
// recovered is skipped, never reported as an error.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Normalize turns the escaped line breaks that markdown extraction leaves in
// link text into real newlines so that \s matches them.
func Normalize(md string) string {
	md = strings.ReplaceAll(md, "\\\r\n", "\n")
	md = strings.ReplaceAll(md, "\\\n", "\n")
	md = strings.ReplaceAll(md, `\n`, "\n")
	return md
}

var dateLayouts = []string{
	"Jan 2 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// ParseDate accepts the human date formats seen on vendor pages and returns
// midnight UTC of that day.
func ParseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

var compactDate = regexp.MustCompile(`(\d{2})([A-Z]{3})(\d{2})$`)

// ParseCompactDate reads a DDMMMYY suffix such as the one in PT-eUSX-01JUN26.
func ParseCompactDate(s string) (time.Time, bool) {
	m := compactDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := months[m[2]]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	return time.Date(2000+year, month, day, 0, 0, 0, 0, time.UTC), true
}

// parseAmount parses "2,687,173" or "957.80" with an optional K/M/B suffix.
func parseAmount(num, suffix string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(suffix) {
	case "K":
		v *= 1_000
	case "M":
		v *= 1_000_000
	case "B":
		v *= 1_000_000_000
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// firstMatch returns the first capture group of the first pattern that
// matches any of texts, trying texts in order.
func firstMatch(patterns []*regexp.Regexp, texts ...string) []string {
	for _, text := range texts {
		for _, p := range patterns {
			if m := p.FindStringSubmatch(text); m != nil {
				return m
			}
		}
	}
	return nil
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// underlyingOf keeps the alphanumeric head of a token name: "ynETH-x" -> "ynETH".
func underlyingOf(name string) string {
	head := strings.TrimSpace(strings.SplitN(name, "-", 2)[0])
	if u := nonAlnum.ReplaceAllString(head, ""); u != "" {
		return u
	}
	return name
}
