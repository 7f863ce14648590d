// Package alert decides which rate movements are worth an alert.
package alert

import (
	"fmt"
	"math"
	"time"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

// Policy holds a source's alert thresholds as fractions. A zero field
// disables the corresponding alert kind.
type Policy struct {
	// ImpliedThreshold is the relative implied APY move that fires implied_spike.
	ImpliedThreshold float64
	// UnderlyingThreshold is the relative underlying APY move that fires underlying_spike.
	UnderlyingThreshold float64
	// DivergenceRatio fires yield_divergence when underlying > implied × ratio.
	DivergenceRatio float64
	// DivergenceWindow suppresses repeat divergence alerts for the same pool.
	DivergenceWindow time.Duration
}

// Presets used by the collectors.
var (
	PendlePolicy = Policy{
		ImpliedThreshold:    0.01,
		UnderlyingThreshold: 0.20,
		DivergenceRatio:     1.2,
		DivergenceWindow:    24 * time.Hour,
	}
	ScrapedPolicy = Policy{ImpliedThreshold: 0.01}
	RateXPolicy   = Policy{ImpliedThreshold: 0.10}
)

// Candidate is an alert that has not been persisted yet.
type Candidate struct {
	Kind          market.AlertKind
	PreviousValue float64
	CurrentValue  float64
	// ChangePercent is already multiplied by 100. It is signed for implied
	// spikes and a magnitude for underlying spikes.
	ChangePercent float64
}

// Deduplicated reports whether the candidate is subject to the repeat window.
func (c Candidate) Deduplicated() bool {
	return c.Kind == market.YieldDivergence
}

// DedupKey identifies a candidate's repeat window for a pool.
func DedupKey(poolID string, kind market.AlertKind) string {
	return fmt.Sprintf("alert:%s:%s", kind, poolID)
}

// Evaluate compares an observation with the previous snapshot of the same
// pool. prev may be nil for a pool seen for the first time, in which case
// only divergence can fire.
func Evaluate(prev *market.Snapshot, cur market.Observation, p Policy) []Candidate {
	var out []Candidate

	if prev != nil {
		if c, ok := spike(market.ImpliedSpike, prev.ImpliedAPY, cur.ImpliedAPY, p.ImpliedThreshold); ok {
			out = append(out, c)
		}
		if c, ok := spike(market.UnderlyingSpike, prev.UnderlyingAPY, cur.UnderlyingAPY, p.UnderlyingThreshold); ok {
			out = append(out, c)
		}
	}

	if p.DivergenceRatio > 0 && cur.ImpliedAPY > 0 && cur.UnderlyingAPY > cur.ImpliedAPY*p.DivergenceRatio {
		out = append(out, Candidate{
			Kind:          market.YieldDivergence,
			PreviousValue: cur.ImpliedAPY,
			CurrentValue:  cur.UnderlyingAPY,
			ChangePercent: (cur.UnderlyingAPY - cur.ImpliedAPY) / cur.ImpliedAPY * 100,
		})
	}
	return out
}

func spike(kind market.AlertKind, prev, cur, threshold float64) (Candidate, bool) {
	if threshold <= 0 || prev <= 0 {
		return Candidate{}, false
	}
	change := (cur - prev) / prev
	if math.Abs(change) < threshold {
		return Candidate{}, false
	}
	if kind == market.UnderlyingSpike {
		change = math.Abs(change)
	}
	return Candidate{
		Kind:          kind,
		PreviousValue: prev,
		CurrentValue:  cur,
		ChangePercent: change * 100,
	}, true
}
