package alert

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

func obs(implied, underlying float64) market.Observation {
	return market.Observation{ImpliedAPY: implied, UnderlyingAPY: underlying}
}

func snap(implied, underlying float64) *market.Snapshot {
	return &market.Snapshot{ImpliedAPY: implied, UnderlyingAPY: underlying}
}

func TestEvaluate(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-9)

	tests := []struct {
		name   string
		prev   *market.Snapshot
		cur    market.Observation
		policy Policy
		want   []Candidate
	}{
		{
			name:   "first observation, no divergence",
			cur:    obs(0.10, 0.05),
			policy: PendlePolicy,
		},
		{
			name:   "implied drop past 1%",
			prev:   snap(0.10, 0.05),
			cur:    obs(0.09, 0.05),
			policy: PendlePolicy,
			want:   []Candidate{{Kind: market.ImpliedSpike, PreviousValue: 0.10, CurrentValue: 0.09, ChangePercent: -10}},
		},
		{
			name:   "implied move below threshold",
			prev:   snap(0.10, 0.05),
			cur:    obs(0.1005, 0.05),
			policy: PendlePolicy,
		},
		{
			name:   "implied move exactly at threshold fires",
			prev:   snap(0.5, 0),
			cur:    obs(0.505, 0),
			policy: ScrapedPolicy,
			want:   []Candidate{{Kind: market.ImpliedSpike, PreviousValue: 0.5, CurrentValue: 0.505, ChangePercent: 1}},
		},
		{
			name:   "ratex ignores a 5% move",
			prev:   snap(0.10, 0.08),
			cur:    obs(0.105, 0.08),
			policy: RateXPolicy,
		},
		{
			name:   "ratex fires on 10%",
			prev:   snap(0.10, 0.08),
			cur:    obs(0.12, 0.08),
			policy: RateXPolicy,
			want:   []Candidate{{Kind: market.ImpliedSpike, PreviousValue: 0.10, CurrentValue: 0.12, ChangePercent: 20}},
		},
		{
			name:   "zero previous implied never spikes",
			prev:   snap(0, 0),
			cur:    obs(0.2, 0),
			policy: PendlePolicy,
		},
		{
			name:   "underlying rise",
			prev:   snap(0.10, 0.05),
			cur:    obs(0.10, 0.07),
			policy: PendlePolicy,
			want:   []Candidate{{Kind: market.UnderlyingSpike, PreviousValue: 0.05, CurrentValue: 0.07, ChangePercent: 40}},
		},
		{
			name:   "underlying fall stores the magnitude",
			prev:   snap(0.10, 0.05),
			cur:    obs(0.10, 0.03),
			policy: PendlePolicy,
			want:   []Candidate{{Kind: market.UnderlyingSpike, PreviousValue: 0.05, CurrentValue: 0.03, ChangePercent: 40}},
		},
		{
			name:   "underlying halving",
			prev:   snap(10, 10),
			cur:    obs(10, 5),
			policy: PendlePolicy,
			want:   []Candidate{{Kind: market.UnderlyingSpike, PreviousValue: 10, CurrentValue: 5, ChangePercent: 50}},
		},
		{
			name:   "divergence without previous snapshot",
			cur:    obs(0.05, 0.08),
			policy: PendlePolicy,
			want:   []Candidate{{Kind: market.YieldDivergence, PreviousValue: 0.05, CurrentValue: 0.08, ChangePercent: 60}},
		},
		{
			name:   "divergence at exactly 1.2x does not fire",
			cur:    obs(0.05, 0.06),
			policy: PendlePolicy,
		},
		{
			name:   "scraped policy never diverges",
			cur:    obs(0.05, 0.5),
			policy: ScrapedPolicy,
		},
		{
			name:   "all three at once",
			prev:   snap(0.10, 0.10),
			cur:    obs(0.05, 0.20),
			policy: PendlePolicy,
			want: []Candidate{
				{Kind: market.ImpliedSpike, PreviousValue: 0.10, CurrentValue: 0.05, ChangePercent: -50},
				{Kind: market.UnderlyingSpike, PreviousValue: 0.10, CurrentValue: 0.20, ChangePercent: 100},
				{Kind: market.YieldDivergence, PreviousValue: 0.05, CurrentValue: 0.20, ChangePercent: 300},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.prev, tt.cur, tt.policy)
			if diff := cmp.Diff(tt.want, got, approx, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCandidateDeduplicated(t *testing.T) {
	if !(Candidate{Kind: market.YieldDivergence}).Deduplicated() {
		t.Error("divergence should be deduplicated")
	}
	if (Candidate{Kind: market.ImpliedSpike}).Deduplicated() {
		t.Error("implied spike should not be deduplicated")
	}
}

func TestDedupKey(t *testing.T) {
	if got := DedupKey("abc", market.YieldDivergence); got != "alert:yield_divergence:abc" {
		t.Errorf("DedupKey = %q", got)
	}
}
