package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

// openTestStore connects to TEST_DATABASE_URL and migrates it. Tests using it
// are skipped when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	return s
}

// uniquePool returns a pool whose market address does not collide with
// earlier runs against the same database.
func uniquePool(platform market.Platform) *market.Pool {
	return &market.Pool{
		Platform:        platform,
		ChainID:         1,
		MarketAddress:   "0x" + uuid.NewString(),
		Name:            "PT-weETH",
		UnderlyingAsset: "weETH",
	}
}

func TestUpsertPoolIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := uniquePool(market.Pendle)
	id1, err := s.UpsertPool(ctx, p)
	require.NoError(t, err)

	p.Name = "PT-weETH renamed"
	id2, err := s.UpsertPool(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetPool(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "PT-weETH renamed", got.Name)
	assert.Equal(t, "weETH", got.UnderlyingAsset)
	assert.Empty(t, got.PTAddress)
}

func TestGetPoolNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetPool(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotsAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertPool(ctx, uniquePool(market.Spectra))
	require.NoError(t, err)

	latest, err := s.LatestSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for _, apy := range []float64{0.05, 0.06, 0.07} {
		_, err := s.InsertSnapshot(ctx, id, market.Observation{ImpliedAPY: apy, UnderlyingAPY: apy / 2})
		require.NoError(t, err)
	}

	latest, err = s.LatestSnapshot(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 0.07, latest.ImpliedAPY, 1e-9)

	hist, err := s.PoolHistory(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.InDelta(t, 0.06, hist[0].ImpliedAPY, 1e-9)
	assert.InDelta(t, 0.07, hist[1].ImpliedAPY, 1e-9)
}

func TestAlertLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertPool(ctx, uniquePool(market.Pendle))
	require.NoError(t, err)
	_, err = s.InsertSnapshot(ctx, id, market.Observation{ImpliedAPY: 0.04, UnderlyingAPY: 0.08})
	require.NoError(t, err)

	a := &market.Alert{PoolID: id, Kind: market.ImpliedSpike, PreviousValue: 0.05, CurrentValue: 0.04, ChangePercent: -20}
	require.NoError(t, s.InsertAlert(ctx, a))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, market.StatusNew, a.Status)

	recent, err := s.HasRecentAlert(ctx, id, market.ImpliedSpike, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, recent)
	recent, err = s.HasRecentAlert(ctx, id, market.YieldDivergence, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, recent)

	drops, err := s.ImpliedDrops(ctx, time.Now().Add(-time.Hour), DropsByChange)
	require.NoError(t, err)
	var found *ImpliedDrop
	for i := range drops {
		if drops[i].ID == a.ID {
			found = &drops[i]
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, found.UnderlyingAPY)
	assert.InDelta(t, 0.08, *found.UnderlyingAPY, 1e-9)
	require.NotNil(t, found.Pool)
	assert.Equal(t, id, found.Pool.ID)

	require.NoError(t, s.SaveAnalysis(ctx, a.ID, "rates fell after a large withdrawal", []string{"https://example.org"}))
	got, err := s.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, market.StatusReviewed, got.Status)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, []string{"https://example.org"}, got.Sources)

	require.NoError(t, s.DismissAlert(ctx, a.ID))
	assert.ErrorIs(t, s.DismissAlert(ctx, uuid.NewString()), ErrNotFound)

	dismissed, err := s.ListAlerts(ctx, AlertFilter{Status: market.StatusDismissed, Limit: 500})
	require.NoError(t, err)
	var listed bool
	for _, d := range dismissed {
		listed = listed || d.ID == a.ID
	}
	assert.True(t, listed)
}

func TestDashboardQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	p := uniquePool(market.Exponent)
	p.ChainID = market.ExponentChainID
	id, err := s.UpsertPool(ctx, p)
	require.NoError(t, err)
	_, err = s.InsertSnapshot(ctx, id, market.Observation{ImpliedAPY: 0.0001})
	require.NoError(t, err)

	expired := uniquePool(market.Exponent)
	past := time.Now().Add(-48 * time.Hour)
	expired.Expiry = &past
	_, err = s.UpsertPool(ctx, expired)
	require.NoError(t, err)

	active, err := s.ListActivePools(ctx, market.Exponent)
	require.NoError(t, err)
	var sawActive, sawExpired bool
	for _, pr := range active {
		assert.Equal(t, market.Exponent, pr.Platform)
		sawActive = sawActive || pr.ID == id
		sawExpired = sawExpired || pr.MarketAddress == expired.MarketAddress
	}
	assert.True(t, sawActive)
	assert.False(t, sawExpired)

	fresh, err := s.NewPools(ctx, start)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(fresh), 2)

	lowest, err := s.LowestYield(ctx, 1000)
	require.NoError(t, err)
	for i := 1; i < len(lowest); i++ {
		assert.LessOrEqual(t, lowest[i-1].LatestRate.ImpliedAPY, lowest[i].LatestRate.ImpliedAPY)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.TotalPools, 2)
	assert.GreaterOrEqual(t, st.Chains, 1)

	health, err := s.PlatformHealth(ctx)
	require.NoError(t, err)
	require.Len(t, health, len(market.Platforms))
	for _, h := range health {
		if h.Platform == market.Exponent {
			assert.Equal(t, "fresh", h.Status(time.Now()))
		}
	}
}

func TestRateXMarketUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sym := "TEST-" + uuid.NewString()[:8]
	m := market.RateXMarket{Symbol: sym, SymbolName: "Test market", InitialUpperYieldRange: 12}
	require.NoError(t, s.UpsertRateXMarket(ctx, m))
	m.InitialUpperYieldRange = 14
	require.NoError(t, s.UpsertRateXMarket(ctx, m))

	all, err := s.ListRateXMarkets(ctx)
	require.NoError(t, err)
	var got *market.RateXMarket
	for i := range all {
		if all[i].Symbol == sym {
			got = &all[i]
		}
	}
	require.NotNil(t, got)
	assert.InDelta(t, 14.0, got.InitialUpperYieldRange, 1e-9)
}

func TestPlatformHealthStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}
	tests := []struct {
		last *time.Time
		want string
	}{
		{nil, "error"},
		{at(time.Hour), "fresh"},
		{at(4 * time.Hour), "fresh"},
		{at(5 * time.Hour), "stale"},
		{at(24 * time.Hour), "stale"},
		{at(25 * time.Hour), "error"},
	}
	for _, tt := range tests {
		h := PlatformHealth{Platform: market.Pendle, LastUpdate: tt.last}
		if got := h.Status(now); got != tt.want {
			t.Errorf("Status(%v) = %q, want %q", tt.last, got, tt.want)
		}
	}
}
