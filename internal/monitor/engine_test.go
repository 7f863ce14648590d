package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-frozen/yield-monitor/internal/alert"
	"github.com/web3-frozen/yield-monitor/internal/dedup"
	"github.com/web3-frozen/yield-monitor/internal/market"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockSource implements Source for testing.
type mockSource struct {
	name     string
	platform market.Platform
	policy   alert.Policy
	obs      []market.Observation
	err      error
}

func (m *mockSource) Name() string              { return m.name }
func (m *mockSource) Platform() market.Platform { return m.platform }
func (m *mockSource) Policy() alert.Policy      { return m.policy }

func (m *mockSource) Collect(context.Context) ([]market.Observation, error) {
	return m.obs, m.err
}

// memRepo is an in-memory Repository.
type memRepo struct {
	mu        sync.Mutex
	pools     map[string]market.Pool
	snapshots map[string][]market.Snapshot
	alerts    []market.Alert
	failPool  string
	failAlert bool
	recentErr error
}

func newMemRepo() *memRepo {
	return &memRepo{pools: map[string]market.Pool{}, snapshots: map[string][]market.Snapshot{}}
}

func (r *memRepo) UpsertPool(_ context.Context, p *market.Pool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.MarketAddress == r.failPool {
		return "", errors.New("upsert failed")
	}
	id := fmt.Sprintf("%d-%s", p.ChainID, p.MarketAddress)
	cp := *p
	cp.ID = id
	r.pools[id] = cp
	return id, nil
}

func (r *memRepo) LatestSnapshot(_ context.Context, poolID string) (*market.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snapshots[poolID]
	if len(s) == 0 {
		return nil, nil
	}
	last := s[len(s)-1]
	return &last, nil
}

func (r *memRepo) InsertSnapshot(_ context.Context, poolID string, o market.Observation) (*market.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := market.Snapshot{
		ID:            int64(len(r.snapshots[poolID]) + 1),
		PoolID:        poolID,
		ImpliedAPY:    o.ImpliedAPY,
		UnderlyingAPY: o.UnderlyingAPY,
		RecordedAt:    time.Now(),
	}
	r.snapshots[poolID] = append(r.snapshots[poolID], s)
	return &s, nil
}

func (r *memRepo) InsertAlert(_ context.Context, a *market.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAlert {
		return errors.New("insert failed")
	}
	a.ID = fmt.Sprintf("alert-%d", len(r.alerts)+1)
	a.Status = market.StatusNew
	a.CreatedAt = time.Now()
	r.alerts = append(r.alerts, *a)
	return nil
}

func (r *memRepo) HasRecentAlert(_ context.Context, poolID string, kind market.AlertKind, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recentErr != nil {
		return false, r.recentErr
	}
	for _, a := range r.alerts {
		if a.PoolID == poolID && a.Kind == kind && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

type recordingNotifier struct {
	got []market.Alert
	err error
}

func (n *recordingNotifier) NotifyAlert(_ context.Context, a market.Alert) error {
	n.got = append(n.got, a)
	return n.err
}

func obs(addr string, implied, underlying float64) market.Observation {
	return market.Observation{
		Pool:          market.Pool{ChainID: 1, MarketAddress: addr, Name: "PT-" + addr},
		ImpliedAPY:    implied,
		UnderlyingAPY: underlying,
	}
}

func TestEngineRegisterAndSourceNames(t *testing.T) {
	e := NewEngine(newMemRepo(), testLogger())

	e.Register(&mockSource{name: "pendle"})
	e.Register(&mockSource{name: "spectra"})
	e.Register(&mockSource{name: "pendle"})

	assert.Equal(t, []string{"pendle", "spectra"}, e.SourceNames())
}

func TestCollectUnknownSource(t *testing.T) {
	e := NewEngine(newMemRepo(), testLogger())
	_, err := e.Collect(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

// blockingSource holds Collect open until released.
type blockingSource struct {
	mockSource
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) Collect(ctx context.Context) ([]market.Observation, error) {
	b.started <- struct{}{}
	<-b.release
	return b.obs, nil
}

func TestCollectRejectsOverlappingRun(t *testing.T) {
	e := NewEngine(newMemRepo(), testLogger())
	src := &blockingSource{
		mockSource: mockSource{name: "pendle", policy: alert.PendlePolicy},
		started:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	e.Register(src)
	e.Register(&mockSource{name: "spectra"})

	done := make(chan error, 1)
	go func() {
		_, err := e.Collect(context.Background(), "pendle")
		done <- err
	}()
	<-src.started

	_, err := e.Collect(context.Background(), "pendle")
	assert.ErrorIs(t, err, ErrCollectRunning)

	_, err = e.Collect(context.Background(), "spectra")
	assert.NoError(t, err, "other sources are not blocked")

	close(src.release)
	require.NoError(t, <-done)

	_, err = e.Collect(context.Background(), "pendle")
	assert.NoError(t, err)
}

func TestCollectSourceError(t *testing.T) {
	e := NewEngine(newMemRepo(), testLogger())
	e.Register(&mockSource{name: "pendle", err: errors.New("upstream down")})

	_, err := e.Collect(context.Background(), "pendle")
	require.Error(t, err)
	_, ran := e.LastRun("pendle")
	assert.False(t, ran)
}

func TestCollectStoresAndRaisesSpikes(t *testing.T) {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	e := NewEngine(repo, testLogger(), WithNotifier(notifier))
	src := &mockSource{
		name:     "spectra",
		platform: market.Spectra,
		policy:   alert.ScrapedPolicy,
		obs:      []market.Observation{obs("a", 0.10, 0), obs("b", 0.05, 0)},
	}
	e.Register(src)

	res, err := e.Collect(context.Background(), "spectra")
	require.NoError(t, err)
	assert.Equal(t, 2, res.MarketsProcessed)
	assert.Equal(t, 2, res.PoolsStored)
	assert.Zero(t, res.AlertsGenerated)
	assert.NotNil(t, res.Alerts)

	for _, p := range repo.pools {
		assert.Equal(t, market.Spectra, p.Platform)
	}

	// a drops 10%, b moves 0.5% which is under the 1% threshold.
	src.obs = []market.Observation{obs("a", 0.09, 0), obs("b", 0.05025, 0)}
	res, err = e.Collect(context.Background(), "spectra")
	require.NoError(t, err)
	require.Equal(t, 1, res.AlertsGenerated)

	got := res.Alerts[0]
	assert.Equal(t, market.ImpliedSpike, got.Kind)
	assert.Equal(t, "1-a", got.PoolID)
	assert.InDelta(t, -10.0, got.ChangePercent, 1e-9)
	require.NotNil(t, got.Pool)
	assert.Equal(t, "PT-a", got.Pool.Name)

	require.Len(t, notifier.got, 1)
	assert.Equal(t, got.ID, notifier.got[0].ID)

	last, ok := e.LastRun("spectra")
	assert.True(t, ok)
	assert.False(t, last.IsZero())
}

func TestCollectDropsExpiredAndSkipsFailures(t *testing.T) {
	repo := newMemRepo()
	repo.failPool = "broken"
	e := NewEngine(repo, testLogger())

	past := time.Now().Add(-time.Hour)
	expired := obs("old", 0.05, 0)
	expired.Pool.Expiry = &past

	e.Register(&mockSource{
		name:   "exponent",
		policy: alert.ScrapedPolicy,
		obs:    []market.Observation{expired, obs("broken", 0.05, 0), obs("ok", 0.05, 0)},
	})

	res, err := e.Collect(context.Background(), "exponent")
	require.NoError(t, err)
	assert.Equal(t, 3, res.MarketsProcessed)
	assert.Equal(t, 1, res.PoolsStored)
	assert.Len(t, repo.pools, 1)
}

func TestDivergenceDedupWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	d, err := dedup.New("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	repo := newMemRepo()
	e := NewEngine(repo, testLogger(), WithDedup(d))
	src := &mockSource{
		name:     "pendle",
		platform: market.Pendle,
		policy:   alert.PendlePolicy,
		obs:      []market.Observation{obs("m", 0.05, 0.08)},
	}
	e.Register(src)

	res, err := e.Collect(context.Background(), "pendle")
	require.NoError(t, err)
	require.Equal(t, 1, res.AlertsGenerated)
	assert.Equal(t, market.YieldDivergence, res.Alerts[0].Kind)
	assert.InDelta(t, 0.05, res.Alerts[0].PreviousValue, 1e-9)
	assert.InDelta(t, 0.08, res.Alerts[0].CurrentValue, 1e-9)
	assert.True(t, mr.Exists(alert.DedupKey("1-m", market.YieldDivergence)))

	res, err = e.Collect(context.Background(), "pendle")
	require.NoError(t, err)
	assert.Zero(t, res.AlertsGenerated)

	mr.FastForward(25 * time.Hour)
	res, err = e.Collect(context.Background(), "pendle")
	require.NoError(t, err)
	assert.Equal(t, 1, res.AlertsGenerated)
}

func TestDivergenceDedupFallsBackToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	d, err := dedup.New("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	mr.Close()

	repo := newMemRepo()
	e := NewEngine(repo, testLogger(), WithDedup(d))
	e.Register(&mockSource{
		name:   "pendle",
		policy: alert.PendlePolicy,
		obs:    []market.Observation{obs("m", 0.05, 0.08)},
	})

	res, err := e.Collect(context.Background(), "pendle")
	require.NoError(t, err)
	assert.Equal(t, 1, res.AlertsGenerated)

	res, err = e.Collect(context.Background(), "pendle")
	require.NoError(t, err)
	assert.Zero(t, res.AlertsGenerated)
}

func TestDivergenceWithoutRedisUsesStore(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, testLogger())
	e.Register(&mockSource{
		name:   "pendle",
		policy: alert.PendlePolicy,
		obs:    []market.Observation{obs("m", 0.05, 0.08)},
	})

	for i, want := range []int{1, 0, 0} {
		res, err := e.Collect(context.Background(), "pendle")
		require.NoError(t, err)
		assert.Equal(t, want, res.AlertsGenerated, "run %d", i)
	}

	repo.recentErr = errors.New("db down")
	res, err := e.Collect(context.Background(), "pendle")
	require.NoError(t, err)
	assert.Zero(t, res.AlertsGenerated)
}

func TestFailedInsertReleasesClaim(t *testing.T) {
	mr := miniredis.RunT(t)
	d, err := dedup.New("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	repo := newMemRepo()
	repo.failAlert = true
	e := NewEngine(repo, testLogger(), WithDedup(d))
	e.Register(&mockSource{
		name:   "pendle",
		policy: alert.PendlePolicy,
		obs:    []market.Observation{obs("m", 0.05, 0.08)},
	})

	res, err := e.Collect(context.Background(), "pendle")
	require.NoError(t, err)
	assert.Zero(t, res.AlertsGenerated)
	assert.False(t, mr.Exists(alert.DedupKey("1-m", market.YieldDivergence)))
}

func TestNotifierErrorDoesNotDropAlert(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	e := NewEngine(newMemRepo(), testLogger(), WithNotifier(notifier))
	e.Register(&mockSource{
		name:   "pendle",
		policy: alert.PendlePolicy,
		obs:    []market.Observation{obs("m", 0.05, 0.08)},
	})

	res, err := e.Collect(context.Background(), "pendle")
	require.NoError(t, err)
	assert.Equal(t, 1, res.AlertsGenerated)
	assert.Len(t, notifier.got, 1)
}

func TestCollectAllSkipsFailingSources(t *testing.T) {
	e := NewEngine(newMemRepo(), testLogger())
	e.Register(&mockSource{name: "bad", err: errors.New("boom")})
	e.Register(&mockSource{name: "good", policy: alert.ScrapedPolicy, obs: []market.Observation{obs("x", 0.05, 0)}})

	results := e.CollectAll(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].Source)
}

func TestRunCollectsImmediatelyAndStops(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo, testLogger(), WithInterval(time.Hour))
	e.Register(&mockSource{name: "pendle", policy: alert.PendlePolicy, obs: []market.Observation{obs("m", 0.05, 0)}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := e.LastRun("pendle")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
