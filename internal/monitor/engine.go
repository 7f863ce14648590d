package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/web3-frozen/yield-monitor/internal/alert"
	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/metrics"
)

const (
	defaultInterval = 15 * time.Minute
	collectTimeout  = 5 * time.Minute
)

// ErrUnknownSource is returned by Collect for an unregistered source name.
var ErrUnknownSource = errors.New("unknown source")

// ErrCollectRunning is returned by Collect while the same source is already
// being collected.
var ErrCollectRunning = errors.New("collect already running")

// Repository is the persistence the engine needs. *store.Store implements it.
type Repository interface {
	UpsertPool(ctx context.Context, p *market.Pool) (string, error)
	LatestSnapshot(ctx context.Context, poolID string) (*market.Snapshot, error)
	InsertSnapshot(ctx context.Context, poolID string, o market.Observation) (*market.Snapshot, error)
	InsertAlert(ctx context.Context, a *market.Alert) error
	HasRecentAlert(ctx context.Context, poolID string, kind market.AlertKind, since time.Time) (bool, error)
}

// Dedup holds alert repeat windows. *dedup.Deduplicator implements it.
type Dedup interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Clear(ctx context.Context, key string)
}

// Notifier is told about every persisted alert. The alert's Pool is set.
type Notifier interface {
	NotifyAlert(ctx context.Context, a market.Alert) error
}

// RunResult summarizes one collection run of a source.
type RunResult struct {
	Source           string         `json:"source"`
	MarketsProcessed int            `json:"markets_processed"`
	PoolsStored      int            `json:"pools_stored"`
	AlertsGenerated  int            `json:"alerts_generated"`
	Alerts           []market.Alert `json:"alerts"`
}

// Engine runs registered sources, stores their snapshots and raises alerts.
type Engine struct {
	repo     Repository
	logger   *slog.Logger
	dedup    Dedup
	notifier Notifier
	interval time.Duration
	now      func() time.Time

	sources map[string]Source
	order   []string
	// running serializes runs of one source so divergence dedup never races.
	running map[string]*sync.Mutex

	mu      sync.RWMutex
	lastRun map[string]time.Time
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithDedup enables Redis repeat windows. Without it the store is queried.
func WithDedup(d Dedup) Option {
	return func(e *Engine) { e.dedup = d }
}

// WithNotifier forwards persisted alerts to n.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithInterval sets the period between scheduled runs.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func NewEngine(repo Repository, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		logger:   logger,
		interval: defaultInterval,
		now:      time.Now,
		sources:  make(map[string]Source),
		running:  make(map[string]*sync.Mutex),
		lastRun:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a source to the engine. Later registrations with the same
// name replace earlier ones.
func (e *Engine) Register(src Source) {
	if _, ok := e.sources[src.Name()]; !ok {
		e.order = append(e.order, src.Name())
		e.running[src.Name()] = &sync.Mutex{}
	}
	e.sources[src.Name()] = src
	e.logger.Info("registered source", "source", src.Name(), "platform", src.Platform())
}

// SourceNames returns registered source names in registration order.
func (e *Engine) SourceNames() []string {
	return append([]string(nil), e.order...)
}

// LastRun returns when a source last completed a run successfully.
func (e *Engine) LastRun(name string) (time.Time, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.lastRun[name]
	return t, ok
}

// Run collects every source once, then again on each tick until ctx ends.
func (e *Engine) Run(ctx context.Context) {
	e.CollectAll(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.CollectAll(ctx)
		}
	}
}

// CollectAll runs every source sequentially. Failed sources are logged and
// left out of the result.
func (e *Engine) CollectAll(ctx context.Context) []*RunResult {
	var results []*RunResult
	for _, name := range e.order {
		if ctx.Err() != nil {
			break
		}
		res, err := e.Collect(ctx, name)
		if err != nil {
			e.logger.Error("collect failed", "source", name, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results
}

// Collect runs one source: fetch, drop expired markets, then for each
// observation upsert the pool, store a snapshot and raise alerts. A failing
// observation is logged and skipped. A source already being collected is
// rejected with ErrCollectRunning.
func (e *Engine) Collect(ctx context.Context, name string) (*RunResult, error) {
	src, ok := e.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	lock := e.running[name]
	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrCollectRunning, name)
	}
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	start := e.now()
	obs, err := src.Collect(ctx)
	metrics.CollectDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CollectTotal.WithLabelValues(name, "error").Inc()
		return nil, fmt.Errorf("collect %s: %w", name, err)
	}

	res := &RunResult{Source: name, MarketsProcessed: len(obs), Alerts: []market.Alert{}}
	now := e.now()
	for _, o := range obs {
		if !o.Pool.Active(now) {
			metrics.ObservationsTotal.WithLabelValues(name, "expired").Inc()
			continue
		}
		o.Pool.Platform = src.Platform()

		alerts, err := e.process(ctx, src, o)
		if err != nil {
			metrics.ObservationsTotal.WithLabelValues(name, "error").Inc()
			e.logger.Warn("observation failed", "source", name, "market", o.Pool.MarketAddress, "error", err)
			continue
		}
		metrics.ObservationsTotal.WithLabelValues(name, "stored").Inc()
		res.PoolsStored++
		res.Alerts = append(res.Alerts, alerts...)
	}
	res.AlertsGenerated = len(res.Alerts)

	metrics.CollectTotal.WithLabelValues(name, "success").Inc()
	metrics.CollectLastSuccess.WithLabelValues(name).SetToCurrentTime()
	e.mu.Lock()
	e.lastRun[name] = now
	e.mu.Unlock()

	e.logger.Info("collect complete",
		"source", name,
		"markets", res.MarketsProcessed,
		"stored", res.PoolsStored,
		"alerts", res.AlertsGenerated,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (e *Engine) process(ctx context.Context, src Source, o market.Observation) ([]market.Alert, error) {
	pool := o.Pool
	id, err := e.repo.UpsertPool(ctx, &pool)
	if err != nil {
		return nil, err
	}
	pool.ID = id

	prev, err := e.repo.LatestSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.repo.InsertSnapshot(ctx, id, o); err != nil {
		return nil, err
	}

	var out []market.Alert
	for _, c := range alert.Evaluate(prev, o, src.Policy()) {
		a, ok := e.raise(ctx, src, &pool, c)
		if ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// raise persists a candidate unless its repeat window is open.
func (e *Engine) raise(ctx context.Context, src Source, pool *market.Pool, c alert.Candidate) (market.Alert, bool) {
	name := src.Name()
	kind := string(c.Kind)

	var claimedKey string
	if c.Deduplicated() {
		window := src.Policy().DivergenceWindow
		open, key, err := e.windowOpen(ctx, pool.ID, c.Kind, window)
		if err != nil {
			e.logger.Warn("dedup check failed", "source", name, "pool", pool.ID, "type", kind, "error", err)
			return market.Alert{}, false
		}
		if open {
			metrics.AlertsDeduplicatedTotal.WithLabelValues(name, kind).Inc()
			return market.Alert{}, false
		}
		claimedKey = key
	}

	a := market.Alert{
		PoolID:        pool.ID,
		Kind:          c.Kind,
		PreviousValue: c.PreviousValue,
		CurrentValue:  c.CurrentValue,
		ChangePercent: c.ChangePercent,
	}
	if err := e.repo.InsertAlert(ctx, &a); err != nil {
		if claimedKey != "" {
			e.dedup.Clear(ctx, claimedKey)
		}
		e.logger.Warn("insert alert failed", "source", name, "pool", pool.ID, "type", kind, "error", err)
		return market.Alert{}, false
	}
	a.Pool = pool
	metrics.AlertsGeneratedTotal.WithLabelValues(name, kind).Inc()
	e.logger.Info("alert raised",
		"source", name,
		"pool", pool.DisplayName(),
		"type", kind,
		"change_percent", c.ChangePercent)

	e.notify(ctx, a)
	return a, true
}

// windowOpen reports whether an alert of kind was already raised for the pool
// within window. When Redis claims the window, its key is returned so a failed
// insert can release it.
func (e *Engine) windowOpen(ctx context.Context, poolID string, kind market.AlertKind, window time.Duration) (bool, string, error) {
	if e.dedup != nil {
		key := alert.DedupKey(poolID, kind)
		claimed, err := e.dedup.Claim(ctx, key, window)
		if err == nil {
			if !claimed {
				return true, "", nil
			}
			return false, key, nil
		}
		e.logger.Warn("redis dedup unavailable, using store", "error", err)
	}
	recent, err := e.repo.HasRecentAlert(ctx, poolID, kind, e.now().Add(-window))
	if err != nil {
		return false, "", err
	}
	return recent, "", nil
}

func (e *Engine) notify(ctx context.Context, a market.Alert) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyAlert(ctx, a); err != nil {
		metrics.AlertsNotifiedTotal.WithLabelValues(string(a.Kind), "error").Inc()
		e.logger.Error("notify alert failed", "alert", a.ID, "error", err)
		return
	}
	metrics.AlertsNotifiedTotal.WithLabelValues(string(a.Kind), "success").Inc()
}
