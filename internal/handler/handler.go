// Package handler serves the dashboard JSON API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/web3-frozen/yield-monitor/internal/analysis"
	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/monitor"
	"github.com/web3-frozen/yield-monitor/internal/sources"
	"github.com/web3-frozen/yield-monitor/internal/store"
)

// PoolReader serves pool listings. *store.Store implements it.
type PoolReader interface {
	ListActivePools(ctx context.Context, platform market.Platform) ([]market.PoolWithRate, error)
	NewPools(ctx context.Context, since time.Time) ([]market.PoolWithRate, error)
	LowestYield(ctx context.Context, limit int) ([]market.PoolWithRate, error)
	GetPool(ctx context.Context, id string) (*market.Pool, error)
	PoolHistory(ctx context.Context, poolID string, limit int) ([]market.Snapshot, error)
}

// AlertStore reads and updates alerts. *store.Store implements it.
type AlertStore interface {
	ListAlerts(ctx context.Context, f store.AlertFilter) ([]market.Alert, error)
	ImpliedDrops(ctx context.Context, since time.Time, order store.DropOrder) ([]store.ImpliedDrop, error)
	GetAlert(ctx context.Context, id string) (*market.Alert, error)
	DismissAlert(ctx context.Context, id string) error
	SaveAnalysis(ctx context.Context, id, analysis string, sources []string) error
}

// DashboardReader serves headline counters. *store.Store implements it.
type DashboardReader interface {
	Stats(ctx context.Context) (*store.Stats, error)
	PlatformHealth(ctx context.Context) ([]store.PlatformHealth, error)
}

// Collector runs a source on demand. *monitor.Engine implements it.
type Collector interface {
	Collect(ctx context.Context, name string) (*monitor.RunResult, error)
}

// Analyzer explains an alert. *analysis.Analyst implements it.
type Analyzer interface {
	Analyze(ctx context.Context, a market.Alert, pool market.Pool) (analysis.Result, error)
}

// RateXClient is the live RateX surface. *sources.RateX implements it.
type RateXClient interface {
	ImpliedYields(ctx context.Context, symbols []string) ([]sources.ImpliedYield, error)
	Stats(ctx context.Context) (sources.RateXStats, error)
}

// RateXMarketLister lists mirrored RateX descriptors. *store.Store implements it.
type RateXMarketLister interface {
	ListRateXMarkets(ctx context.Context) ([]market.RateXMarket, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// intParam reads a positive integer query parameter capped at max.
func intParam(r *http.Request, key string, fallback, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
