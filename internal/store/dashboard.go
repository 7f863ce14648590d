package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

// latestRateJoin attaches each pool's newest snapshot as lr.*.
const latestRateJoin = `
	LEFT JOIN LATERAL (
		SELECT r.id, r.pool_id::text AS pool_id, r.implied_apy, r.underlying_apy,
			r.liquidity, r.volume_24h, r.recorded_at
		FROM rate_snapshots r
		WHERE r.pool_id = p.id
		ORDER BY r.recorded_at DESC, r.id DESC
		LIMIT 1
	) lr ON true`

const latestRateColumns = `lr.id, lr.pool_id, lr.implied_apy, lr.underlying_apy, lr.liquidity, lr.volume_24h, lr.recorded_at`

// scanPoolWithRate reads poolColumns followed by latestRateColumns.
func scanPoolWithRate(row pgx.CollectableRow) (market.PoolWithRate, error) {
	var (
		pr         market.PoolWithRate
		id         *int64
		poolID     *string
		implied    *float64
		underlying *float64
		liquidity  *float64
		volume     *float64
		recordedAt *time.Time
	)
	dest := append(poolDest(&pr.Pool), &id, &poolID, &implied, &underlying, &liquidity, &volume, &recordedAt)
	if err := row.Scan(dest...); err != nil {
		return pr, err
	}
	if id != nil {
		pr.LatestRate = &market.Snapshot{
			ID:            *id,
			PoolID:        *poolID,
			ImpliedAPY:    *implied,
			UnderlyingAPY: *underlying,
			Liquidity:     *liquidity,
			Volume24h:     *volume,
			RecordedAt:    *recordedAt,
		}
	}
	return pr, nil
}

// ListActivePools returns unexpired pools with their latest snapshot, most
// recently updated first. An empty platform lists every platform.
func (s *Store) ListActivePools(ctx context.Context, platform market.Platform) ([]market.PoolWithRate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+poolColumns+`, `+latestRateColumns+`
		FROM pools p`+latestRateJoin+`
		WHERE (p.expiry IS NULL OR p.expiry > now())
		  AND ($1::text = '' OR p.platform = $1::text)
		ORDER BY p.updated_at DESC`, string(platform))
	if err != nil {
		return nil, fmt.Errorf("list active pools: %w", err)
	}
	return pgx.CollectRows(rows, scanPoolWithRate)
}

// NewPools returns pools first seen since the given time, newest first.
func (s *Store) NewPools(ctx context.Context, since time.Time) ([]market.PoolWithRate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+poolColumns+`, `+latestRateColumns+`
		FROM pools p`+latestRateJoin+`
		WHERE p.created_at >= $1
		ORDER BY p.created_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("new pools: %w", err)
	}
	return pgx.CollectRows(rows, scanPoolWithRate)
}

// LowestYield returns active pools with a positive latest implied APY,
// lowest first.
func (s *Store) LowestYield(ctx context.Context, limit int) ([]market.PoolWithRate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+poolColumns+`, `+latestRateColumns+`
		FROM pools p`+latestRateJoin+`
		WHERE (p.expiry IS NULL OR p.expiry > now())
		  AND lr.implied_apy > 0
		ORDER BY lr.implied_apy ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("lowest yield: %w", err)
	}
	return pgx.CollectRows(rows, scanPoolWithRate)
}

// Stats are the dashboard headline counters.
type Stats struct {
	TotalPools int `json:"total_pools"`
	NewAlerts  int `json:"new_alerts"`
	Chains     int `json:"chains"`
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM pools),
			(SELECT COUNT(*) FROM alerts WHERE status = 'new'),
			(SELECT COUNT(DISTINCT chain_id) FROM pools)`).
		Scan(&st.TotalPools, &st.NewAlerts, &st.Chains)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &st, nil
}

// Freshness thresholds for PlatformHealth.Status.
const (
	FreshWithin = 4 * time.Hour
	StaleWithin = 24 * time.Hour
)

// PlatformHealth summarizes how recently a platform's pools were refreshed.
type PlatformHealth struct {
	Platform   market.Platform `json:"platform"`
	PoolCount  int             `json:"pool_count"`
	LastUpdate *time.Time      `json:"last_update"`
}

// Status is "fresh" when updated within 4h, "stale" within 24h, else "error".
func (h PlatformHealth) Status(now time.Time) string {
	if h.LastUpdate == nil {
		return "error"
	}
	age := now.Sub(*h.LastUpdate)
	switch {
	case age <= FreshWithin:
		return "fresh"
	case age <= StaleWithin:
		return "stale"
	}
	return "error"
}

// PlatformHealth returns one entry per known platform, including platforms
// with no pools yet.
func (s *Store) PlatformHealth(ctx context.Context) ([]PlatformHealth, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT platform, COUNT(*), MAX(updated_at)
		FROM pools
		GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("platform health: %w", err)
	}
	found, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PlatformHealth, error) {
		var h PlatformHealth
		err := row.Scan(&h.Platform, &h.PoolCount, &h.LastUpdate)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("platform health: %w", err)
	}

	byPlatform := make(map[market.Platform]PlatformHealth, len(found))
	for _, h := range found {
		byPlatform[h.Platform] = h
	}
	out := make([]PlatformHealth, 0, len(market.Platforms))
	for _, p := range market.Platforms {
		h, ok := byPlatform[p]
		if !ok {
			h = PlatformHealth{Platform: p}
		}
		out = append(out, h)
	}
	return out, nil
}
