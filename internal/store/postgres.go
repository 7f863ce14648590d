package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Pools ---

const poolColumns = `p.id::text, p.platform, p.chain_id, p.market_address, p.name,
	COALESCE(p.underlying_asset, ''), COALESCE(p.pt_address, ''), COALESCE(p.yt_address, ''),
	COALESCE(p.sy_address, ''), p.expiry, p.created_at, p.updated_at`

func poolDest(p *market.Pool) []any {
	return []any{&p.ID, &p.Platform, &p.ChainID, &p.MarketAddress, &p.Name,
		&p.UnderlyingAsset, &p.PTAddress, &p.YTAddress, &p.SYAddress, &p.Expiry,
		&p.CreatedAt, &p.UpdatedAt}
}

// UpsertPool inserts or refreshes a pool keyed by (chain_id, market_address)
// and returns its id.
func (s *Store) UpsertPool(ctx context.Context, p *market.Pool) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pools (platform, chain_id, market_address, name, underlying_asset,
			pt_address, yt_address, sy_address, expiry, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5::text, ''), NULLIF($6::text, ''), NULLIF($7::text, ''),
			NULLIF($8::text, ''), $9, now())
		ON CONFLICT (chain_id, market_address) DO UPDATE SET
			platform = EXCLUDED.platform,
			name = EXCLUDED.name,
			underlying_asset = EXCLUDED.underlying_asset,
			pt_address = EXCLUDED.pt_address,
			yt_address = EXCLUDED.yt_address,
			sy_address = EXCLUDED.sy_address,
			expiry = EXCLUDED.expiry,
			updated_at = now()
		RETURNING id::text`,
		string(p.Platform), p.ChainID, p.MarketAddress, p.Name, p.UnderlyingAsset,
		p.PTAddress, p.YTAddress, p.SYAddress, p.Expiry).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert pool %d/%s: %w", p.ChainID, p.MarketAddress, err)
	}
	return id, nil
}

// GetPool returns a pool by id.
func (s *Store) GetPool(ctx context.Context, id string) (*market.Pool, error) {
	var p market.Pool
	err := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools p WHERE p.id = $1::uuid`, id).
		Scan(poolDest(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	return &p, nil
}

// --- Snapshots ---

const snapshotColumns = `r.id, r.pool_id::text, r.implied_apy, r.underlying_apy, r.liquidity, r.volume_24h, r.recorded_at`

func snapshotDest(r *market.Snapshot) []any {
	return []any{&r.ID, &r.PoolID, &r.ImpliedAPY, &r.UnderlyingAPY, &r.Liquidity, &r.Volume24h, &r.RecordedAt}
}

// LatestSnapshot returns the most recent snapshot of a pool, or nil when
// the pool has none yet.
func (s *Store) LatestSnapshot(ctx context.Context, poolID string) (*market.Snapshot, error) {
	var r market.Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM rate_snapshots r
		WHERE r.pool_id = $1::uuid
		ORDER BY r.recorded_at DESC, r.id DESC
		LIMIT 1`, poolID).Scan(snapshotDest(&r)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot %s: %w", poolID, err)
	}
	return &r, nil
}

// InsertSnapshot appends a reading for a pool.
func (s *Store) InsertSnapshot(ctx context.Context, poolID string, o market.Observation) (*market.Snapshot, error) {
	r := market.Snapshot{
		PoolID:        poolID,
		ImpliedAPY:    o.ImpliedAPY,
		UnderlyingAPY: o.UnderlyingAPY,
		Liquidity:     o.Liquidity,
		Volume24h:     o.Volume24h,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rate_snapshots (pool_id, implied_apy, underlying_apy, liquidity, volume_24h)
		VALUES ($1::uuid, $2, $3, $4, $5)
		RETURNING id, recorded_at`,
		poolID, o.ImpliedAPY, o.UnderlyingAPY, o.Liquidity, o.Volume24h).Scan(&r.ID, &r.RecordedAt)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot %s: %w", poolID, err)
	}
	return &r, nil
}

// PoolHistory returns up to limit of the most recent snapshots of a pool,
// oldest first.
func (s *Store) PoolHistory(ctx context.Context, poolID string, limit int) ([]market.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT * FROM (
			SELECT `+snapshotColumns+`
			FROM rate_snapshots r
			WHERE r.pool_id = $1::uuid
			ORDER BY r.recorded_at DESC, r.id DESC
			LIMIT $2
		) h ORDER BY h.recorded_at ASC, h.id ASC`, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("pool history %s: %w", poolID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (market.Snapshot, error) {
		var r market.Snapshot
		err := row.Scan(snapshotDest(&r)...)
		return r, err
	})
}
