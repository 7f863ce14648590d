package store

import (
	"context"
	"fmt"
)

const migrationSQL = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS pools (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    platform TEXT NOT NULL,
    chain_id BIGINT NOT NULL,
    market_address TEXT NOT NULL,
    name TEXT NOT NULL,
    underlying_asset TEXT,
    pt_address TEXT,
    yt_address TEXT,
    sy_address TEXT,
    expiry TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (chain_id, market_address)
);

CREATE INDEX IF NOT EXISTS pools_platform_updated_idx ON pools (platform, updated_at DESC);
CREATE INDEX IF NOT EXISTS pools_created_idx ON pools (created_at DESC);

CREATE TABLE IF NOT EXISTS rate_snapshots (
    id BIGSERIAL PRIMARY KEY,
    pool_id UUID NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
    implied_apy DOUBLE PRECISION NOT NULL DEFAULT 0,
    underlying_apy DOUBLE PRECISION NOT NULL DEFAULT 0,
    liquidity DOUBLE PRECISION NOT NULL DEFAULT 0,
    volume_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS rate_snapshots_pool_recorded_idx ON rate_snapshots (pool_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    pool_id UUID NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
    alert_type TEXT NOT NULL CHECK (alert_type IN ('implied_spike', 'underlying_spike', 'yield_divergence')),
    previous_value DOUBLE PRECISION NOT NULL DEFAULT 0,
    current_value DOUBLE PRECISION NOT NULL DEFAULT 0,
    change_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
    ai_analysis TEXT,
    sources TEXT[] NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'new' CHECK (status IN ('new', 'reviewed', 'dismissed')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS alerts_created_idx ON alerts (created_at DESC);
CREATE INDEX IF NOT EXISTS alerts_pool_type_created_idx ON alerts (pool_id, alert_type, created_at DESC);

CREATE TABLE IF NOT EXISTS ratex_markets (
    symbol TEXT PRIMARY KEY,
    symbol_name TEXT NOT NULL DEFAULT '',
    category_l1 TEXT NOT NULL DEFAULT '',
    category_l2 TEXT NOT NULL DEFAULT '',
    term TEXT NOT NULL DEFAULT '',
    due_date TIMESTAMPTZ,
    pt_mint TEXT,
    partners TEXT,
    partners_icon TEXT,
    partners_reward_boost TEXT,
    trade_commission DOUBLE PRECISION NOT NULL DEFAULT 0,
    initial_lower_yield_range DOUBLE PRECISION NOT NULL DEFAULT 0,
    initial_upper_yield_range DOUBLE PRECISION NOT NULL DEFAULT 0,
    earn_w DOUBLE PRECISION NOT NULL DEFAULT 0,
    sum_price DOUBLE PRECISION NOT NULL DEFAULT 0,
    ratex_id BIGINT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
