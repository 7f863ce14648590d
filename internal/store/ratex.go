package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

// UpsertRateXMarket mirrors a RateX market descriptor keyed by symbol.
func (s *Store) UpsertRateXMarket(ctx context.Context, m market.RateXMarket) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ratex_markets (symbol, symbol_name, category_l1, category_l2, term, due_date,
			pt_mint, partners, partners_icon, partners_reward_boost, trade_commission,
			initial_lower_yield_range, initial_upper_yield_range, earn_w, sum_price, ratex_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7::text, ''), NULLIF($8::text, ''), NULLIF($9::text, ''),
			NULLIF($10::text, ''), $11, $12, $13, $14, $15, $16, now())
		ON CONFLICT (symbol) DO UPDATE SET
			symbol_name = EXCLUDED.symbol_name,
			category_l1 = EXCLUDED.category_l1,
			category_l2 = EXCLUDED.category_l2,
			term = EXCLUDED.term,
			due_date = EXCLUDED.due_date,
			pt_mint = EXCLUDED.pt_mint,
			partners = EXCLUDED.partners,
			partners_icon = EXCLUDED.partners_icon,
			partners_reward_boost = EXCLUDED.partners_reward_boost,
			trade_commission = EXCLUDED.trade_commission,
			initial_lower_yield_range = EXCLUDED.initial_lower_yield_range,
			initial_upper_yield_range = EXCLUDED.initial_upper_yield_range,
			earn_w = EXCLUDED.earn_w,
			sum_price = EXCLUDED.sum_price,
			ratex_id = EXCLUDED.ratex_id,
			updated_at = now()`,
		m.Symbol, m.SymbolName, m.CategoryL1, m.CategoryL2, m.Term, m.DueDate,
		m.PTMint, m.Partners, m.PartnersIcon, m.PartnersRewardBoost, m.TradeCommission,
		m.InitialLowerYieldRange, m.InitialUpperYieldRange, m.EarnW, m.SumPrice, m.RateXID)
	if err != nil {
		return fmt.Errorf("upsert ratex market %s: %w", m.Symbol, err)
	}
	return nil
}

// ListRateXMarkets returns the mirrored descriptors ordered by symbol.
func (s *Store) ListRateXMarkets(ctx context.Context) ([]market.RateXMarket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, symbol_name, category_l1, category_l2, term, due_date,
			COALESCE(pt_mint, ''), COALESCE(partners, ''), COALESCE(partners_icon, ''),
			COALESCE(partners_reward_boost, ''), trade_commission, initial_lower_yield_range,
			initial_upper_yield_range, earn_w, sum_price, COALESCE(ratex_id, 0), updated_at
		FROM ratex_markets
		ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list ratex markets: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (market.RateXMarket, error) {
		var m market.RateXMarket
		err := row.Scan(&m.Symbol, &m.SymbolName, &m.CategoryL1, &m.CategoryL2, &m.Term, &m.DueDate,
			&m.PTMint, &m.Partners, &m.PartnersIcon, &m.PartnersRewardBoost, &m.TradeCommission,
			&m.InitialLowerYieldRange, &m.InitialUpperYieldRange, &m.EarnW, &m.SumPrice, &m.RateXID,
			&m.UpdatedAt)
		return m, err
	})
}
