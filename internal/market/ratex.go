package market

import "time"

// RateXMarket mirrors the vendor's market descriptor. Yield ranges are in
// percent as published.
type RateXMarket struct {
	Symbol                 string     `json:"symbol"`
	SymbolName             string     `json:"symbol_name"`
	CategoryL1             string     `json:"category_l1"`
	CategoryL2             string     `json:"category_l2"`
	Term                   string     `json:"term"`
	DueDate                *time.Time `json:"due_date,omitempty"`
	PTMint                 string     `json:"pt_mint,omitempty"`
	Partners               string     `json:"partners,omitempty"`
	PartnersIcon           string     `json:"partners_icon,omitempty"`
	PartnersRewardBoost    string     `json:"partners_reward_boost,omitempty"`
	TradeCommission        float64    `json:"trade_commission"`
	InitialLowerYieldRange float64    `json:"initial_lower_yield_range"`
	InitialUpperYieldRange float64    `json:"initial_upper_yield_range"`
	EarnW                  float64    `json:"earn_w"`
	SumPrice               float64    `json:"sum_price"`
	RateXID                int64      `json:"ratex_id"`
	UpdatedAt              time.Time  `json:"updated_at"`
}
