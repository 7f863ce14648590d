package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/sources"
)

const (
	maxYieldSymbols = 20
	yieldUsage      = `Send POST with {"symbols": ["xSOL-2604"]}`
)

// RateXImpliedYield scrapes swap pages for the posted {"symbols": [...]}.
// A missing or unreadable body gets a usage reply instead of an error.
func RateXImpliedYield(c RateXClient, logger *slog.Logger) http.HandlerFunc {
	type request struct {
		Symbols []string `json:"symbols"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"message": yieldUsage,
				"data":    []sources.ImpliedYield{},
			})
			return
		}
		symbols := req.Symbols[:0]
		for _, s := range req.Symbols {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) == 0 {
			writeError(w, http.StatusBadRequest, "symbols array is required")
			return
		}
		if len(symbols) > maxYieldSymbols {
			writeError(w, http.StatusBadRequest, "too many symbols")
			return
		}

		yields, err := c.ImpliedYields(r.Context(), symbols)
		if err != nil {
			logger.Error("ratex implied yields", "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if yields == nil {
			yields = []sources.ImpliedYield{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": yields})
	}
}

// RateXStats returns the platform-wide TVL and volume.
func RateXStats(c RateXClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := c.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to load ratex stats")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// RateXMarkets lists the mirrored RateX market descriptors.
func RateXMarkets(s RateXMarketLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		markets, err := s.ListRateXMarkets(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list ratex markets")
			return
		}
		if markets == nil {
			markets = []market.RateXMarket{}
		}
		writeJSON(w, http.StatusOK, markets)
	}
}
