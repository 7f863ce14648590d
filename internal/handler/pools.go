package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/store"
)

const newPoolWindow = 24 * time.Hour

// ListPools returns active pools, optionally filtered by ?platform=.
func ListPools(s PoolReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform := market.Platform(strings.ToLower(r.URL.Query().Get("platform")))
		if platform != "" && !platform.Valid() {
			writeError(w, http.StatusBadRequest, "unknown platform")
			return
		}
		pools, err := s.ListActivePools(r.Context(), platform)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list pools")
			return
		}
		if pools == nil {
			pools = []market.PoolWithRate{}
		}
		writeJSON(w, http.StatusOK, pools)
	}
}

// NewPools returns pools first seen in the last 24 hours.
func NewPools(s PoolReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pools, err := s.NewPools(r.Context(), time.Now().Add(-newPoolWindow))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list new pools")
			return
		}
		if pools == nil {
			pools = []market.PoolWithRate{}
		}
		writeJSON(w, http.StatusOK, pools)
	}
}

// LowestYield returns the active pools with the lowest implied APY.
func LowestYield(s PoolReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pools, err := s.LowestYield(r.Context(), intParam(r, "limit", 10, 100))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list pools")
			return
		}
		if pools == nil {
			pools = []market.PoolWithRate{}
		}
		writeJSON(w, http.StatusOK, pools)
	}
}

// PoolHistory returns a pool with its recent snapshots, oldest first.
func PoolHistory(s PoolReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, http.StatusBadRequest, "invalid pool id")
			return
		}
		pool, err := s.GetPool(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pool not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load pool")
			return
		}
		history, err := s.PoolHistory(r.Context(), id, intParam(r, "limit", 100, 1000))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load history")
			return
		}
		if history == nil {
			history = []market.Snapshot{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"pool": pool, "history": history})
	}
}
