package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Ready checks the database. Optional dependencies such as Redis are not
// part of readiness.
func Ready(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type platformStatus struct {
	Platform   market.Platform `json:"platform"`
	Label      string          `json:"label"`
	PoolCount  int             `json:"pool_count"`
	LastUpdate *time.Time      `json:"last_update"`
	Status     string          `json:"status"`
}

// PlatformHealth reports data freshness per platform.
func PlatformHealth(d DashboardReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health, err := d.PlatformHealth(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load platform health")
			return
		}
		now := time.Now()
		out := make([]platformStatus, 0, len(health))
		for _, h := range health {
			out = append(out, platformStatus{
				Platform:   h.Platform,
				Label:      h.Platform.Label(),
				PoolCount:  h.PoolCount,
				LastUpdate: h.LastUpdate,
				Status:     h.Status(now),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
