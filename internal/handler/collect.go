package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/web3-frozen/yield-monitor/internal/monitor"
)

// Collect runs one source synchronously and returns its run summary.
func Collect(c Collector, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "source")
		res, err := c.Collect(r.Context(), name)
		if errors.Is(err, monitor.ErrUnknownSource) {
			writeError(w, http.StatusNotFound, "unknown source")
			return
		}
		if errors.Is(err, monitor.ErrCollectRunning) {
			writeError(w, http.StatusConflict, "collect already running")
			return
		}
		if err != nil {
			logger.Error("manual collect failed", "source", name, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
