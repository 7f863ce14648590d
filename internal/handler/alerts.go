package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/web3-frozen/yield-monitor/internal/analysis"
	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/metrics"
	"github.com/web3-frozen/yield-monitor/internal/store"
)

const impliedDropWindow = time.Hour

// ListAlerts returns recent alerts, optionally filtered by ?status= and ?type=.
func ListAlerts(s AlertStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := store.AlertFilter{
			Status: market.AlertStatus(q.Get("status")),
			Kind:   market.AlertKind(q.Get("type")),
			Limit:  intParam(r, "limit", 50, 500),
		}
		switch f.Status {
		case "", market.StatusNew, market.StatusReviewed, market.StatusDismissed:
		default:
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		switch f.Kind {
		case "", market.ImpliedSpike, market.UnderlyingSpike, market.YieldDivergence:
		default:
			writeError(w, http.StatusBadRequest, "invalid type")
			return
		}

		alerts, err := s.ListAlerts(r.Context(), f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list alerts")
			return
		}
		if alerts == nil {
			alerts = []market.Alert{}
		}
		writeJSON(w, http.StatusOK, alerts)
	}
}

// ImpliedDrops returns last hour's implied APY drops sorted by ?sort=change|time|apy.
func ImpliedDrops(s AlertStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order := store.DropOrder(r.URL.Query().Get("sort"))
		switch order {
		case "":
			order = store.DropsByChange
		case store.DropsByChange, store.DropsByTime, store.DropsByAPY:
		default:
			writeError(w, http.StatusBadRequest, "sort must be change, time or apy")
			return
		}
		drops, err := s.ImpliedDrops(r.Context(), time.Now().Add(-impliedDropWindow), order)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list implied drops")
			return
		}
		if drops == nil {
			drops = []store.ImpliedDrop{}
		}
		writeJSON(w, http.StatusOK, drops)
	}
}

// alertID validates the {id} path parameter, writing a 400 when malformed.
func alertID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "valid alert id is required")
		return "", false
	}
	return id, true
}

func DismissAlert(s AlertStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := alertID(w, r)
		if !ok {
			return
		}
		err := s.DismissAlert(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		if err != nil {
			logger.Error("dismiss alert", "alert", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to dismiss alert")
			return
		}
		logger.Info("alert dismissed", "alert", id)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "alert_id": id})
	}
}

// AnalyzeAlert asks the analyst for the cause of an alert, stores the answer
// and marks the alert reviewed.
func AnalyzeAlert(s AlertStore, analyst Analyzer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := alertID(w, r)
		if !ok {
			return
		}
		a, err := s.GetAlert(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load alert")
			return
		}
		if a.Pool == nil {
			a.Pool = &market.Pool{ID: a.PoolID}
		}

		res, err := analyst.Analyze(r.Context(), *a, *a.Pool)
		if errors.Is(err, analysis.ErrNotConfigured) {
			metrics.AnalysisTotal.WithLabelValues("disabled").Inc()
			writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
			return
		}
		if err != nil {
			metrics.AnalysisTotal.WithLabelValues("error").Inc()
			logger.Error("analyze alert", "alert", id, "error", err)
			writeError(w, http.StatusBadGateway, "analysis failed")
			return
		}
		metrics.AnalysisTotal.WithLabelValues("success").Inc()

		if err := s.SaveAnalysis(r.Context(), id, res.Text, res.Sources); err != nil {
			logger.Error("save analysis", "alert", id, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"analysis": res.Text,
			"sources":  res.Sources,
		})
	}
}
