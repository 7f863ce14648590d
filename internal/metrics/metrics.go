package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "yield_monitor"

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Collection metrics ─────────────────────────────────────────────────

var (
	CollectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "collect",
		Name:      "total",
		Help:      "Total number of collection runs per source.",
	}, []string{"source", "status"})

	CollectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "collect",
		Name:      "duration_seconds",
		Help:      "Duration of a collection run per source in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"source"})

	CollectLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "collect",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful collection per source.",
	}, []string{"source"})

	ObservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "collect",
		Name:      "observations_total",
		Help:      "Observations processed per source and outcome.",
	}, []string{"source", "outcome"})
)

// ── Alert metrics ──────────────────────────────────────────────────────

var (
	AlertsGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "generated_total",
		Help:      "Total alerts persisted.",
	}, []string{"source", "type"})

	AlertsDeduplicatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "deduplicated_total",
		Help:      "Total alerts suppressed by the repeat window.",
	}, []string{"source", "type"})

	AlertsNotifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "notified_total",
		Help:      "Alert notification attempts per outcome.",
	}, []string{"type", "status"})

	AnalysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "analysis_total",
		Help:      "Alert analysis requests per outcome.",
	}, []string{"status"})
)

// ── Scraper metrics ────────────────────────────────────────────────────

var ScrapeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "scrape",
	Name:      "total",
	Help:      "Page scrapes per backend and outcome.",
}, []string{"backend", "status"})
