package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/web3-frozen/yield-monitor/internal/app"
	"github.com/web3-frozen/yield-monitor/internal/config"
	"github.com/web3-frozen/yield-monitor/internal/handler"
	"github.com/web3-frozen/yield-monitor/internal/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.APIKey == "" {
		logger.Warn("CRON_API_KEY not set, mutating endpoints will reject every request")
	}

	// Start background goroutines
	if a.Bot != nil {
		go a.Bot.Run(ctx)
	}
	go a.Engine.Run(ctx)

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(a.Store))

	r.Route("/api", func(r chi.Router) {
		r.Get("/pools", handler.ListPools(a.Store))
		r.Get("/pools/new", handler.NewPools(a.Store))
		r.Get("/pools/lowest-yield", handler.LowestYield(a.Store))
		r.Get("/pools/{id}/history", handler.PoolHistory(a.Store))
		r.Get("/alerts", handler.ListAlerts(a.Store))
		r.Get("/alerts/implied-drops", handler.ImpliedDrops(a.Store))
		r.Get("/stats", handler.Stats(a.Store))
		r.Get("/health/platforms", handler.PlatformHealth(a.Store))
		r.Get("/ratex/markets", handler.RateXMarkets(a.Store))
		r.Get("/ratex/stats", handler.RateXStats(a.RateX))

		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKey(cfg.APIKey))
			r.Post("/collect/{source}", handler.Collect(a.Engine, logger))
			r.Post("/alerts/{id}/dismiss", handler.DismissAlert(a.Store, logger))
			r.Post("/alerts/{id}/analyze", handler.AnalyzeAlert(a.Store, a.Analyst, logger))
			r.Post("/ratex/implied-yield", handler.RateXImpliedYield(a.RateX, logger))
		})
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Manual collects and page scrapes run inside the request.
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "sources", a.Engine.SourceNames())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
