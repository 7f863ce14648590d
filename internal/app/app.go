// Package app wires configuration into the store, collectors and engine
// shared by the server and yieldctl.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/web3-frozen/yield-monitor/internal/analysis"
	"github.com/web3-frozen/yield-monitor/internal/config"
	"github.com/web3-frozen/yield-monitor/internal/dedup"
	"github.com/web3-frozen/yield-monitor/internal/monitor"
	"github.com/web3-frozen/yield-monitor/internal/scrape"
	"github.com/web3-frozen/yield-monitor/internal/sources"
	"github.com/web3-frozen/yield-monitor/internal/store"
	"github.com/web3-frozen/yield-monitor/internal/telegram"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config  config.Config
	Store   *store.Store
	Dedup   *dedup.Deduplicator
	Bot     *telegram.Bot
	Analyst *analysis.Analyst
	RateX   *sources.RateX
	Engine  *monitor.Engine
}

// New connects to PostgreSQL, migrates it and builds every component.
// Redis and Telegram are optional and skipped when not configured.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database connected and migrated")

	a := &App{Config: cfg, Store: db}
	a.Dedup = openDedup(ctx, cfg, logger)
	a.Analyst = analysis.New(analysis.Config{
		BaseURL:  cfg.PerplexityURL,
		APIKey:   cfg.PerplexityAPIKey,
		Model:    cfg.PerplexityModel,
		Language: cfg.AnalysisLanguage,
	}, logger)

	opts := []monitor.Option{monitor.WithInterval(cfg.CollectInterval)}
	if a.Dedup != nil {
		opts = append(opts, monitor.WithDedup(a.Dedup))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		a.Bot = telegram.NewBot(cfg.TelegramToken, cfg.TelegramChatID, db, logger)
		opts = append(opts, monitor.WithNotifier(a.Bot))
	} else {
		logger.Info("telegram notifications disabled")
	}
	a.Engine = monitor.NewEngine(db, logger, opts...)

	srcs, rx := Sources(cfg, db, logger)
	a.RateX = rx
	for _, s := range srcs {
		a.Engine.Register(s)
	}
	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Dedup != nil {
		_ = a.Dedup.Close()
	}
	a.Store.Close()
}

// openDedup connects to Redis, retrying briefly so a secret sync can land.
// It returns nil when Redis is not configured or stays unreachable.
func openDedup(ctx context.Context, cfg config.Config, logger *slog.Logger) *dedup.Deduplicator {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, alert windows use the database")
		return nil
	}
	var err error
	for i := 0; i < 3; i++ {
		var dd *dedup.Deduplicator
		dd, err = dedup.New(cfg.RedisURL, cfg.RedisPassword)
		if err == nil {
			logger.Info("redis connected for alert dedup")
			return dd
		}
		logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
	logger.Warn("redis unavailable, alert windows use the database", "error", err)
	return nil
}

// Fetcher returns the page renderer selected by cfg, instrumented.
func Fetcher(cfg config.Config, logger *slog.Logger) scrape.Fetcher {
	if cfg.UseFirecrawl() {
		return scrape.Counted("firecrawl", scrape.NewFirecrawl(cfg.FirecrawlURL, cfg.FirecrawlAPIKey, logger))
	}
	return scrape.Counted("chrome", scrape.NewChrome(logger))
}

// Sources builds the enabled collectors. The RateX client is always returned
// for its on-demand endpoints, even when its collector is disabled. markets
// may be nil.
func Sources(cfg config.Config, markets sources.RateXMarketStore, logger *slog.Logger) ([]monitor.Source, *sources.RateX) {
	fetcher := Fetcher(cfg, logger)

	rxOpts := []sources.RateXOption{sources.WithYieldScraper(fetcher, cfg.RateXScrapeYields)}
	if markets != nil {
		rxOpts = append(rxOpts, sources.WithMarketStore(markets))
	}
	rx := sources.NewRateX(cfg.RateXAPIURL, logger, rxOpts...)

	all := []monitor.Source{
		sources.NewPendle(cfg.PendleAPIURL, logger),
		sources.NewSpectra(fetcher, logger),
		sources.NewExponent(fetcher, logger),
		rx,
	}
	var out []monitor.Source
	for _, s := range all {
		if cfg.SourceEnabled(s.Name()) {
			out = append(out, s)
		}
	}
	return out, rx
}
