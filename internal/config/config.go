package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
)

// Scraper backends.
const (
	ScraperAuto      = "auto"
	ScraperFirecrawl = "firecrawl"
	ScraperChrome    = "chrome"
)

type Config struct {
	Port           string
	DatabaseURL    string
	FrontendOrigin string
	// RedisURL is optional; empty disables Redis alert windows.
	RedisURL      string
	RedisPassword string
	// APIKey guards mutating endpoints. Empty rejects every mutation.
	APIKey string

	FirecrawlAPIKey string
	FirecrawlURL    string
	// Scraper is auto, firecrawl or chrome. Auto picks Firecrawl when a key is set.
	Scraper string

	PendleAPIURL      string
	RateXAPIURL       string
	RateXScrapeYields bool

	PerplexityAPIKey string
	PerplexityURL    string
	PerplexityModel  string
	AnalysisLanguage string

	TelegramToken  string
	TelegramChatID int64

	CollectInterval time.Duration
	// EnabledSources lists the source names to run; empty runs all.
	EnabledSources []string
}

func Load() Config {
	cfg := Config{
		Port:              envOr("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		FrontendOrigin:    envOr("FRONTEND_ORIGIN", "*"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		APIKey:            os.Getenv("CRON_API_KEY"),
		FirecrawlAPIKey:   os.Getenv("FIRECRAWL_API_KEY"),
		FirecrawlURL:      os.Getenv("FIRECRAWL_API_URL"),
		Scraper:           strings.ToLower(envOr("SCRAPER", ScraperAuto)),
		PendleAPIURL:      os.Getenv("PENDLE_API_URL"),
		RateXAPIURL:       os.Getenv("RATEX_API_URL"),
		RateXScrapeYields: envBool("RATEX_SCRAPE_YIELDS", false),
		PerplexityAPIKey:  os.Getenv("PERPLEXITY_API_KEY"),
		PerplexityURL:     os.Getenv("PERPLEXITY_API_URL"),
		PerplexityModel:   envOr("PERPLEXITY_MODEL", "sonar"),
		AnalysisLanguage:  envOr("ANALYSIS_LANGUAGE", "English"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    envInt64("TELEGRAM_CHAT_ID", 0),
		CollectInterval:   envDuration("COLLECT_INTERVAL", 15*time.Minute),
		EnabledSources:    envList("SOURCES"),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

// SourceEnabled reports whether the named source should run.
func (c Config) SourceEnabled(name string) bool {
	if len(c.EnabledSources) == 0 {
		return true
	}
	for _, s := range c.EnabledSources {
		if s == name {
			return true
		}
	}
	return false
}

// UseFirecrawl reports whether scraped sources render through Firecrawl
// rather than local Chrome.
func (c Config) UseFirecrawl() bool {
	switch c.Scraper {
	case ScraperFirecrawl:
		return true
	case ScraperChrome:
		return false
	}
	return c.FirecrawlAPIKey != ""
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"DATABASE_URL":       &cfg.DatabaseURL,
		"REDIS_PASSWORD":     &cfg.RedisPassword,
		"CRON_API_KEY":       &cfg.APIKey,
		"FIRECRAWL_API_KEY":  &cfg.FirecrawlAPIKey,
		"PERPLEXITY_API_KEY": &cfg.PerplexityAPIKey,
		"TELEGRAM_BOT_TOKEN": &cfg.TelegramToken,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean, using default", "key", key, "value", v)
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

// envList splits a comma separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
