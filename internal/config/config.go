package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"

	SourceCoinGecko = "coingecko"
	SourceProxy     = "proxy"
)

type Config struct {
	// Proxy
	Port            int
	CORSAllowOrigin string

	// Upstream
	CoinGeckoBaseURL string
	CoinGeckoAPIKey  string
	UpstreamTimeout  time.Duration

	// Freshness layer
	Coins               []string
	LookbackDays        int
	RateLimitInterval   time.Duration
	CacheTTL            time.Duration
	CacheBackend        string
	LiveRefreshInterval time.Duration
	Timezone            string

	// Stores
	RedisURL  string
	BadgerDir string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Dashboard
	DashboardSource string
	DashboardCoin   string
	ProxyURL        string

	// Alerts
	AlertWebhookURL       string
	AlertThresholdPercent float64

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            envInt("PORT", 8080),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		CoinGeckoBaseURL: envStr("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:  envStr("COINGECKO_API_KEY", ""),
		UpstreamTimeout:  envDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		Coins:               envList("COINS", []string{"bitcoin", "ethereum", "tellor"}),
		LookbackDays:        envInt("LOOKBACK_DAYS", 90),
		RateLimitInterval:   envDuration("RATE_LIMIT_INTERVAL", 1200*time.Millisecond),
		CacheTTL:            envDuration("CACHE_TTL", 10*time.Minute),
		CacheBackend:        strings.ToLower(envStr("CACHE_BACKEND", BackendMemory)),
		LiveRefreshInterval: envDuration("LIVE_REFRESH_INTERVAL", 30*time.Second),
		Timezone:            envStr("TZ", ""),

		RedisURL:  envStr("REDIS_URL", "redis://localhost:6379/0"),
		BadgerDir: envStr("BADGER_DIR", ".cryptodash-cache"),

		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "cryptodash"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		DashboardSource: strings.ToLower(envStr("DASHBOARD_SOURCE", SourceCoinGecko)),
		DashboardCoin:   envStr("DASHBOARD_COIN", "bitcoin"),
		ProxyURL:        envStr("PROXY_URL", "http://localhost:8080"),

		AlertWebhookURL:       envStr("ALERT_WEBHOOK_URL", ""),
		AlertThresholdPercent: envFloat("ALERT_THRESHOLD_PERCENT", 0),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if len(c.Coins) == 0 {
		errs = append(errs, "COINS must list at least one coin id")
	}
	if c.LookbackDays <= 0 {
		errs = append(errs, "LOOKBACK_DAYS must be positive")
	}
	if c.RateLimitInterval <= 0 {
		errs = append(errs, "RATE_LIMIT_INTERVAL must be positive")
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, "CACHE_TTL must be positive")
	}
	if c.LiveRefreshInterval <= 0 {
		errs = append(errs, "LIVE_REFRESH_INTERVAL must be positive")
	}
	switch c.CacheBackend {
	case BackendMemory, BackendRedis, BackendPostgres, BackendBadger:
	default:
		errs = append(errs, fmt.Sprintf("CACHE_BACKEND %q is not one of memory, redis, postgres, badger", c.CacheBackend))
	}
	switch c.DashboardSource {
	case SourceCoinGecko, SourceProxy:
	default:
		errs = append(errs, fmt.Sprintf("DASHBOARD_SOURCE %q is not one of coingecko, proxy", c.DashboardSource))
	}
	if c.CacheBackend == BackendPostgres && c.DBUser == "" {
		errs = append(errs, "DB_USER is required for the postgres cache backend")
	}
	if c.AlertThresholdPercent < 0 {
		errs = append(errs, "ALERT_THRESHOLD_PERCENT must not be negative")
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("TZ: %v", err))
	}
	if c.CoinGeckoAPIKey == "" {
		logrus.Warn("COINGECKO_API_KEY not set, using the keyless public tier")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Location is the calendar used for month bucketing.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c *Config) Print() {
	log := logrus.WithField("component", "config")
	log.Info("=== Crypto Dashboard Configuration ===")
	log.Infof("Coins: %s", strings.Join(c.Coins, ", "))
	log.Infof("Lookback: %d days", c.LookbackDays)
	log.Infof("Upstream: %s (API key %s)", c.CoinGeckoBaseURL, boolLabel(c.CoinGeckoAPIKey != "", "configured", "not set"))
	log.Infof("Rate limit: one call per %s", c.RateLimitInterval)
	log.Infof("Cache: %s backend, TTL %s", c.CacheBackend, c.CacheTTL)
	log.Infof("Live refresh: every %s", c.LiveRefreshInterval)
	if c.AlertThresholdPercent > 0 {
		log.Infof("Deviation alert: %.2f%% (webhook %s)", c.AlertThresholdPercent, boolLabel(c.AlertWebhookURL != "", "configured", "not set"))
	}
	if c.CacheBackend == BackendPostgres {
		log.Infof("Database: %s:%d/%s", c.DBHost, c.DBPort, c.DBName)
	}
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(strings.ToLower(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
