package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/cryptodash/internal/api"
	"github.com/kjannette/cryptodash/internal/cache"
	"github.com/kjannette/cryptodash/internal/config"
	"github.com/kjannette/cryptodash/internal/db"
	"github.com/kjannette/cryptodash/internal/external"
	"github.com/kjannette/cryptodash/internal/logging"
	"github.com/kjannette/cryptodash/internal/prices"
	"github.com/kjannette/cryptodash/internal/ratelimit"
	"github.com/kjannette/cryptodash/internal/repository"
)

const banner = `
╔══════════════════════════════════════╗
║      Crypto Dashboard Proxy v1.0     ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx ends or the listener fails. Everything it opens is
// closed before it returns.
func run(ctx context.Context, cfg *config.Config) error {
	log := logrus.WithField("component", "main")

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	store, pinger, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cache backend %s unavailable: %w", cfg.CacheBackend, err)
	}
	defer closeStore()

	gate := ratelimit.NewGate(cfg.RateLimitInterval)
	c := cache.New(store, cfg.CacheTTL)
	upstream := external.NewCoinGeckoClient(external.CoinGeckoOptions{
		BaseURL: cfg.CoinGeckoBaseURL,
		APIKey:  cfg.CoinGeckoAPIKey,
		Timeout: cfg.UpstreamTimeout,
	})
	svc := prices.NewService(upstream, gate, c, prices.Options{
		Coins:        cfg.Coins,
		LookbackDays: cfg.LookbackDays,
		Location:     loc,
	})

	srv := api.NewServer(svc, api.Options{
		Port:            cfg.Port,
		CORSAllowOrigin: cfg.CORSAllowOrigin,
		StoreName:       store.Name(),
		Store:           pinger,
	})
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-serveErr:
		runErr = fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Shutdown error")
	}
	log.Info("Shutdown complete")
	return runErr
}

// openStore builds the cache store named by CACHE_BACKEND. pinger is nil for
// stores with nothing remote to check.
func openStore(ctx context.Context, cfg *config.Config) (cache.Store, api.Pinger, func(), error) {
	log := logrus.WithField("component", "store")
	noop := func() {}

	switch cfg.CacheBackend {
	case config.BackendRedis:
		client, err := cache.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, noop, err
		}
		log.Info("Using Redis cache")
		s := cache.NewRedisStore(client)
		return s, s, func() {
			client.Close()
			log.Info("Redis connection closed")
		}, nil

	case config.BackendPostgres:
		log.Infof("Connecting to %s:%d/%s ...", cfg.DBHost, cfg.DBPort, cfg.DBName)
		pool, err := db.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, nil, noop, err
		}
		repo := repository.NewCacheEntryRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, noop, err
		}
		return repo, repo, func() {
			pool.Close()
			log.Info("Connection pool closed")
		}, nil

	case config.BackendBadger:
		s, err := cache.OpenBadgerStore(cfg.BadgerDir)
		if err != nil {
			return nil, nil, noop, err
		}
		log.Infof("Using Badger cache at %s", cfg.BadgerDir)
		return s, nil, func() {
			if err := s.Close(); err != nil {
				log.WithError(err).Warn("Badger close failed")
			}
		}, nil

	default:
		log.Info("Using in-memory cache")
		return cache.NewMemoryStore(), nil, noop, nil
	}
}
