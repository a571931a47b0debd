package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/cryptodash/internal/cache"
	"github.com/kjannette/cryptodash/internal/config"
	"github.com/kjannette/cryptodash/internal/external"
	"github.com/kjannette/cryptodash/internal/logging"
	"github.com/kjannette/cryptodash/internal/notifications"
	"github.com/kjannette/cryptodash/internal/prices"
	"github.com/kjannette/cryptodash/internal/ratelimit"
	"github.com/kjannette/cryptodash/internal/ticker"
)

func main() {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// run renders the dashboard to out until ctx ends. The local cache is closed
// before it returns.
func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	log := logrus.WithField("component", "dashboard")

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	store, err := cache.OpenBadgerStore(cfg.BadgerDir)
	if err != nil {
		return fmt.Errorf("open local cache: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Badger close failed")
		}
	}()

	var upstream external.Upstream
	switch cfg.DashboardSource {
	case config.SourceProxy:
		log.Infof("Reading prices through proxy %s", cfg.ProxyURL)
		upstream = external.NewProxyClient(cfg.ProxyURL, cfg.UpstreamTimeout)
	default:
		upstream = external.NewCoinGeckoClient(external.CoinGeckoOptions{
			BaseURL: cfg.CoinGeckoBaseURL,
			APIKey:  cfg.CoinGeckoAPIKey,
			Timeout: cfg.UpstreamTimeout,
		})
	}

	svc := prices.NewService(upstream, ratelimit.NewGate(cfg.RateLimitInterval), cache.New(store, cfg.CacheTTL), prices.Options{
		Coins:        cfg.Coins,
		LookbackDays: cfg.LookbackDays,
		Location:     loc,
	})

	coin := cfg.DashboardCoin
	if !svc.Supported(coin) {
		return fmt.Errorf("DASHBOARD_COIN %q is not one of %v", coin, svc.Coins())
	}

	hist, err := svc.Historical(ctx, coin)
	if err != nil {
		log.WithError(err).Error("Historical data unavailable")
	} else {
		sum, err := svc.Summary(ctx, coin)
		if err != nil {
			log.WithError(err).Error("Summary unavailable")
		}
		renderHistory(out, coin, hist, sum)
	}

	alert := notifications.NewDeviationAlert(notifications.NewSender(cfg.AlertWebhookURL, ""), cfg.AlertThresholdPercent)

	live := ticker.New("live", cfg.LiveRefreshInterval, func(ctx context.Context) error {
		usd, err := svc.Live(ctx, coin)
		if err != nil {
			return err
		}
		// The deviation needs the historical entry too; without it the line
		// still shows the price.
		sum, err := svc.Summary(ctx, coin)
		if err != nil {
			log.WithError(err).Debug("Deviation unavailable")
		}
		renderLive(out, time.Now(), coin, usd, sum)
		if err := alert.Observe(ctx, sum); err != nil {
			log.WithError(err).Warn("Deviation alert not delivered")
		}
		return nil
	})
	live.Start(ctx)

	<-ctx.Done()
	live.Stop()
	live.Wait()
	fmt.Fprintln(out)
	log.Info("Dashboard closed")
	return nil
}
