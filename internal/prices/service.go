// Package prices wires the rate gate, the freshness cache and the aggregator
// into the lookups the proxy and the dashboard serve.
package prices

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/cryptodash/internal/aggregate"
	"github.com/kjannette/cryptodash/internal/cache"
	"github.com/kjannette/cryptodash/internal/external"
	"github.com/kjannette/cryptodash/internal/models"
	"github.com/kjannette/cryptodash/internal/ratelimit"
)

const DefaultLookbackDays = 90

var DefaultCoins = []string{"bitcoin", "ethereum", "tellor"}

var ErrUnsupportedCoin = errors.New("unsupported coin")

type Options struct {
	Coins        []string
	LookbackDays int
	Location     *time.Location // month bucketing; nil means time.Local
}

type Service struct {
	upstream external.Upstream
	gate     *ratelimit.Gate
	cache    *cache.Cache
	coins    []string
	days     int
	loc      *time.Location
	log      *logrus.Entry
}

func NewService(upstream external.Upstream, gate *ratelimit.Gate, c *cache.Cache, opts Options) *Service {
	coins := opts.Coins
	if len(coins) == 0 {
		coins = DefaultCoins
	}
	days := opts.LookbackDays
	if days <= 0 {
		days = DefaultLookbackDays
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		upstream: upstream,
		gate:     gate,
		cache:    c,
		coins:    slices.Clone(coins),
		days:     days,
		loc:      loc,
		log:      logrus.WithField("component", "prices"),
	}
}

func (s *Service) Coins() []string { return slices.Clone(s.coins) }

func (s *Service) Supported(coinID string) bool {
	return slices.Contains(s.coins, coinID)
}

func (s *Service) check(coinID string) error {
	if !s.Supported(coinID) {
		return fmt.Errorf("%w: %q", ErrUnsupportedCoin, coinID)
	}
	return nil
}

// Historical returns the lookback series for coinID with its monthly
// averages, cached under the coin id.
func (s *Service) Historical(ctx context.Context, coinID string) (*models.HistoricalData, error) {
	if err := s.check(coinID); err != nil {
		return nil, err
	}
	return cache.GetOrFetch(ctx, s.cache, coinID, func(ctx context.Context) (*models.HistoricalData, error) {
		series, err := ratelimit.Do(ctx, s.gate, func(ctx context.Context) (models.PriceSeries, error) {
			return s.upstream.MarketChart(ctx, coinID, s.days)
		})
		if err != nil {
			return nil, err
		}
		if series == nil {
			series = models.PriceSeries{}
		}
		return &models.HistoricalData{
			Prices:          series,
			MonthlyAverages: aggregate.Monthly(series, s.loc),
		}, nil
	})
}

// LiveAll returns the live price of every configured coin in one upstream
// call, cached under LivePricesKey.
func (s *Service) LiveAll(ctx context.Context) (models.LivePrices, error) {
	return cache.GetOrFetch(ctx, s.cache, cache.LivePricesKey, func(ctx context.Context) (models.LivePrices, error) {
		return ratelimit.Do(ctx, s.gate, func(ctx context.Context) (models.LivePrices, error) {
			return s.upstream.SimplePrice(ctx, s.coins)
		})
	})
}

// Live returns one coin's live price, cached under cache.LiveKey(coinID).
func (s *Service) Live(ctx context.Context, coinID string) (float64, error) {
	if err := s.check(coinID); err != nil {
		return 0, err
	}
	return cache.GetOrFetch(ctx, s.cache, cache.LiveKey(coinID), func(ctx context.Context) (float64, error) {
		lp, err := ratelimit.Do(ctx, s.gate, func(ctx context.Context) (models.LivePrices, error) {
			return s.upstream.SimplePrice(ctx, []string{coinID})
		})
		if err != nil {
			return 0, err
		}
		usd, ok := lp[coinID]
		if !ok {
			return 0, fmt.Errorf("live price %s: %w: coin missing from response", coinID, external.ErrMalformed)
		}
		return usd, nil
	})
}

// Summary compares the live price with the average of the lookback window.
// The average and deviation are left nil when they cannot be computed.
func (s *Service) Summary(ctx context.Context, coinID string) (*models.Summary, error) {
	hist, err := s.Historical(ctx, coinID)
	if err != nil {
		return nil, err
	}
	live, err := s.Live(ctx, coinID)
	if err != nil {
		return nil, err
	}

	out := &models.Summary{CoinID: coinID, LivePrice: live}
	avg, ok := aggregate.Overall(hist.Prices)
	if !ok {
		s.log.WithField("coin", coinID).Warn("empty price series, average unavailable")
		return out, nil
	}
	avgStr := avg.StringFixed(2)
	out.AveragePrice = &avgStr

	pct, ok := aggregate.Deviation(live, avg)
	if !ok {
		s.log.WithField("coin", coinID).Warn("average price is zero, deviation unavailable")
		return out, nil
	}
	pctStr := pct.StringFixed(2)
	out.DeviationPercent = &pctStr
	out.Direction = aggregate.Direction(pct)
	return out, nil
}
