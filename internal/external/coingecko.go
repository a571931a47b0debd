package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/cryptodash/internal/httputil"
	"github.com/kjannette/cryptodash/internal/metrics"
	"github.com/kjannette/cryptodash/internal/models"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// ErrMalformed means the upstream answered 2xx with a payload that does not
// have the shape we need (missing coin, missing field, bad pair).
var ErrMalformed = errors.New("malformed upstream payload")

// Upstream is a source of market charts and spot prices.
type Upstream interface {
	MarketChart(ctx context.Context, coinID string, days int) (models.PriceSeries, error)
	SimplePrice(ctx context.Context, ids []string) (models.LivePrices, error)
}

type CoinGeckoOptions struct {
	BaseURL string
	APIKey  string // demo key, sent as x-cg-demo-api-key
	Timeout time.Duration
}

type CoinGeckoClient struct {
	baseURL    string
	header     http.Header
	httpClient *http.Client
	log        *logrus.Entry
}

var _ Upstream = (*CoinGeckoClient)(nil)

func NewCoinGeckoClient(opts CoinGeckoOptions) *CoinGeckoClient {
	base := opts.BaseURL
	if base == "" {
		base = DefaultCoinGeckoURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	header := http.Header{}
	if opts.APIKey != "" {
		header.Set("x-cg-demo-api-key", opts.APIKey)
	}
	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(base, "/"),
		header:     header,
		httpClient: &http.Client{Timeout: timeout},
		log:        logrus.WithField("component", "coingecko"),
	}
}

// MarketChart fetches `days` of daily USD prices for coinID.
func (c *CoinGeckoClient) MarketChart(ctx context.Context, coinID string, days int) (models.PriceSeries, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))
	q.Set("interval", "daily")
	u := fmt.Sprintf("%s/coins/%s/market_chart?%s", c.baseURL, url.PathEscape(coinID), q.Encode())

	c.log.Infof("Fetching historical data for %s...", coinID)
	var data struct {
		Prices *models.PriceSeries `json:"prices"`
	}
	if err := c.get(ctx, "market_chart", u, &data); err != nil {
		return nil, fmt.Errorf("coingecko market chart %s: %w", coinID, err)
	}
	if data.Prices == nil {
		metrics.UpstreamRequests.WithLabelValues("market_chart", "malformed").Inc()
		return nil, fmt.Errorf("coingecko market chart %s: %w: no prices field", coinID, ErrMalformed)
	}
	return *data.Prices, nil
}

// SimplePrice fetches the USD price of every id. Each requested id must be
// present in the answer.
func (c *CoinGeckoClient) SimplePrice(ctx context.Context, ids []string) (models.LivePrices, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	u := fmt.Sprintf("%s/simple/price?%s", c.baseURL, q.Encode())

	c.log.Infof("Fetching live prices for %s...", strings.Join(ids, ","))
	var data models.LivePrices
	if err := c.get(ctx, "simple_price", u, &data); err != nil {
		return nil, fmt.Errorf("coingecko simple price: %w", err)
	}
	if err := requireCoins(data, ids); err != nil {
		metrics.UpstreamRequests.WithLabelValues("simple_price", "malformed").Inc()
		return nil, fmt.Errorf("coingecko simple price: %w", err)
	}
	return data, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, endpoint, u string, v any) error {
	err := httputil.GetJSON(ctx, c.httpClient, u, c.header, v)
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(endpoint, "ok").Inc()
		return nil
	case errors.Is(err, httputil.ErrDecode):
		metrics.UpstreamRequests.WithLabelValues(endpoint, "malformed").Inc()
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return err
	}
}

func requireCoins(lp models.LivePrices, ids []string) error {
	for _, id := range ids {
		if _, ok := lp[id]; !ok {
			return fmt.Errorf("%w: no price for %q", ErrMalformed, id)
		}
	}
	return nil
}
