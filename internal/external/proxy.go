package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjannette/cryptodash/internal/httputil"
	"github.com/kjannette/cryptodash/internal/models"
)

// ProxyClient reads through a cryptodash proxy instead of CoinGecko, for
// dashboards that cannot (or should not) reach the upstream directly.
type ProxyClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Upstream = (*ProxyClient)(nil)

func NewProxyClient(baseURL string, timeout time.Duration) *ProxyClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProxyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// MarketChart returns the proxy's historical series. The proxy serves a
// fixed lookback window, so days is not forwarded.
func (p *ProxyClient) MarketChart(ctx context.Context, coinID string, _ int) (models.PriceSeries, error) {
	u := fmt.Sprintf("%s/api/historical/%s", p.baseURL, url.PathEscape(coinID))
	var data struct {
		Prices *models.PriceSeries `json:"prices"`
	}
	if err := p.get(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("proxy historical %s: %w", coinID, err)
	}
	if data.Prices == nil {
		return nil, fmt.Errorf("proxy historical %s: %w: no prices field", coinID, ErrMalformed)
	}
	return *data.Prices, nil
}

func (p *ProxyClient) SimplePrice(ctx context.Context, ids []string) (models.LivePrices, error) {
	out := make(models.LivePrices, len(ids))
	for _, id := range ids {
		u := fmt.Sprintf("%s/api/live/%s", p.baseURL, url.PathEscape(id))
		var data models.LivePrices
		if err := p.get(ctx, u, &data); err != nil {
			return nil, fmt.Errorf("proxy live %s: %w", id, err)
		}
		usd, ok := data[id]
		if !ok {
			return nil, fmt.Errorf("proxy live %s: %w: coin missing from response", id, ErrMalformed)
		}
		out[id] = usd
	}
	return out, nil
}

func (p *ProxyClient) get(ctx context.Context, u string, v any) error {
	err := httputil.GetJSON(ctx, p.httpClient, u, nil, v)
	if errors.Is(err, httputil.ErrDecode) {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return err
}
