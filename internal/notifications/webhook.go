package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/cryptodash/internal/httputil"
	"github.com/kjannette/cryptodash/internal/models"
)

const defaultName = "CryptoDashboard"

// Sender posts messages to a Slack or Discord style webhook. With no URL it
// only logs.
type Sender struct {
	webhookURL string
	name       string
	httpClient *http.Client
	log        *logrus.Entry
}

func NewSender(webhookURL, name string) *Sender {
	if name == "" {
		name = defaultName
	}
	return &Sender{
		webhookURL: webhookURL,
		name:       name,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logrus.WithField("component", "notify"),
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}

// Send makes a single delivery attempt.
func (s *Sender) Send(ctx context.Context, msg string) error {
	formatted := fmt.Sprintf("[%s] %s", s.name, msg)
	s.log.Info(formatted)

	if s.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook: %v", httputil.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %w", &httputil.StatusError{StatusCode: resp.StatusCode})
	}
	return nil
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.name,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.name,
	}
}

// DeviationAlert notifies when a coin's live price moves at least threshold
// percent away from its lookback average. It fires once per excursion and
// re-arms when the deviation falls back inside the band.
type DeviationAlert struct {
	sender    *Sender
	threshold decimal.Decimal
	tripped   map[string]bool
}

// NewDeviationAlert returns nil when thresholdPercent is not positive.
func NewDeviationAlert(sender *Sender, thresholdPercent float64) *DeviationAlert {
	if thresholdPercent <= 0 {
		return nil
	}
	return &DeviationAlert{
		sender:    sender,
		threshold: decimal.NewFromFloat(thresholdPercent),
		tripped:   make(map[string]bool),
	}
}

// Observe checks sum and sends at most one message. It is not safe for
// concurrent use; the dashboard calls it from its single ticker goroutine.
func (a *DeviationAlert) Observe(ctx context.Context, sum *models.Summary) error {
	if a == nil || sum == nil || sum.DeviationPercent == nil {
		return nil
	}
	pct, err := decimal.NewFromString(*sum.DeviationPercent)
	if err != nil {
		return fmt.Errorf("deviation %q: %w", *sum.DeviationPercent, err)
	}

	outside := pct.Abs().GreaterThanOrEqual(a.threshold)
	if !outside {
		a.tripped[sum.CoinID] = false
		return nil
	}
	if a.tripped[sum.CoinID] {
		return nil
	}
	a.tripped[sum.CoinID] = true

	avg := "n/a"
	if sum.AveragePrice != nil {
		avg = "$" + *sum.AveragePrice
	}
	return a.sender.Send(ctx, fmt.Sprintf("%s is %s%% %s its average (%s live vs %s)",
		sum.CoinID, pct.Abs().StringFixed(2), directionWord(sum.Direction),
		"$"+decimal.NewFromFloat(sum.LivePrice).StringFixed(2), avg))
}

func directionWord(dir string) string {
	if dir == "up" {
		return "above"
	}
	return "below"
}
