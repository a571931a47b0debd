package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/cryptodash/internal/httputil"
	"github.com/kjannette/cryptodash/internal/models"
)

func TestSend_NoWebhook(t *testing.T) {
	s := NewSender("", "TestDash")
	if s.Enabled() {
		t.Fatal("should not be enabled with empty URL")
	}
	require.NoError(t, s.Send(context.Background(), "hello from test"))
}

func TestSend_SlackFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "TestDash")
	require.True(t, s.Enabled())
	require.NoError(t, s.Send(context.Background(), "bitcoin moved"))

	assert.Equal(t, "TestDash", received["username"])
	assert.Equal(t, "`[TestDash] bitcoin moved`", received["text"])
}

func TestSend_DiscordFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	// URL containing "discord" triggers Discord format
	s := NewSender(srv.URL+"/discord/webhook", "")
	require.NoError(t, s.Send(context.Background(), "ethereum moved"))

	assert.Equal(t, "[CryptoDashboard] ethereum moved", received["content"])
	assert.Equal(t, "CryptoDashboard", received["username"])
	_, hasText := received["text"]
	assert.False(t, hasText, "Discord payload should not have 'text' field")
}

func TestSend_StatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewSender(srv.URL, "TestDash").Send(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, httputil.ErrUpstream))

	var se *httputil.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "delivery is never retried")
}

func TestSend_TransportError(t *testing.T) {
	err := NewSender("http://localhost:1/bogus", "TestDash").Send(context.Background(), "x")
	assert.ErrorIs(t, err, httputil.ErrUpstream)
}

func summary(coin, pct, dir string) *models.Summary {
	avg := "100.00"
	s := &models.Summary{CoinID: coin, AveragePrice: &avg, LivePrice: 110, Direction: dir}
	if pct != "" {
		s.DeviationPercent = &pct
	}
	return s
}

func TestDeviationAlert_FiresOncePerExcursion(t *testing.T) {
	var (
		mu       sync.Mutex
		messages []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		messages = append(messages, body["text"])
		mu.Unlock()
	}))
	defer srv.Close()
	sent := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(messages)
	}

	a := NewDeviationAlert(NewSender(srv.URL, "TestDash"), 5)
	ctx := context.Background()

	require.NoError(t, a.Observe(ctx, summary("bitcoin", "2.00", "up")))
	assert.Empty(t, sent())

	require.NoError(t, a.Observe(ctx, summary("bitcoin", "10.00", "up")))
	require.NoError(t, a.Observe(ctx, summary("bitcoin", "12.00", "up")))
	got := sent()
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "bitcoin is 10.00% above its average ($110.00 live vs $100.00)")

	// back inside the band re-arms
	require.NoError(t, a.Observe(ctx, summary("bitcoin", "1.00", "up")))
	require.NoError(t, a.Observe(ctx, summary("bitcoin", "-5.00", "down")))
	got = sent()
	require.Len(t, got, 2)
	assert.Contains(t, got[1], "5.00% below")
}

func TestDeviationAlert_PerCoin(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
	}))
	defer srv.Close()

	a := NewDeviationAlert(NewSender(srv.URL, ""), 5)
	ctx := context.Background()
	require.NoError(t, a.Observe(ctx, summary("bitcoin", "8.00", "up")))
	require.NoError(t, a.Observe(ctx, summary("ethereum", "8.00", "up")))
	assert.Equal(t, int32(2), count.Load())
}

func TestDeviationAlert_Disabled(t *testing.T) {
	a := NewDeviationAlert(NewSender("", ""), 0)
	assert.Nil(t, a)
	assert.NoError(t, a.Observe(context.Background(), summary("bitcoin", "50.00", "up")))
}

func TestDeviationAlert_UnavailableDeviation(t *testing.T) {
	a := NewDeviationAlert(NewSender("", ""), 5)
	assert.NoError(t, a.Observe(context.Background(), summary("tellor", "", "")))
	assert.NoError(t, a.Observe(context.Background(), nil))
}
