package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/cryptodash/internal/metrics"
	"github.com/kjannette/cryptodash/internal/models"
)

// PriceService is what the proxy serves. *prices.Service implements it.
type PriceService interface {
	Coins() []string
	Historical(ctx context.Context, coinID string) (*models.HistoricalData, error)
	LiveAll(ctx context.Context) (models.LivePrices, error)
	Live(ctx context.Context, coinID string) (float64, error)
	Summary(ctx context.Context, coinID string) (*models.Summary, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Port            int
	CORSAllowOrigin string
	StoreName       string
	Store           Pinger // nil for stores with nothing to ping
}

type Server struct {
	prices     PriceService
	storeName  string
	store      Pinger
	httpServer *http.Server
	log        *logrus.Entry
}

func NewServer(prices PriceService, opts Options) *Server {
	s := &Server{
		prices:    prices,
		storeName: opts.StoreName,
		store:     opts.Store,
		log:       logrus.WithField("component", "api"),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.Handler(opts.CORSAllowOrigin),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Handler builds the routed handler with its middleware chain.
func (s *Server) Handler(corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	// Price routes
	mux.HandleFunc("GET /api/historical/{coinId}", s.handleHistorical)
	mux.HandleFunc("GET /api/live", s.handleLiveAll)
	mux.HandleFunc("GET /api/live/{coinId}", s.handleLive)
	mux.HandleFunc("GET /api/summary/{coinId}", s.handleSummary)
	mux.HandleFunc("GET /api/coins", s.handleCoins)

	// Ops
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return requestIDMiddleware(s.accessLogMiddleware(corsMiddleware(mux, corsOrigin)))
}

func (s *Server) Start() error {
	s.log.Infof("Proxy server running on http://localhost%s", s.httpServer.Addr)
	s.log.Infof("Health check: http://localhost%s/health", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

const requestIDHeader = "X-Request-ID"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   elapsed.Round(time.Millisecond).String(),
			"request_id": r.Header.Get(requestIDHeader),
		}).Debug("request")
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- response helpers ---

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}
