// Package metrics holds the Prometheus collectors shared by the proxy and the
// dashboard. They are registered on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptodash_cache_lookups_total",
			Help: "Freshness cache lookups by store and result (hit, miss, corrupt, error)",
		},
		[]string{"store", "result"},
	)

	CacheWriteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptodash_cache_write_errors_total",
			Help: "Failed writes to the cache store",
		},
		[]string{"store"},
	)

	GateWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cryptodash_rate_gate_waits_total",
			Help: "Calls that had to wait at the upstream rate gate",
		},
	)

	GateWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cryptodash_rate_gate_wait_seconds",
			Help:    "Time spent waiting at the upstream rate gate",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptodash_upstream_requests_total",
			Help: "Upstream price API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptodash_http_requests_total",
			Help: "Proxy HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cryptodash_http_request_duration_seconds",
			Help:    "Proxy HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheLookups,
		CacheWriteErrors,
		GateWaits,
		GateWaitSeconds,
		UpstreamRequests,
		HTTPRequests,
		HTTPDuration,
	)
}
