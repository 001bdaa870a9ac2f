// Package metrics provides Prometheus metrics collection for the search service.
// It exports metrics for:
//   - HTTP traffic: http_request_total, http_request_duration_seconds, http_request_in_flight
//   - the search host round trips: search_rpc_duration_seconds, search_rpc_total,
//     search_rpc_pending, search_rpc_stale_responses_total
//   - the cache: cache_hits_total, cache_misses_total, cache_evictions_total,
//     cache_persist_failures_total
//
// All metrics are automatically registered with the Prometheus default registry
// during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~30 minutes)",
		},
	)

	RPCDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_rpc_duration_seconds",
			Help:    "Round trip latency between the caller and the search host",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"type"},
	)

	RPCTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_rpc_total",
			Help: "Search host requests by outcome",
		},
		[]string{"type", "outcome"},
	)

	RPCPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_rpc_pending",
			Help: "Requests waiting for a search host response",
		},
	)

	RPCStaleResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "search_rpc_stale_responses_total",
			Help: "Responses discarded because their correlation id was no longer pending",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cache hits by namespace and tier",
		},
		[]string{"namespace", "tier"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Cache misses by namespace",
		},
		[]string{"namespace"},
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "In-memory entries evicted to honor the item limit",
		},
		[]string{"namespace"},
	)

	CachePersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_persist_failures_total",
			Help: "Failed writes to the persistent cache tier",
		},
		[]string{"namespace"},
	)
)

// RPC outcomes
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(RPCDuration)
	prometheus.MustRegister(RPCTotals)
	prometheus.MustRegister(RPCPending)
	prometheus.MustRegister(RPCStaleResponses)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheEvictions)
	prometheus.MustRegister(CachePersistFailures)
}
