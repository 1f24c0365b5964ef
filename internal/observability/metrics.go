package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Upstream API call rate by upstream name (nwp, geocode, alerts, llm)
	// and status. Watch for: sudden drops (upstream down) or a rising
	// error share.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per call. Watch for: p95/p99 creeping toward the
	// component timeout budget (spec.md §5).
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts per upstream. Watch for: high retries = unstable upstream.
	UpstreamRetriesTotal *prometheus.CounterVec

	// Circuit breaker open transitions, by wrapped component.
	CircuitBreakerTripsTotal *prometheus.CounterVec

	// Filesystem cache hits/misses by cache kind (geocode, nwp, alerts, impact).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Locations/areas processed by the pipeline executor, by outcome.
	EntitiesProcessedTotal *prometheus.CounterVec

	// Ensemble members dropped by thinning, by ensemble model ID.
	ThinningDroppedTotal *prometheus.CounterVec

	// Estimated USD cost of LLM calls, by cost kind (context, forecast, translation).
	LLMCostUSDTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibfUpstreamCallsTotal",
			Help: "Total number of upstream API calls (nwp, geocode, alerts, llm)",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ibfUpstreamDurationSeconds",
			Help:    "Upstream API latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"upstream", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibfUpstreamRetriesTotal",
			Help: "Total number of retry attempts per upstream",
		},
		[]string{"upstream"},
	)
	CircuitBreakerTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibfCircuitBreakerTripsTotal",
			Help: "Circuit breaker open transitions, by component",
		},
		[]string{"component"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibfCacheHitsTotal",
			Help: "Filesystem cache hits by cache kind",
		},
		[]string{"cacheKind"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibfCacheMissesTotal",
			Help: "Filesystem cache misses by cache kind",
		},
		[]string{"cacheKind"},
	)
	EntitiesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibfEntitiesProcessedTotal",
			Help: "Locations/areas processed by the pipeline executor, by outcome",
		},
		[]string{"outcome"},
	)
	ThinningDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibfThinningDroppedMembersTotal",
			Help: "Ensemble members dropped by thinning, by ensemble model ID",
		},
		[]string{"kind"},
	)
	LLMCostUSDTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibfLLMCostUSDTotal",
			Help: "Estimated USD cost of LLM calls, by cost kind",
		},
		[]string{"costKind"},
	)

	registry.MustRegister(
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal,
		CircuitBreakerTripsTotal,
		CacheHitsTotal, CacheMissesTotal,
		EntitiesProcessedTotal, ThinningDroppedTotal, LLMCostUSDTotal,
	)
}

// MetricsHandler returns an http.Handler serving the core's metrics in
// Prometheus text exposition format. The core itself exposes no
// inbound HTTP routes (spec.md §1 Non-goals); the CLI collaborator may
// mount this handler if it wants a /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
