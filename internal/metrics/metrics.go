package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UnconfiguredCountry is the country label shared by every country without a
// guide source, keeping label cardinality bounded by the country table.
const UnconfiguredCountry = "unconfigured"

var (
	// CacheLookups counts cache lookups by outcome: fresh, miss, stale, error
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guide_cache_lookups_total",
		Help: "Total number of guide cache lookups by outcome",
	}, []string{"outcome"})

	// CacheStoreErrors counts failed reads and writes against the persistent cache store
	CacheStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guide_cache_store_errors_total",
		Help: "Total number of persistent cache store errors",
	}, []string{"operation"})

	// UpstreamFetches counts upstream guide fetches by country and status
	UpstreamFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guide_upstream_fetches_total",
		Help: "Total number of upstream guide fetches",
	}, []string{"country", "status"})

	// UpstreamFetchDuration tracks upstream request latency
	UpstreamFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guide_upstream_fetch_duration_seconds",
		Help:    "Upstream guide fetch latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"country"})

	// ChannelResolutions counts per-channel outcomes: matched or fallback
	ChannelResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guide_channel_resolutions_total",
		Help: "Total number of resolved channels by source",
	}, []string{"country", "source"})

	// CountryFallbacks counts countries resolved entirely from synthesized schedules
	CountryFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guide_country_fallbacks_total",
		Help: "Total number of countries resolved with full fallback",
	}, []string{"country", "reason"})

	// ResolveDuration tracks ResolveCountry latency
	ResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guide_resolve_duration_seconds",
		Help:    "Time spent resolving a country guide",
		Buckets: prometheus.DefBuckets,
	}, []string{"country"})

	// CircuitBreakerState tracks the upstream breaker per country
	// 0=closed, 1=open, 2=half-open
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "guide_circuit_breaker_state",
		Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
	}, []string{"country"})

	// CircuitBreakerTrips counts transitions to OPEN
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guide_circuit_breaker_trips_total",
		Help: "Total number of times circuit breaker transitioned to OPEN state",
	}, []string{"country"})

	// HealthCheckFailures tracks health check failures
	HealthCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guide_health_check_failures_total",
		Help: "Total number of health check failures",
	})
)

// RecordCacheLookup increments the lookup counter for outcome
func RecordCacheLookup(outcome string) {
	CacheLookups.WithLabelValues(outcome).Inc()
}

// RecordCacheStoreError increments the store error counter
func RecordCacheStoreError(operation string) {
	CacheStoreErrors.WithLabelValues(operation).Inc()
}

// RecordUpstreamFetch records the outcome and latency of one upstream fetch
func RecordUpstreamFetch(country, status string, elapsed time.Duration) {
	UpstreamFetches.WithLabelValues(country, status).Inc()
	UpstreamFetchDuration.WithLabelValues(country).Observe(elapsed.Seconds())
}

// RecordChannelResolution increments the channel counter; source is "upstream" or "fallback"
func RecordChannelResolution(country, source string) {
	ChannelResolutions.WithLabelValues(country, source).Inc()
}

// RecordCountryFallback increments the full-fallback counter
func RecordCountryFallback(country, reason string) {
	CountryFallbacks.WithLabelValues(country, reason).Inc()
}

// ObserveResolve records how long a country resolution took
func ObserveResolve(country string, elapsed time.Duration) {
	ResolveDuration.WithLabelValues(country).Observe(elapsed.Seconds())
}

// SetCircuitBreakerState updates the circuit breaker state metric
// state should be one of: "CLOSED" (0), "OPEN" (1), "HALF-OPEN" (2)
func SetCircuitBreakerState(country, state string) {
	var value float64
	switch state {
	case "CLOSED":
		value = 0
	case "OPEN":
		value = 1
	case "HALF-OPEN":
		value = 2
	}
	CircuitBreakerState.WithLabelValues(country).Set(value)
}

// RecordCircuitBreakerTrip increments the circuit breaker trip counter
func RecordCircuitBreakerTrip(country string) {
	CircuitBreakerTrips.WithLabelValues(country).Inc()
}

// RecordHealthCheckFailure increments the health check failure counter
func RecordHealthCheckFailure() {
	HealthCheckFailures.Inc()
}
