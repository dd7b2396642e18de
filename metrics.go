package registry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request pipeline and
// its reliability layers. All record methods are nil-safe so instrumentation
// can be disabled by simply not configuring a collector.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterInWindow *prometheus.GaugeVec
	rateLimiterWaiting  *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheErrors *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	dedupHits *prometheus.CounterVec

	retryBudgetExceeded *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a collector on its own registry, exposed via
// Registry() for mounting on the health handler.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registry.
func NewMetricsCollectorWithRegistry(registry *prometheus.Registry) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_client_requests_total",
				Help: "Total number of Registry API requests made",
			},
			[]string{"group", "status_code"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "registry_client_request_duration_seconds",
				Help:    "Duration of Registry API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"group", "status_code"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "registry_client_requests_in_flight",
				Help: "Number of Registry API requests currently in flight",
			},
			[]string{"group"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_client_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"group", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "registry_client_circuit_breaker_state",
				Help: "Circuit breaker state per endpoint group (0=closed, 1=open, 2=half-open)",
			},
			[]string{"group"},
		),
		rateLimiterInWindow: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "registry_client_rate_limiter_in_window",
				Help: "Requests recorded inside the current rate limit window",
			},
			[]string{"name"},
		),
		rateLimiterWaiting: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "registry_client_rate_limiter_waiting",
				Help: "Callers queued on the rate limiter",
			},
			[]string{"name"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_client_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"group"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_client_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"group"},
		),
		cacheErrors: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_client_cache_errors_total",
				Help: "Total number of swallowed cache store errors",
			},
			[]string{"op"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "registry_client_cache_size",
				Help: "Current number of entries in the in-memory cache",
			},
			[]string{"name"},
		),
		dedupHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_client_deduplication_hits_total",
				Help: "Total number of requests coalesced into an in-flight duplicate",
			},
			[]string{"group"},
		),
		retryBudgetExceeded: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_client_retry_budget_exceeded_total",
				Help: "Total number of retries suppressed by the retry budget",
			},
			[]string{"group"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_client_errors_total",
				Help: "Total number of errors by kind",
			},
			[]string{"kind", "group"},
		),
		registry: registry,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(group string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(group, code).Inc()
	mc.requestDuration.WithLabelValues(group, code).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(group string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(group).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(group string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(group).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(group string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(group, strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState sets the gauge for one endpoint group.
func (mc *MetricsCollector) RecordCircuitBreakerState(group string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(group).Set(float64(state))
}

// RecordRateLimiter publishes window occupancy and queue depth.
func (mc *MetricsCollector) RecordRateLimiter(name string, u Utilization) {
	if mc == nil {
		return
	}
	mc.rateLimiterInWindow.WithLabelValues(name).Set(float64(u.InWindow))
	mc.rateLimiterWaiting.WithLabelValues(name).Set(float64(u.Waiting))
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(group string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(group).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(group string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(group).Inc()
}

// RecordCacheError increments the swallowed store error counter.
func (mc *MetricsCollector) RecordCacheError(op string) {
	if mc == nil {
		return
	}
	mc.cacheErrors.WithLabelValues(op).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordDeduplicationHit increments the coalesced request counter.
func (mc *MetricsCollector) RecordDeduplicationHit(group string) {
	if mc == nil {
		return
	}
	mc.dedupHits.WithLabelValues(group).Inc()
}

// RecordRetryBudgetExceeded increments the suppressed retry counter.
func (mc *MetricsCollector) RecordRetryBudgetExceeded(group string) {
	if mc == nil {
		return
	}
	mc.retryBudgetExceeded.WithLabelValues(group).Inc()
}

// RecordError increments the error counter by kind.
func (mc *MetricsCollector) RecordError(kind Kind, group string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(string(kind), group).Inc()
}

// Registry exposes the underlying prometheus registry for the /metrics
// endpoint.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}
