package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus is a point-in-time view of the client's reliability layers.
type HealthStatus struct {
	Circuits    map[string]string `json:"circuits"`
	RateLimiter Utilization       `json:"rate_limiter"`
	CacheSize   int               `json:"cache_size,omitempty"`
}

// Health reports circuit breaker states and rate limiter occupancy. It makes
// no network calls.
func (c *Client) Health() HealthStatus {
	circuits := make(map[string]string)
	for group, state := range c.breakers.states() {
		circuits[group] = state.String()
	}

	hs := HealthStatus{
		Circuits:    circuits,
		RateLimiter: c.limiter.Snapshot(),
	}
	if mem, ok := c.store.(*memoryStore); ok {
		hs.CacheSize = mem.Len()
	}
	return hs
}

// ProbeResult is the outcome of one synthetic upstream call.
type ProbeResult struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
	Error     string        `json:"error,omitempty"`
}

// Probe issues one tiny uncached classification lookup to verify end-to-end
// reachability. It consumes a rate limiter slot, so wire it to an infrequent
// liveness check, not every health scrape.
func (c *Client) Probe(ctx context.Context) ProbeResult {
	start := time.Now()

	params := url.Values{}
	params.Set("limit", "1")
	_, err := c.orch.Execute(WithContextCacheDisabled(ctx), GroupClassification, &Request{
		Path:   pathClassification,
		Params: params,
	})

	result := ProbeResult{
		Latency:   time.Since(start),
		CheckedAt: time.Now(),
	}
	// An empty registry answer still proves the service is reachable.
	if err != nil && !IsNotFound(err) {
		result.Error = err.Error()
		return result
	}
	result.Healthy = true
	return result
}

// Handler returns an HTTP handler exposing the client's operational surface:
//
//	GET /health        breaker states and limiter occupancy
//	GET /health/probe  synthetic upstream call
//	GET /metrics       Prometheus metrics (404 when no collector is set)
func (c *Client) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, c.Health())
	})

	r.Get("/health/probe", func(w http.ResponseWriter, req *http.Request) {
		result := c.Probe(req.Context())
		status := http.StatusOK
		if !result.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, result)
	})

	if c.metrics != nil && c.metrics.Registry() != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(c.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
