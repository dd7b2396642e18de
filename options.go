package registry

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Option mutates client construction state. Options are applied in order, so
// later options override earlier ones.
type Option func(*Client)

// WithConfig replaces the whole configuration. Apply it first when combining
// with field-level options.
func WithConfig(cfg *Config) Option {
	return func(c *Client) {
		if cfg != nil {
			clone := *cfg
			c.cfg = &clone
		}
	}
}

// WithBaseURL sets the Registry API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.cfg.BaseURL = baseURL }
}

// WithAPIKey sets the credential appended to outgoing requests. Keys never
// appear in cache keys or logs.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.cfg.APIKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.cfg.Timeout = d }
}

// WithMaxRetries sets how many additional attempts a retryable failure gets.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.cfg.MaxRetries = n }
}

// WithBackoff tunes the exponential backoff between retries.
func WithBackoff(baseDelay, maxDelay time.Duration, multiplier, jitter float64) Option {
	return func(c *Client) {
		c.cfg.BaseDelay = baseDelay
		c.cfg.MaxDelay = maxDelay
		c.cfg.Multiplier = multiplier
		c.cfg.Jitter = jitter
	}
}

// WithRetryPolicy replaces the computed retry policy entirely, for callers
// that need a custom backoff strategy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithRateLimit sets the request quota per rolling window.
func WithRateLimit(maxRequests int, window time.Duration) Option {
	return func(c *Client) {
		c.cfg.RateLimit = maxRequests
		c.cfg.RateWindow = window
	}
}

// WithRateLimiter shares a pre-built limiter, e.g. across several clients
// talking to the same upstream quota.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// WithCircuitBreaker tunes the per-group breaker thresholds.
func WithCircuitBreaker(cfg CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.cfg.FailureThreshold = cfg.FailureThreshold
		c.cfg.RecoveryTimeout = cfg.RecoveryTimeout
	}
}

// WithCacheTTL sets the default response cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cfg.CacheTTL = ttl }
}

// WithStore sets the cache backing store. The default is an in-memory store.
func WithStore(store Store) Option {
	return func(c *Client) { c.store = store }
}

// WithRedis backs the response cache with Redis.
func WithRedis(addr, password string, db int) Option {
	return func(c *Client) { c.store = NewRedisStoreFromAddr(addr, password, db) }
}

// WithoutCache disables response caching entirely.
func WithoutCache() Option {
	return func(c *Client) {
		c.cfg.CacheDisabled = true
		c.store = nil
	}
}

// WithoutDeduplication disables coalescing of identical in-flight requests.
func WithoutDeduplication() Option {
	return func(c *Client) { c.cfg.DedupDisabled = true }
}

// WithRetryBudget caps total retries per window across all callers. A zero
// maxRetries disables the budget.
func WithRetryBudget(maxRetries int, window time.Duration) Option {
	return func(c *Client) {
		c.cfg.RetryBudget = maxRetries
		c.cfg.RetryBudgetWindow = window
	}
}

// WithMetrics attaches a Prometheus collector.
func WithMetrics(mc *MetricsCollector) Option {
	return func(c *Client) { c.metrics = mc }
}

// WithLogger attaches a logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithZapLogger attaches a zap logger through the adapter.
func WithZapLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = NewZapLogger(l) }
}

// WithDebug enables gated debug logging.
func WithDebug(dc *DebugConfig) Option {
	return func(c *Client) {
		c.debug = dc
		if c.debug != nil {
			c.debug.Enabled = true
		}
	}
}
