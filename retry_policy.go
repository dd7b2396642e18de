package registry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/waghostel/MedicalDeviceRegulationAgent-sub012/internal/backoff"
)

// RetryPolicy decides how many additional attempts a failed request gets and
// how long to wait between them. An upstream Retry-After header overrides
// the computed delay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64

	strategy backoff.Strategy
}

// NewRetryPolicy creates a policy with exponential jitter backoff.
func NewRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
		Multiplier: multiplier,
		Jitter:     jitter,
		strategy:   backoff.ExponentialJitter{},
	}
}

// DefaultRetryPolicy is 3 retries, 1s base delay doubling per attempt, 30s
// cap, 10% jitter.
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(3, time.Second, 30*time.Second, 2.0, 0.1)
}

// WithStrategy switches the backoff strategy (e.g. decorrelated jitter).
func (p *RetryPolicy) WithStrategy(s backoff.Strategy) *RetryPolicy {
	p.strategy = s
	return p
}

// NextDelay returns the wait before retry number attempt+1. A positive
// retryAfter (from the upstream header) wins over the computed backoff.
func (p *RetryPolicy) NextDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	s := p.strategy
	if s == nil {
		s = backoff.ExponentialJitter{}
	}
	return s.Delay(attempt, p.BaseDelay, p.MaxDelay, p.Multiplier, p.Jitter)
}

// outcome is the classification of one real attempt. Internal result type;
// only the derived *Error crosses the package boundary.
type outcome struct {
	kind       Kind
	message    string
	statusCode int
	retryable  bool
	retryAfter time.Duration
	cause      error
}

// classifyStatus maps a non-2xx upstream status to an outcome per the error
// taxonomy: 401/403 terminal auth, 404 terminal no-data, 429 retryable with
// Retry-After, 5xx retryable, any other 4xx terminal validation.
func classifyStatus(resp *http.Response) outcome {
	code := resp.StatusCode
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return outcome{kind: KindAuthentication, message: "registry rejected credentials", statusCode: code}
	case code == http.StatusNotFound:
		return outcome{kind: KindNotFound, message: "no matching records", statusCode: code}
	case code == http.StatusTooManyRequests:
		return outcome{
			kind:       KindRateLimited,
			message:    "registry quota exceeded",
			statusCode: code,
			retryable:  true,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case code >= 500:
		return outcome{
			kind:       KindUpstreamServer,
			message:    "registry server error",
			statusCode: code,
			retryable:  true,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return outcome{kind: KindValidation, message: "registry rejected request", statusCode: code}
	}
}

// classifyTransport maps a request error to an outcome. Context
// cancellation is not an outcome at all; the pipeline handles it separately
// so a cancelled call never pollutes circuit breaker bookkeeping.
func classifyTransport(err error) outcome {
	return outcome{
		kind:      KindTransport,
		message:   "request to registry failed",
		retryable: true,
		cause:     err,
	}
}

// isCallerCancellation reports whether err stems from the caller's context,
// as opposed to a per-attempt timeout the pipeline imposed itself.
func isCallerCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || err == nil
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form. Values are capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		delay := time.Duration(seconds) * time.Second
		if delay > time.Hour {
			delay = time.Hour
		}
		return delay
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

// RetryBudget caps the total number of retries the whole client may spend
// per window, so a broad upstream outage cannot multiply traffic by
// maxRetries across every concurrent caller.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64
}

// NewRetryBudget creates a budget of maxRetries per window.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow consumes one retry from the budget, resetting the window lazily.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.perWindow) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.current, 0)
		}
	}

	if atomic.LoadInt64(&rb.current) >= rb.maxRetries {
		return false
	}
	return atomic.AddInt64(&rb.current, 1) <= rb.maxRetries
}

// Stats returns the spent count, the cap, and the current window start.
func (rb *RetryBudget) Stats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.current),
		rb.maxRetries,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}
