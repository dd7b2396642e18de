package registry

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/waghostel/MedicalDeviceRegulationAgent-sub012/internal/singleflight"
)

// maxResponseSize bounds how much of an upstream body is read; Registry
// result pages are paginated well below this.
const maxResponseSize = 10 * 1024 * 1024

// Request is one normalized Registry API call: an endpoint path plus its
// canonical query parameters. Credentials are not part of a Request; the
// orchestrator appends them at send time so they never leak into cache keys
// or logs.
type Request struct {
	Path   string
	Params url.Values

	// SkipCache bypasses the response cache for this call.
	SkipCache bool

	// CacheTTL overrides the default TTL for this call's cached response.
	CacheTTL time.Duration
}

// Orchestrator composes the rate limiter, circuit breakers and response
// cache around a retrying HTTP pipeline, exposing a single Execute
// primitive. It is safe for concurrent use by many callers sharing one
// instance.
//
// Worst-case duration of one Execute is roughly
// (timeout + backoff) * (maxRetries + 1); callers should size their own
// deadlines accordingly.
type Orchestrator struct {
	httpClient  *http.Client
	baseURL     *url.URL
	apiKey      string
	timeout     time.Duration
	retry       *RetryPolicy
	retryBudget *RetryBudget
	breakers    *breakerSet
	limiter     *RateLimiter
	cache       *ResponseCache
	flights     *singleflight.Group
	metrics     *MetricsCollector
	debug       *DebugConfig
	logger      Logger
}

// Execute runs the full pipeline for one request and returns the raw
// response payload (a JSON document). The error, if any, is always a typed
// *Error except for context cancellation, which is returned as the
// context's own error.
func (o *Orchestrator) Execute(ctx context.Context, group string, req *Request) ([]byte, error) {
	if req == nil || req.Path == "" {
		return nil, validationError("request path must not be empty")
	}

	start := time.Now()
	var requestID string
	if o.debug != nil && o.debug.Enabled && o.debug.RequestIDGen != nil {
		requestID = o.debug.RequestIDGen()
	}

	o.metrics.RecordRequestStart(group)
	defer o.metrics.RecordRequestEnd(group)

	if o.debug != nil && o.debug.Enabled && o.debug.LogRequests && o.logger != nil {
		o.logger.Debug("starting request", "requestID", requestID, "group", group, "path", req.Path)
	}

	key := CacheKey(req.Path, req.Params)

	// Coalesce identical concurrent calls: one owner performs the fetch,
	// duplicates share its result.
	if o.flights != nil {
		payload, err, shared := o.flights.Do(ctx, key, func() ([]byte, error) {
			return o.fetch(ctx, group, key, req, requestID, start)
		})
		if shared {
			o.metrics.RecordDeduplicationHit(group)
			if o.debug != nil && o.debug.Enabled && o.debug.LogRequests && o.logger != nil {
				o.logger.Debug("coalesced into in-flight duplicate", "requestID", requestID, "key", key)
			}
		}
		return payload, err
	}

	return o.fetch(ctx, group, key, req, requestID, start)
}

// fetch is the cache-then-network path for one Execute call.
func (o *Orchestrator) fetch(ctx context.Context, group, key string, req *Request, requestID string, start time.Time) ([]byte, error) {
	cacheEnabled, cacheTTL := o.cachePlan(ctx, req)

	if cacheEnabled {
		if payload, found := o.cache.Get(ctx, key); found {
			o.metrics.RecordCacheHit(group)
			o.metrics.RecordRequest(group, http.StatusOK, time.Since(start))
			if o.debug != nil && o.debug.Enabled && o.debug.LogCache && o.logger != nil {
				o.logger.Debug("cache hit", "requestID", requestID, "key", key)
			}
			return payload, nil
		}
		o.metrics.RecordCacheMiss(group)
	}

	cb := o.breakers.get(group)
	if !cb.Allow() {
		o.metrics.RecordError(KindCircuitOpen, group)
		o.metrics.RecordCircuitBreakerState(group, cb.State())
		if o.debug != nil && o.debug.Enabled && o.debug.LogCircuit && o.logger != nil {
			o.logger.Warn("circuit open, failing fast", "requestID", requestID, "group", group)
		}
		return nil, &Error{
			Kind:       KindCircuitOpen,
			Message:    "circuit breaker is open for endpoint group",
			Group:      group,
			Endpoint:   req.Path,
			RequestID:  requestID,
			MaxRetries: o.retry.MaxRetries,
			Timestamp:  time.Now(),
			Duration:   time.Since(start),
		}
	}

	payload, err := o.attemptLoop(ctx, group, cb, req, requestID, start)
	if err != nil {
		return nil, err
	}

	if cacheEnabled {
		o.cache.Put(ctx, key, payload, cacheTTL)
		if mem, ok := o.cache.store.(*memoryStore); ok {
			o.metrics.RecordCacheSize("default", mem.Len())
		}
		if o.debug != nil && o.debug.Enabled && o.debug.LogCache && o.logger != nil {
			o.logger.Debug("response cached", "requestID", requestID, "key", key, "ttl", cacheTTL)
		}
	}

	return payload, nil
}

// attemptLoop performs up to maxRetries+1 real attempts with backoff.
// The breaker was already consulted once; a cancelled attempt records no
// outcome but releases a half-open probe slot.
func (o *Orchestrator) attemptLoop(ctx context.Context, group string, cb *CircuitBreaker, req *Request, requestID string, start time.Time) ([]byte, error) {
	var lastOutcome outcome

	for attempt := 0; attempt <= o.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			o.metrics.RecordRetry(group, attempt)
			if o.debug != nil && o.debug.Enabled && o.debug.LogRetries && o.logger != nil {
				o.logger.Info("retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", o.retry.MaxRetries, "group", group)
			}
		}

		if err := o.limiter.Acquire(ctx); err != nil {
			// Caller gave up while queued; nothing was sent.
			cb.RecordCancel()
			return nil, err
		}
		o.metrics.RecordRateLimiter("default", o.limiter.Snapshot())

		payload, out, cancelled := o.attempt(ctx, req)
		if cancelled {
			cb.RecordCancel()
			return nil, ctx.Err()
		}

		if out.kind == "" {
			// 2xx: the only success path.
			cb.RecordSuccess()
			o.metrics.RecordCircuitBreakerState(group, cb.State())
			o.metrics.RecordRequest(group, out.statusCode, time.Since(start))
			return payload, nil
		}

		// NotFound is an authoritative answer from a healthy upstream, not
		// a fault; everything else counts toward opening the circuit.
		if out.kind == KindNotFound {
			cb.RecordSuccess()
		} else {
			cb.RecordFailure()
		}
		o.metrics.RecordCircuitBreakerState(group, cb.State())
		o.metrics.RecordError(out.kind, group)
		o.metrics.RecordRequest(group, out.statusCode, time.Since(start))
		lastOutcome = out

		if !out.retryable {
			return nil, o.errorFrom(out, group, req.Path, requestID, attempt, start)
		}

		if attempt == o.retry.MaxRetries {
			break
		}

		if o.retryBudget != nil && !o.retryBudget.Allow() {
			o.metrics.RecordRetryBudgetExceeded(group)
			if o.debug != nil && o.debug.Enabled && o.debug.LogRetries && o.logger != nil {
				o.logger.Warn("retry budget exceeded", "requestID", requestID, "group", group)
			}
			return nil, o.errorFrom(out, group, req.Path, requestID, attempt, start)
		}

		delay := o.retry.NextDelay(attempt, out.retryAfter)
		if o.debug != nil && o.debug.Enabled && o.debug.LogRetries && o.logger != nil {
			o.logger.Info("scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "group", group)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, o.errorFrom(lastOutcome, group, req.Path, requestID, o.retry.MaxRetries, start)
}

// attempt issues one HTTP call with a per-attempt timeout and classifies
// the result. cancelled is true when the caller's context ended the call;
// in that case no outcome is reported.
func (o *Orchestrator) attempt(ctx context.Context, req *Request) ([]byte, outcome, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, o.buildURL(req), nil)
	if err != nil {
		return nil, outcome{kind: KindValidation, message: "building request failed", cause: err}, false
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent())

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if isCallerCancellation(ctx, err) {
			return nil, outcome{}, true
		}
		return nil, classifyTransport(err), false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isCallerCancellation(ctx, err) {
			return nil, outcome{}, true
		}
		return nil, classifyTransport(err), false
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, outcome{statusCode: resp.StatusCode}, false
	}

	out := classifyStatus(resp)
	if msg := upstreamErrorMessage(body); msg != "" {
		out.message = msg
	}
	return nil, out, false
}

// buildURL joins base URL, endpoint path and canonical parameters, adding
// the API key last so it stays out of cache keys.
func (o *Orchestrator) buildURL(req *Request) string {
	u := *o.baseURL
	u.Path = joinPath(u.Path, req.Path)

	params := url.Values{}
	for k, vs := range req.Params {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	if o.apiKey != "" {
		params.Set("api_key", o.apiKey)
	}
	u.RawQuery = params.Encode()
	return u.String()
}

// cachePlan resolves whether this call uses the cache and with what TTL,
// letting a context override beat the per-request setting.
func (o *Orchestrator) cachePlan(ctx context.Context, req *Request) (bool, time.Duration) {
	if o.cache == nil {
		return false, 0
	}
	if cc, ok := cacheControlFrom(ctx); ok {
		return cc.enabled, cc.ttl
	}
	return !req.SkipCache, req.CacheTTL
}

func (o *Orchestrator) errorFrom(out outcome, group, endpoint, requestID string, attempt int, start time.Time) *Error {
	return &Error{
		Kind:       out.kind,
		Message:    out.message,
		Cause:      out.cause,
		StatusCode: out.statusCode,
		Endpoint:   endpoint,
		Group:      group,
		RequestID:  requestID,
		Attempt:    attempt,
		MaxRetries: o.retry.MaxRetries,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
	}
}

func joinPath(base, path string) string {
	switch {
	case base == "":
		return "/" + trimLeadingSlash(path)
	case base[len(base)-1] == '/':
		return base + trimLeadingSlash(path)
	default:
		return base + "/" + trimLeadingSlash(path)
	}
}

func trimLeadingSlash(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	return s
}
