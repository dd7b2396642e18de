package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/waghostel/MedicalDeviceRegulationAgent-sub012/internal/singleflight"
)

// Endpoint groups. Each group has its own circuit breaker, so a degraded
// search endpoint cannot block classification lookups.
const (
	GroupSearch         = "search"
	GroupClassification = "classification"
	GroupEvent          = "event"
)

const (
	pathDeviceSearch   = "device/510k.json"
	pathClassification = "device/classification.json"
	pathEvent          = "device/event.json"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// Client is the resilient Registry API client. Construct it with New; the
// zero value is not usable. One Client is safe for concurrent use and is
// meant to be shared process-wide so its rate limiter actually reflects the
// upstream quota.
type Client struct {
	cfg *Config

	httpClient *http.Client
	retry      *RetryPolicy
	limiter    *RateLimiter
	store      Store
	cache      *ResponseCache
	breakers   *breakerSet
	metrics    *MetricsCollector
	logger     Logger
	debug      *DebugConfig

	orch *Orchestrator
}

// New creates a Client, validating the resulting configuration eagerly so a
// bad value fails here rather than on the first call.
func New(opts ...Option) (*Client, error) {
	c := &Client{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.cfg.Validate(); err != nil {
		return nil, validationError(err.Error())
	}

	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, validationError(fmt.Sprintf("parsing base URL: %v", err))
	}

	if c.httpClient == nil {
		// No client-level timeout; the per-attempt context governs.
		c.httpClient = &http.Client{}
	}
	if c.retry == nil {
		c.retry = NewRetryPolicy(c.cfg.MaxRetries, c.cfg.BaseDelay, c.cfg.MaxDelay, c.cfg.Multiplier, c.cfg.Jitter)
	}
	if c.limiter == nil {
		c.limiter = NewRateLimiter(c.cfg.effectiveRateLimit(), c.cfg.RateWindow)
	}
	c.breakers = newBreakerSet(CircuitBreakerConfig{
		FailureThreshold: c.cfg.FailureThreshold,
		RecoveryTimeout:  c.cfg.RecoveryTimeout,
	}, nil)

	if !c.cfg.CacheDisabled {
		if c.store == nil {
			c.store = NewMemoryStore()
		}
		c.cache = NewResponseCache(c.store, c.cfg.CacheTTL)
		c.cache.logger = c.logger
		c.cache.metrics = c.metrics
	}

	var flights *singleflight.Group
	if !c.cfg.DedupDisabled {
		flights = singleflight.New()
	}

	var budget *RetryBudget
	if c.cfg.RetryBudget > 0 {
		budget = NewRetryBudget(c.cfg.RetryBudget, c.cfg.RetryBudgetWindow)
	}

	c.orch = &Orchestrator{
		httpClient:  c.httpClient,
		baseURL:     base,
		apiKey:      c.cfg.APIKey,
		timeout:     c.cfg.Timeout,
		retry:       c.retry,
		retryBudget: budget,
		breakers:    c.breakers,
		limiter:     c.limiter,
		cache:       c.cache,
		flights:     flights,
		metrics:     c.metrics,
		debug:       c.debug,
		logger:      c.logger,
	}

	return c, nil
}

// PredicateSearch narrows a predicate device search. At least one of
// DeviceName or ProductCode must be set.
type PredicateSearch struct {
	DeviceName  string
	ProductCode string

	// Limit caps returned records; zero means the default page size.
	Limit int
}

// SearchPredicates finds cleared predicate devices matching the search.
// An empty result set is returned as a NotFound error, since "no predicates
// exist" is the answer regulatory callers branch on.
func (c *Client) SearchPredicates(ctx context.Context, q PredicateSearch) ([]DeviceRecord, error) {
	name := strings.TrimSpace(q.DeviceName)
	code := strings.ToUpper(strings.TrimSpace(q.ProductCode))
	if name == "" && code == "" {
		return nil, validationError("predicate search needs a device name or product code")
	}
	if code != "" && !productCodePattern.MatchString(code) {
		return nil, validationError(fmt.Sprintf("product code must be three letters, got %q", q.ProductCode))
	}

	var terms []string
	if name != "" {
		terms = append(terms, searchTerm("device_name", name))
	}
	if code != "" {
		terms = append(terms, searchTerm("product_code", code))
	}

	params := url.Values{}
	params.Set("search", strings.Join(terms, " AND "))
	params.Set("limit", strconv.Itoa(clampLimit(q.Limit)))

	payload, err := c.orch.Execute(ctx, GroupSearch, &Request{Path: pathDeviceSearch, Params: params})
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, malformedResponseError(pathDeviceSearch, GroupSearch, err)
	}

	records := make([]DeviceRecord, 0, len(env.Results))
	for _, raw := range env.Results {
		if rec, ok := parseDeviceRecord(raw); ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, &Error{
			Kind:      KindNotFound,
			Message:   "no predicate devices matched the search",
			Endpoint:  pathDeviceSearch,
			Group:     GroupSearch,
			Timestamp: time.Now(),
		}
	}
	return records, nil
}

// GetRecordByIdentifier fetches one cleared device by its clearance number.
func (c *Client) GetRecordByIdentifier(ctx context.Context, identifier string) (*DeviceRecord, error) {
	id := strings.ToUpper(strings.TrimSpace(identifier))
	if !identifierPattern.MatchString(id) {
		return nil, validationError(fmt.Sprintf("malformed record identifier %q", identifier))
	}

	params := url.Values{}
	params.Set("search", searchTerm("k_number", id))
	params.Set("limit", "1")

	payload, err := c.orch.Execute(ctx, GroupSearch, &Request{Path: pathDeviceSearch, Params: params})
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, malformedResponseError(pathDeviceSearch, GroupSearch, err)
	}
	for _, raw := range env.Results {
		if rec, ok := parseDeviceRecord(raw); ok {
			return &rec, nil
		}
	}
	return nil, &Error{
		Kind:      KindNotFound,
		Message:   fmt.Sprintf("no record for identifier %s", id),
		Endpoint:  pathDeviceSearch,
		Group:     GroupSearch,
		Timestamp: time.Now(),
	}
}

// LookupClassification resolves a product code to its classification entry.
func (c *Client) LookupClassification(ctx context.Context, productCode string) (*ClassificationRecord, error) {
	code := strings.ToUpper(strings.TrimSpace(productCode))
	if !productCodePattern.MatchString(code) {
		return nil, validationError(fmt.Sprintf("product code must be three letters, got %q", productCode))
	}

	params := url.Values{}
	params.Set("search", searchTerm("product_code", code))
	params.Set("limit", "1")

	payload, err := c.orch.Execute(ctx, GroupClassification, &Request{Path: pathClassification, Params: params})
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, malformedResponseError(pathClassification, GroupClassification, err)
	}
	for _, raw := range env.Results {
		if rec, ok := parseClassificationRecord(raw); ok {
			return &rec, nil
		}
	}
	return nil, &Error{
		Kind:      KindNotFound,
		Message:   fmt.Sprintf("no classification for product code %s", code),
		Endpoint:  pathClassification,
		Group:     GroupClassification,
		Timestamp: time.Now(),
	}
}

// EventSearch narrows an adverse event search. At least one of DeviceName or
// ProductCode must be set.
type EventSearch struct {
	DeviceName  string
	ProductCode string
	Limit       int
}

// SearchEvents finds adverse event reports for a device. Unlike predicate
// search, an empty result set is a plain empty slice: "no adverse events on
// file" is a normal, even desirable, answer.
func (c *Client) SearchEvents(ctx context.Context, q EventSearch) ([]AdverseEventRecord, error) {
	name := strings.TrimSpace(q.DeviceName)
	code := strings.ToUpper(strings.TrimSpace(q.ProductCode))
	if name == "" && code == "" {
		return nil, validationError("event search needs a device name or product code")
	}
	if code != "" && !productCodePattern.MatchString(code) {
		return nil, validationError(fmt.Sprintf("product code must be three letters, got %q", q.ProductCode))
	}

	var terms []string
	if name != "" {
		terms = append(terms, searchTerm("device.brand_name", name))
	}
	if code != "" {
		terms = append(terms, searchTerm("device.device_report_product_code", code))
	}

	params := url.Values{}
	params.Set("search", strings.Join(terms, " AND "))
	params.Set("limit", strconv.Itoa(clampLimit(q.Limit)))

	payload, err := c.orch.Execute(ctx, GroupEvent, &Request{Path: pathEvent, Params: params})
	if err != nil {
		if IsNotFound(err) {
			return []AdverseEventRecord{}, nil
		}
		return nil, err
	}

	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, malformedResponseError(pathEvent, GroupEvent, err)
	}
	records := make([]AdverseEventRecord, 0, len(env.Results))
	for _, raw := range env.Results {
		if rec, ok := parseAdverseEventRecord(raw); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Execute exposes the raw pipeline for endpoints the typed methods do not
// cover. The payload is the upstream JSON document.
func (c *Client) Execute(ctx context.Context, group string, req *Request) ([]byte, error) {
	return c.orch.Execute(ctx, group, req)
}

// InvalidateCached drops the cached response for one path and parameter set.
func (c *Client) InvalidateCached(ctx context.Context, path string, params url.Values) {
	if c.cache == nil {
		return
	}
	c.cache.Invalidate(ctx, CacheKey(path, params))
}

var (
	productCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)
	identifierPattern  = regexp.MustCompile(`^[A-Z]{1,3}[0-9]{6,7}$`)
)

// searchTerm renders one field:"value" clause, stripping quotes from the
// value so user input cannot break the query grammar.
func searchTerm(field, value string) string {
	return fmt.Sprintf("%s:%q", field, strings.ReplaceAll(value, `"`, ""))
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultSearchLimit
	case limit > maxSearchLimit:
		return maxSearchLimit
	default:
		return limit
	}
}

func malformedResponseError(endpoint, group string, cause error) *Error {
	return &Error{
		Kind:      KindTransport,
		Message:   "decoding registry response failed",
		Cause:     cause,
		Endpoint:  endpoint,
		Group:     group,
		Timestamp: time.Now(),
	}
}
