// Package registry is a resilient client for the public device Registry API.
//
// Every call flows through one pipeline: response cache, per-endpoint-group
// circuit breaker, client-side rate limiter, then a retrying HTTP attempt
// loop with exponential backoff and Retry-After support. Failures come back
// as a typed *Error whose Kind distinguishes "no data" from "bad input" from
// "service degraded", so callers can branch with errors.Is or the Is*
// helpers.
//
// Basic usage:
//
//	client, err := registry.New(
//		registry.WithAPIKey(os.Getenv("REGISTRY_API_KEY")),
//		registry.WithCacheTTL(time.Hour),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	records, err := client.SearchPredicates(ctx, registry.PredicateSearch{
//		DeviceName: "cardiac monitor",
//		Limit:      5,
//	})
//	if registry.IsNotFound(err) {
//		// no predicates on file
//	}
//
// One Client should be shared process-wide: the rate limiter only models the
// upstream quota correctly when all traffic funnels through it.
package registry
