package registry

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the failure category of an *Error. Callers dispatch on it
// to distinguish "no data" from "service degraded" from "bad input".
type Kind string

const (
	// KindAuthentication covers HTTP 401/403. Terminal, never retried.
	KindAuthentication Kind = "Authentication"

	// KindNotFound covers HTTP 404 and empty search result sets. Terminal,
	// represents "no data" rather than a fault.
	KindNotFound Kind = "NotFound"

	// KindRateLimited covers HTTP 429. Retryable, honors Retry-After.
	KindRateLimited Kind = "RateLimited"

	// KindUpstreamServer covers HTTP 5xx. Retryable with backoff.
	KindUpstreamServer Kind = "UpstreamServer"

	// KindTransport covers connection and per-attempt timeout failures.
	// Retryable with backoff.
	KindTransport Kind = "Transport"

	// KindCircuitOpen is raised locally when the endpoint group's breaker is
	// open; no network call was made. Retryable by the caller later, not
	// within the same Execute invocation.
	KindCircuitOpen Kind = "CircuitOpen"

	// KindValidation covers malformed caller input, raised before any
	// network activity. Terminal.
	KindValidation Kind = "Validation"
)

// Error is the typed error returned by the client. It carries enough request
// context to be actionable in logs without re-deriving it at the call site.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	StatusCode int
	Endpoint   string
	Group      string
	RequestID  string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches errors of the same Kind, so callers can use errors.Is with a
// bare &Error{Kind: ...} probe.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the failure category is transient. CircuitOpen
// is retryable from the caller's perspective, never within one Execute.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindRateLimited, KindUpstreamServer, KindTransport, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Group != "" {
		info += fmt.Sprintf("Endpoint Group: %s\n", e.Group)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// KindOf extracts the Kind from err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool { return KindOf(err) == KindAuthentication }

// IsNotFound reports whether err means "no data" (404 or empty search).
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

// IsUpstreamServer reports whether err is an upstream 5xx.
func IsUpstreamServer(err error) bool { return KindOf(err) == KindUpstreamServer }

// IsTransport reports whether err is a connection or timeout failure.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// IsCircuitOpen reports whether err was raised by an open circuit breaker.
func IsCircuitOpen(err error) bool { return KindOf(err) == KindCircuitOpen }

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// validationError builds a terminal input error raised before any network
// activity.
func validationError(message string) *Error {
	return &Error{
		Kind:      KindValidation,
		Message:   message,
		Timestamp: time.Now(),
	}
}
