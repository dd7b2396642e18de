package registry

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name used in logs and health output.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// CircuitBreaker tracks consecutive failures for one endpoint group and
// short-circuits calls while the upstream is deemed unavailable. The
// OPEN to HALF_OPEN transition happens lazily on the next Allow call once
// the recovery timeout has elapsed; there is no background timer. In
// HALF_OPEN exactly one probe call is admitted and its outcome decides the
// next state. Safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// NewCircuitBreaker creates a breaker, applying defaults for zero fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout == 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call may proceed. A false return means the caller
// must fail fast with a circuit-open error and make no network call, which
// also keeps rate-limiter budget free for recovery probing.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		// One probe at a time; everyone else keeps failing fast until the
		// probe's outcome is recorded.
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful real attempt.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.state = StateClosed
		cb.failures = 0
		cb.probing = false
	}
}

// RecordFailure records a failed real attempt.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = cb.now()
		cb.probing = false
	}
}

// RecordCancel releases the half-open probe slot when a call was cancelled
// before producing an outcome. A cancelled call is neither a success nor a
// failure, but without this the breaker would wait forever for a probe
// result that is never coming.
func (cb *CircuitBreaker) RecordCancel() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probing = false
	}
}

// State returns the current state without triggering lazy transitions.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// breakerSet holds one CircuitBreaker per endpoint group, created lazily.
// Different endpoint groups fail independently, so a noisy search endpoint
// cannot block classification lookups.
type breakerSet struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	now      func() time.Time
	breakers map[string]*CircuitBreaker
}

func newBreakerSet(cfg CircuitBreakerConfig, now func() time.Time) *breakerSet {
	return &breakerSet{
		cfg:      cfg,
		now:      now,
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (bs *breakerSet) get(group string) *CircuitBreaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	cb, ok := bs.breakers[group]
	if !ok {
		cb = NewCircuitBreaker(bs.cfg)
		if bs.now != nil {
			cb.now = bs.now
		}
		bs.breakers[group] = cb
	}
	return cb
}

// states returns the state of every breaker created so far.
func (bs *breakerSet) states() map[string]CircuitState {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	out := make(map[string]CircuitState, len(bs.breakers))
	for group, cb := range bs.breakers {
		out[group] = cb.State()
	}
	return out
}
