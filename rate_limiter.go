package registry

import (
	"context"
	"sync"
	"time"
)

// RateLimiter admits outgoing requests while keeping the number of requests
// inside a rolling window at or under a fixed quota. Acquire blocks callers
// when the window is full and wakes them in FIFO order, so a burst of
// concurrent callers cannot starve the earliest one. It is safe for
// concurrent use and has no failure mode other than waiting.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time
	waiters     []*rlWaiter
	now         func() time.Time
}

type rlWaiter struct {
	ready chan struct{}
}

// NewRateLimiter creates a limiter allowing maxRequests per rolling window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Acquire blocks until a slot is available inside the rolling window, then
// records the slot and returns. Waiters are admitted in arrival order. The
// only error returned is ctx.Err() when the caller gives up; in that case no
// slot is consumed.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	rl.mu.Lock()
	rl.prune()

	// Fast path: nobody queued and capacity remains.
	if len(rl.waiters) == 0 && len(rl.stamps) < rl.maxRequests {
		rl.stamps = append(rl.stamps, rl.now())
		rl.mu.Unlock()
		return nil
	}

	w := &rlWaiter{ready: make(chan struct{}, 1)}
	rl.waiters = append(rl.waiters, w)

	for {
		if rl.waiters[0] == w && len(rl.stamps) < rl.maxRequests {
			rl.stamps = append(rl.stamps, rl.now())
			rl.waiters = rl.waiters[1:]
			rl.nudgeHead()
			rl.mu.Unlock()
			return nil
		}

		// Sleep until the oldest stamp leaves the window, then recheck in a
		// loop: concurrent waiters race for the freed slot and only the
		// queue head may take it.
		delay := time.Millisecond
		if len(rl.stamps) > 0 {
			if d := rl.stamps[0].Add(rl.window).Sub(rl.now()); d > delay {
				delay = d
			}
		}
		timer := time.NewTimer(delay)
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			timer.Stop()
			rl.mu.Lock()
			rl.removeWaiter(w)
			rl.nudgeHead()
			rl.mu.Unlock()
			return ctx.Err()
		case <-timer.C:
		case <-w.ready:
			timer.Stop()
		}

		rl.mu.Lock()
		rl.prune()
	}
}

// Utilization is a point-in-time view of the limiter for the health surface.
type Utilization struct {
	InWindow    int           `json:"in_window"`
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
	Waiting     int           `json:"waiting"`
}

// Snapshot returns current window occupancy and queue depth.
func (rl *RateLimiter) Snapshot() Utilization {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.prune()
	return Utilization{
		InWindow:    len(rl.stamps),
		MaxRequests: rl.maxRequests,
		Window:      rl.window,
		Waiting:     len(rl.waiters),
	}
}

// prune drops stamps that have aged out of the window. Caller holds mu.
func (rl *RateLimiter) prune() {
	now := rl.now()
	for len(rl.stamps) > 0 && now.Sub(rl.stamps[0]) >= rl.window {
		rl.stamps = rl.stamps[1:]
	}
}

// nudgeHead wakes the new queue head so it rechecks capacity immediately
// instead of waiting out a stale timer. Caller holds mu.
func (rl *RateLimiter) nudgeHead() {
	if len(rl.waiters) == 0 {
		return
	}
	select {
	case rl.waiters[0].ready <- struct{}{}:
	default:
	}
}

// removeWaiter drops a cancelled waiter from the queue. Caller holds mu.
func (rl *RateLimiter) removeWaiter(w *rlWaiter) {
	for i, cand := range rl.waiters {
		if cand == w {
			rl.waiters = append(rl.waiters[:i], rl.waiters[i+1:]...)
			return
		}
	}
}
