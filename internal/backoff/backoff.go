// Package backoff provides the delay calculation strategies used between
// retry attempts.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a given retry attempt.
type Strategy interface {
	Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration
}

// ExponentialJitter grows the delay as base * multiplier^attempt, capped at
// max, with up to jitter*delay of uniform random spread added on top.
type ExponentialJitter struct{}

// Delay implements Strategy.
func (ExponentialJitter) Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30 // overflow guard
	}

	delay := time.Duration(float64(base) * Pow(multiplier, attempt))
	if delay < 0 || delay > max {
		delay = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		spread := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+spread > max {
			delay = max
		} else {
			delay += spread
		}
	}
	return delay
}

// DecorrelatedJitter implements AWS-style decorrelated jitter: a random
// delay between base and min(max, base*3^attempt). Smoother tail latencies
// than plain exponential jitter under heavy contention.
type DecorrelatedJitter struct{}

// Delay implements Strategy. The multiplier and jitter parameters are
// ignored; the 3x growth factor is part of the algorithm.
func (DecorrelatedJitter) Delay(attempt int, base, max time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return base
	}
	if attempt > 10 {
		attempt = 10 // overflow guard
	}

	lower := float64(base)
	upper := lower * Pow(3.0, attempt)
	if upper > float64(max) || upper < 0 {
		upper = float64(max)
	}
	if upper < lower {
		upper = lower
	}

	delay := time.Duration(lower + rand.Float64()*(upper-lower))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

// Pow computes base^exponent by repeated multiplication. Enough precision
// for backoff arithmetic without pulling in math.Pow's edge cases.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}
