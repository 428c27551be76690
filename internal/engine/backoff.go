package engine

import (
	"math/rand"
	"time"
)

// RetryPolicy controls the retry budget and backoff curve for failed
// deliveries. Fixed at startup.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the standard policy: 5 attempts, exponential
// backoff from 1s capped at 5 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Minute,
	}
}

// jitterFraction is the spread applied around the base delay to avoid
// thundering-herd retries against the same receiver.
const jitterFraction = 0.2

// Backoff returns the delay before the retry that follows attempt n
// (1-based), without jitter: min(base * 2^(n-1), max).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 5 * time.Minute
	}

	// Shift overflows past ~63 doublings; the cap applies long before that.
	if attempt-1 >= 63 {
		return max
	}
	delay := base << (attempt - 1)
	if delay > max || delay < base {
		delay = max
	}
	return delay
}

// NextRetryAt computes when the attempt after n should run: now plus the
// backoff delay with up to ±20% jitter.
func (p RetryPolicy) NextRetryAt(now time.Time, attempt int, rng *rand.Rand) time.Time {
	delay := p.Backoff(attempt)

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// Uniform in [-jitterFraction, +jitterFraction] of the delay.
	spread := float64(delay) * jitterFraction
	offset := time.Duration((rng.Float64()*2 - 1) * spread)

	return now.Add(delay + offset).UTC()
}

// Exhausted reports whether attempt n was the last allowed try.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
