package gmail

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// realClock implements Clock using the standard time package.
type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Operation represents a remote API operation with its quota cost.
type Operation int

const (
	OpProfile Operation = iota
	OpMessagesList
	OpMessagesGet
	OpMessagesModify
)

// Cost returns the quota cost for an operation, in provider quota units.
func (o Operation) Cost() int {
	switch o {
	case OpMessagesList, OpMessagesGet, OpMessagesModify:
		return 5
	default:
		return 1 // OpProfile, unknown
	}
}

const (
	// bucketCapacity is the token bucket capacity (provider per-user quota).
	bucketCapacity = 250.0

	// baseRefillRate is tokens per second at the default QPS.
	baseRefillRate = 250.0

	// defaultQPS is the baseline used to scale the refill rate.
	defaultQPS = 5.0

	// throttleRecoveryFactor reduces the refill rate while recovering
	// from a provider-signaled backoff.
	throttleRecoveryFactor = 0.5

	// minWait is the minimum wait when tokens are insufficient.
	minWait = 10 * time.Millisecond

	// MinQPS is the lowest allowed QPS, preventing division by zero.
	MinQPS = 0.1
)

// RateLimiter is a token bucket limiter for remote API calls. It is safe for
// concurrent use and supports adaptive throttling when the provider signals
// backoff.
type RateLimiter struct {
	mu             sync.Mutex
	clock          Clock
	tokens         float64
	refillRate     float64 // tokens per second
	normalRate     float64 // refill rate outside throttle recovery
	lastRefill     time.Time
	throttledUntil time.Time
}

// NewRateLimiter creates a rate limiter for the given QPS. A qps of 5 is the
// provider's default safe rate. Values below MinQPS are clamped.
func NewRateLimiter(qps float64) *RateLimiter {
	return newRateLimiter(realClock{}, qps)
}

func newRateLimiter(clk Clock, qps float64) *RateLimiter {
	if clk == nil {
		panic("gmail: RateLimiter requires a non-nil Clock")
	}
	if qps < MinQPS {
		qps = MinQPS
	}

	scale := qps / defaultQPS
	if scale > 1.0 {
		scale = 1.0
	}

	rate := baseRefillRate * scale
	return &RateLimiter{
		clock:      clk,
		tokens:     bucketCapacity,
		refillRate: rate,
		normalRate: rate,
		lastRefill: clk.Now(),
	}
}

// Acquire blocks until tokens for the operation are available.
// Returns an error if the context is cancelled first.
func (r *RateLimiter) Acquire(ctx context.Context, op Operation) error {
	for {
		wait := r.reserve(op)
		if wait == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(wait):
		}
	}
}

// reserve takes tokens if available, otherwise returns how long to wait.
func (r *RateLimiter) reserve(op Operation) time.Duration {
	cost := float64(op.Cost())

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if now.Before(r.throttledUntil) {
		return r.throttledUntil.Sub(now)
	}

	r.refill()

	if r.tokens >= cost {
		r.tokens -= cost
		return 0
	}

	deficit := cost - r.tokens
	wait := time.Duration(deficit / r.refillRate * float64(time.Second))
	if wait < minWait {
		wait = minWait
	}
	return wait
}

// refill credits tokens for elapsed time. Caller must hold the lock.
func (r *RateLimiter) refill() {
	now := r.clock.Now()

	if now.Before(r.throttledUntil) {
		r.lastRefill = now
		return
	}

	// Throttle window just expired: restore the normal rate.
	if r.refillRate < r.normalRate && !r.throttledUntil.IsZero() {
		r.refillRate = r.normalRate
	}

	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now

	r.tokens += elapsed * r.refillRate
	if r.tokens > bucketCapacity {
		r.tokens = bucketCapacity
	}
}

// Available returns the current number of available tokens.
func (r *RateLimiter) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// Throttle drains the bucket and pauses refill for the given duration.
// Used when the provider returns 429 or a quota-exceeded 403.
func (r *RateLimiter) Throttle(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.clock.Now().Add(d)

	// A shorter signal must not shrink an existing throttle window.
	if end.After(r.throttledUntil) {
		r.throttledUntil = end
	}

	// No credit for time that passes during the throttle window.
	r.lastRefill = r.throttledUntil

	r.tokens = 0
	r.refillRate = r.normalRate * throttleRecoveryFactor
}
