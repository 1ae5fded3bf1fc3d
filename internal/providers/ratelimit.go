package providers

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter sized in requests
// per second. The bucket holds at most ceil(rps) tokens.
type RateLimiter struct {
	mu sync.Mutex

	// Configuration
	rps   float64
	burst float64

	// Token bucket state
	tokens       float64
	lastUpdate   time.Time
	blockedUntil time.Time

	// Statistics
	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available" yaml:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit" yaml:"tokens_limit"`
	Utilization     float64       `json:"utilization" yaml:"utilization"`
	TimeUntilToken  time.Duration `json:"time_until_token" yaml:"time_until_token"`
	TotalConsumed   int64         `json:"total_consumed" yaml:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited" yaml:"total_waited"`
	Last429Time     time.Time     `json:"last_429_time,omitempty" yaml:"last_429_time,omitempty"`
}

// NewRateLimiter creates a rate limiter. Non-positive rps means unlimited.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 || math.IsInf(rps, 1) {
		rps = math.Inf(1)
	}
	burst := math.Ceil(rps)
	if math.IsInf(rps, 1) {
		burst = 1
	}
	return &RateLimiter{
		rps:        rps,
		burst:      burst,
		tokens:     burst,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		now := time.Now()
		var waitTime time.Duration
		switch {
		case now.Before(r.blockedUntil):
			waitTime = r.blockedUntil.Sub(now)
		case r.tokens >= 1.0:
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		default:
			waitTime = r.untilToken()
		}
		r.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			r.mu.Lock()
			r.totalWaited += waitTime
			r.mu.Unlock()
		}
	}
}

// Record429 drains the bucket after a rate-limit response and, when the
// provider sent Retry-After, holds all callers until it has passed.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last429Time = time.Now()
	r.tokens = 0
	if retryAfter > 0 {
		if until := r.last429Time.Add(retryAfter); until.After(r.blockedUntil) {
			r.blockedUntil = until
		}
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	utilization := 1.0 - (r.tokens / r.burst)
	if utilization < 0 {
		utilization = 0
	}

	var timeUntilToken time.Duration
	if now := time.Now(); now.Before(r.blockedUntil) {
		timeUntilToken = r.blockedUntil.Sub(now)
	} else if r.tokens < 1.0 {
		timeUntilToken = r.untilToken()
	}

	return RateLimiterStatus{
		TokensAvailable: int(r.tokens),
		TokensLimit:     int(r.burst),
		Utilization:     utilization,
		TimeUntilToken:  timeUntilToken,
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
		Last429Time:     r.last429Time,
	}
}

// untilToken returns the time until one token accrues. Must be called with
// lock held.
func (r *RateLimiter) untilToken() time.Duration {
	if math.IsInf(r.rps, 1) {
		return 0
	}
	needed := 1.0 - r.tokens
	return time.Duration(needed / r.rps * float64(time.Second))
}

// refill adds tokens based on elapsed time. Must be called with lock held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	if math.IsInf(r.rps, 1) {
		r.tokens = r.burst
		return
	}
	r.tokens += elapsed * r.rps
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
}
