package notifier

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by all external channels.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	config  RateLimitConfig
	dropped int64
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	PerMinute int  // Sustained notifications per minute (default: 10)
	Burst     int  // Bucket size (default: PerMinute)
	Enabled   bool // Whether rate limiting is enabled (default: true)
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute: 10,
		Burst:     10,
		Enabled:   true,
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = 10
	}
	if config.Burst <= 0 {
		config.Burst = config.PerMinute
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.PerMinute)), config.Burst),
		config:  config,
	}
}

// Reservation is a consumed token that can be handed back.
type Reservation struct {
	r  *rate.Reservation
	at time.Time
}

// Cancel refunds the token. The refund is dated at the reservation instant;
// rate.Reservation ignores cancels dated after its time to act, which for an
// immediate grant is the moment it was made.
func (r *Reservation) Cancel() {
	if r != nil && r.r != nil {
		r.r.CancelAt(r.at)
	}
}

// Reserve takes a token if one is available now. It returns false and
// counts a drop when the bucket is empty.
func (r *RateLimiter) Reserve() (*Reservation, bool) {
	if !r.config.Enabled {
		return &Reservation{}, true
	}
	now := time.Now()
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() || res.DelayFrom(now) > 0 {
		res.CancelAt(now)
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return nil, false
	}
	return &Reservation{r: res, at: now}, true
}

// Allow takes a token without the option of a refund.
func (r *RateLimiter) Allow() bool {
	_, ok := r.Reserve()
	return ok
}

// Dropped returns the number of notifications dropped due to rate limiting.
func (r *RateLimiter) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RateLimitStats{
		Dropped:   r.dropped,
		Available: r.limiter.Tokens(),
		PerMinute: r.config.PerMinute,
		Burst:     r.config.Burst,
		Enabled:   r.config.Enabled,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped   int64   // Total notifications dropped
	Available float64 // Tokens currently in the bucket
	PerMinute int
	Burst     int
	Enabled   bool
}
