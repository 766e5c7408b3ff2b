package auth

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long a client bucket may sit unused before cleanup drops it
const idleAfter = 10 * time.Minute

// RateLimitConfig configures per-client rate limiting
type RateLimitConfig struct {
	// RPS is the sustained request rate per client; zero disables limiting
	RPS   float64
	Burst int
	// CleanupInterval is the period of the idle bucket sweep
	CleanupInterval time.Duration
}

// RateLimiter keeps one token bucket per client key
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	logger  *slog.Logger
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter. A non-positive burst is raised to 1.
func NewRateLimiter(config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		logger:  logger,
		now:     time.Now,
	}
}

// Enabled reports whether requests are limited at all
func (r *RateLimiter) Enabled() bool {
	return r.config.RPS > 0
}

// Allow consumes a token for key. When the bucket is empty it returns false
// and the time until the next token.
func (r *RateLimiter) Allow(key string) (bool, time.Duration) {
	if !r.Enabled() {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(r.config.RPS), r.config.Burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}

	missing := 1 - b.limiter.TokensAt(now)
	wait := time.Duration(math.Ceil(missing / r.config.RPS * float64(time.Second)))
	return false, wait
}

// StartCleanup sweeps idle buckets until ctx is done
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	if !r.Enabled() {
		return
	}

	go func() {
		ticker := time.NewTicker(r.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idleAfter)
	removed := 0
	for key, b := range r.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(r.buckets, key)
			removed++
		}
	}

	if removed > 0 && r.logger != nil {
		r.logger.Debug("Rate limit cleanup",
			"removed_buckets", removed,
			"remaining", len(r.buckets),
		)
	}
}

// Clients returns the number of tracked client buckets
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
