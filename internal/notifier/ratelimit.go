package notifier

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds notification rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // maximum notifications per window (default: 10)
	Window       time.Duration // time window (default: 1 minute)
	Enabled      bool          // whether rate limiting is enabled
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// RateLimiter caps the notification rate with a token bucket sized to
// MaxPerWindow tokens refilled over Window, and counts drops.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	dropped int64
	enabled bool
}

// NewRateLimiter creates a rate limiter from config, filling in defaults.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	interval := config.Window / time.Duration(config.MaxPerWindow)
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(interval), config.MaxPerWindow),
		enabled: config.Enabled,
	}
}

// Allow reports whether a notification may be sent now.
func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.limiter.Allow() {
		r.dropped++
		return false
	}
	return true
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped int64
	Enabled bool
}

// Stats returns the limiter's drop statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimitStats{Dropped: r.dropped, Enabled: r.enabled}
}
