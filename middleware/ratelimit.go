package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"snapseal/config"
	"snapseal/logging"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter manages per-client rate limiting for HTTP requests
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	config   *config.Config
	logger   *logging.Logger
}

// NewRateLimiter creates a new rate limiter middleware
func NewRateLimiter(cfg *config.Config) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
		logger:   logging.GetLogger(),
	}
}

// getLimiter returns or creates a rate limiter for a specific client
func (rl *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[clientIP]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	// Create a new limiter
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Check again in case another goroutine created it
	if limiter, exists := rl.limiters[clientIP]; exists {
		return limiter
	}

	// Calculate rate limit from requests per minute
	requestsPerMin := rl.config.Security.RateLimiting.RequestsPerMin
	burst := rl.config.Security.RateLimiting.Burst

	// Convert requests per minute to requests per second
	ratePerSec := float64(requestsPerMin) / 60.0

	limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	rl.limiters[clientIP] = limiter

	return limiter
}

// Handler returns a gin middleware that rate limits requests per client IP
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Security.RateLimiting.Enabled {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		limiter := rl.getLimiter(clientIP)

		// Try to reserve a token
		reservation := limiter.Reserve()
		if !reservation.OK() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		delay := reservation.Delay()
		if delay > 0 {
			// Calculate when the next call can be made
			nextCallTime := time.Now().Add(delay)

			rl.logger.Warn(
				"Rate limit exceeded for client %s. Next call allowed at %s (in %v)",
				clientIP,
				nextCallTime.Format("15:04:05"),
				delay.Round(time.Second),
			)

			// Cancel the reservation since we're rejecting the request
			reservation.Cancel()

			c.Header("Retry-After", fmt.Sprintf("%d", int(delay.Round(time.Second).Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("rate limit exceeded. Try again in %v (at %s)",
					delay.Round(time.Second),
					nextCallTime.Format("15:04:05")),
			})
			return
		}

		// Request is allowed, proceed
		c.Next()
	}
}

// PrintRateLimitInfo logs the current rate limit configuration
func (rl *RateLimiter) PrintRateLimitInfo(serviceName string) {
	if !rl.config.Security.RateLimiting.Enabled {
		rl.logger.Startup("Rate limiting: DISABLED")
		return
	}

	requestsPerMin := rl.config.Security.RateLimiting.RequestsPerMin
	burst := rl.config.Security.RateLimiting.Burst

	rl.logger.Startup(
		"Rate limiting: ENABLED - %d requests/min (burst: %d) for %s",
		requestsPerMin,
		burst,
		serviceName,
	)

	// Calculate average time between requests
	avgTimeBetween := time.Minute / time.Duration(requestsPerMin)
	rl.logger.Startup(
		"Average time between allowed requests: %v",
		avgTimeBetween.Round(time.Second),
	)
}

// GetCurrentLimit returns the current rate limit configuration
func (rl *RateLimiter) GetCurrentLimit() (requestsPerMin int, burst int, enabled bool) {
	return rl.config.Security.RateLimiting.RequestsPerMin,
		rl.config.Security.RateLimiting.Burst,
		rl.config.Security.RateLimiting.Enabled
}

// FormatRateLimitError creates a user-friendly error message for rate limit exceeded
func FormatRateLimitError(delay time.Duration) string {
	nextCallTime := time.Now().Add(delay)
	return fmt.Sprintf(
		"Rate limit exceeded. Please try again in %v (at %s)",
		delay.Round(time.Second),
		nextCallTime.Format("15:04:05 MST"),
	)
}
