package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig holds configuration for the rate limiter
type RateLimitConfig struct {
	// Limit is the maximum number of requests allowed per window.
	Limit int

	// Window is the time period for the limit.
	Window time.Duration

	// KeyFunc generates the rate limit key (default: per client IP and path).
	KeyFunc func(*gin.Context) string
}

// RateLimiter is a fixed-window per-client request limiter backed by Redis.
// It guards hot endpoints (notably the redirect path) against bursts; the
// anonymous creation quota is a separate concern handled by the quota package.
type RateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	log    *zap.Logger
}

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(redisClient *redis.Client, config *RateLimitConfig, log *zap.Logger) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string {
			return fmt.Sprintf("rate_limit:%s:%s", c.ClientIP(), c.FullPath())
		}
	}
	return &RateLimiter{
		redis:  redisClient,
		config: config,
		log:    log,
	}
}

// Middleware returns the gin middleware enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.config.KeyFunc(c)

		allowed, remaining, resetTime, err := rl.check(c.Request.Context(), key)
		if err != nil {
			// Redis being down must not take the whole service down: fail
			// open and let the request through.
			rl.log.Warn("rate limiter check failed, failing open", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

		if !allowed {
			retryAfter := resetTime - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}

// check runs a fixed-window counter: one Redis key per window, atomically
// incremented, expiring after the window passes.
func (rl *RateLimiter) check(ctx context.Context, key string) (bool, int, int64, error) {
	now := time.Now()
	windowStart := now.Truncate(rl.config.Window).Unix()
	windowKey := fmt.Sprintf("%s:%d", key, windowStart)

	pipe := rl.redis.Pipeline()
	incrCmd := pipe.Incr(ctx, windowKey)
	// TTL of 2x window covers clock skew between windows.
	pipe.Expire(ctx, windowKey, rl.config.Window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, 0, err
	}

	count := int(incrCmd.Val())
	resetTime := windowStart + int64(rl.config.Window.Seconds())

	remaining := rl.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.config.Limit, remaining, resetTime, nil
}
