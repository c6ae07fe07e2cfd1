package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slganesh1/lume-telehealth/internal/database"
	apperrors "github.com/slganesh1/lume-telehealth/pkg/errors"
	"github.com/slganesh1/lume-telehealth/pkg/logger"
	"github.com/slganesh1/lume-telehealth/pkg/response"
)

// RateLimiter throttles REST traffic with a fixed-window counter in Redis.
// Windows are keyed per authenticated user, falling back to client IP for
// requests that reach it before authentication.
type RateLimiter struct {
	client   *database.RedisClient
	requests int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter allowing the given number of
// requests per window.
func NewRateLimiter(client *database.RedisClient, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:   client,
		requests: requests,
		window:   window,
	}
}

// Middleware returns the gin handler enforcing the limit. Redis outages
// fail open: throttling is protection, not a dependency.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, exists := c.Get("user_id"); exists {
			identifier = fmt.Sprintf("user:%v", userID)
		}

		count, resetAt, err := rl.hit(c, identifier)
		if err != nil {
			logger.Debug("Rate limit check skipped", zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - int(count)
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if int(count) > rl.requests {
			response.Error(c, http.StatusTooManyRequests, string(apperrors.ErrCodeRateLimited), "rate limit exceeded, retry later")
			c.Abort()
			return
		}

		c.Next()
	}
}

// hit increments the caller's window counter and reports the new count and
// when the window resets. The counter key expires with the window, so idle
// callers cost nothing.
func (rl *RateLimiter) hit(c *gin.Context, identifier string) (int64, time.Time, error) {
	if rl.client.IsDegraded() {
		return 0, time.Time{}, fmt.Errorf("redis degraded, rate limiting disabled")
	}

	ctx := c.Request.Context()
	key := "ratelimit:" + identifier

	count, err := rl.client.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	if count == 1 {
		if err := rl.client.Client.Expire(ctx, key, rl.window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return count, time.Now().Add(rl.window), nil
	}

	ttl, err := rl.client.Client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = rl.window
	}
	return count, time.Now().Add(ttl), nil
}
