package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	// Allow checks if a request is allowed and returns the current state
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitState, error)
}

// RateLimitState holds the current state of rate limiting for a key
type RateLimitState struct {
	Allowed   bool
	Limit     int
	Remaining int
	RetryIn   int64
}

// RedisRateLimiter implements sliding window rate limiting using Redis
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter creates a new Redis-based rate limiter
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
	}
}

// Allow checks if a request is allowed using a sliding window algorithm
// backed by a Redis sorted set, keeping the check atomic in a single
// round trip.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitState, error) {
	now := time.Now()

	script := redis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])
		local windowStart = now - window

		redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)
		local count = redis.call('ZCARD', key)

		if count >= limit then
			local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
			local retryIn = 0
			if #oldest > 0 then
				retryIn = math.ceil(tonumber(oldest[2]) + window - now)
			end
			return {0, limit, 0, retryIn}
		end

		redis.call('ZADD', key, now, now)
		redis.call('EXPIRE', key, window + 60)

		return {1, limit, limit - count - 1, 0}
	`)

	result, err := script.Run(
		ctx,
		r.client,
		[]string{key},
		now.Unix(),
		int64(window.Seconds()),
		limit,
	).Result()

	if err != nil {
		return nil, fmt.Errorf("failed to execute rate limit script: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script result")
	}

	return &RateLimitState{
		Allowed:   resultSlice[0].(int64) == 1,
		Limit:     int(resultSlice[1].(int64)),
		Remaining: int(resultSlice[2].(int64)),
		RetryIn:   resultSlice[3].(int64),
	}, nil
}

// RateLimitConfig holds configuration for rate limiting middleware
type RateLimitConfig struct {
	Limiter           RateLimiter
	IPLimit           int           // Requests per minute per IP
	Window            time.Duration // Time window (default: 1 minute)
	SkipSuccessHeader bool
}

// RateLimit returns a Gin middleware enforcing a per-IP request limit.
// This domain has no API-key concept, so the limit is IP-scoped only.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.IPLimit == 0 {
		config.IPLimit = 1000
	}
	if config.Window == 0 {
		config.Window = 1 * time.Minute
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		clientIP := c.ClientIP()
		ipKey := fmt.Sprintf("ratelimit:ip:%s", clientIP)

		state, err := config.Limiter.Allow(ctx, ipKey, config.IPLimit, config.Window)
		if err != nil {
			logger.WithContext(ctx).WithFields(logrus.Fields{
				"error": err.Error(),
				"ip":    clientIP,
				"key":   ipKey,
			}).Error("rate limit check failed")

			// Fail open: infrastructure errors should not block traffic.
			c.Next()
			return
		}

		if !state.Allowed {
			logger.WithContext(ctx).WithFields(logrus.Fields{
				"ip":       clientIP,
				"limit":    state.Limit,
				"retry_in": state.RetryIn,
			}).Warn("rate limit exceeded")

			c.Header("X-RateLimit-Limit", strconv.Itoa(state.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Unix()+state.RetryIn, 10))
			c.Header("Retry-After", strconv.FormatInt(state.RetryIn, 10))

			c.JSON(429, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": fmt.Sprintf("too many requests, retry after %d seconds", state.RetryIn),
				},
			})
			c.Abort()
			return
		}

		if !config.SkipSuccessHeader {
			c.Header("X-RateLimit-Limit", strconv.Itoa(state.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(state.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))
		}

		c.Next()
	}
}
