// Package ratelimit implements Redis-backed fixed-window limiters: Limiter
// bounds control-plane traffic, and ConnectLimiter bounds inbound gateway
// connection attempts per source address (spec §4.1, P6). Each window
// starts at the first counted attempt and resets when its key expires; it
// does not slide.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter keyed by caller identity, usable both
// as Gin middleware and directly from the raw WebSocket upgrade handler.
type Limiter struct {
	client      *redis.Client
	maxRequests int
	windowSec   int
}

func New(client *redis.Client, maxRequestsPerWindow, windowSec int) *Limiter {
	return &Limiter{
		client:      client,
		maxRequests: maxRequestsPerWindow,
		windowSec:   windowSec,
	}
}

// Allow increments the counter for key and reports whether the caller is
// still within the window's quota. Used by Middleware; the bridge listener
// uses ConnectLimiter.Check instead.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := l.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		l.client.Expire(ctx, fullKey, time.Duration(l.windowSec)*time.Second)
	}

	return count <= int64(l.maxRequests), nil
}

// Middleware wraps Allow for the control-plane Gin routes, keyed by
// operator ID when authenticated, falling back to client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, exists := c.Get("operator_id")
		if !exists {
			key = c.ClientIP()
		}

		ctx := c.Request.Context()
		allowed, err := l.Allow(ctx, fmt.Sprintf("%v", key))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
			c.Abort()
			return
		}

		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", l.windowSec))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": l.windowSec,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ConnectLimiter blocks a source address after too many failed or abusive
// bridge connection attempts, mirroring the control plane's stricter
// auth-endpoint limiter but applied to gateway connections instead of
// operator logins.
type ConnectLimiter struct {
	client      *redis.Client
	maxAttempts int
	windowSec   int
	blockSec    int
}

func NewConnectLimiter(client *redis.Client, maxAttempts, windowSec, blockSec int) *ConnectLimiter {
	return &ConnectLimiter{
		client:      client,
		maxAttempts: maxAttempts,
		windowSec:   windowSec,
		blockSec:    blockSec,
	}
}

// Check reports whether addr may attempt a new bridge connection right now,
// and the number of seconds to wait if not.
func (cl *ConnectLimiter) Check(ctx context.Context, addr string) (allowed bool, retryAfterSec int, err error) {
	blockKey := fmt.Sprintf("bridge_blocked:%s", addr)

	blocked, err := cl.client.Exists(ctx, blockKey).Result()
	if err == nil && blocked > 0 {
		ttl, _ := cl.client.TTL(ctx, blockKey).Result()
		return false, int(ttl.Seconds()), nil
	}

	key := fmt.Sprintf("bridge_connrate:%s", addr)
	count, err := cl.client.Incr(ctx, key).Result()
	if err != nil {
		// Fail open: a Redis outage shouldn't take down the bridge.
		return true, 0, nil
	}
	if count == 1 {
		cl.client.Expire(ctx, key, time.Duration(cl.windowSec)*time.Second)
	}

	if count > int64(cl.maxAttempts) {
		cl.client.Set(ctx, blockKey, "1", time.Duration(cl.blockSec)*time.Second)
		return false, cl.blockSec, nil
	}

	return true, 0, nil
}
