package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweep = 5 * time.Minute
	limiterIdle  = 10 * time.Minute
)

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	return RateLimitBy(r, b, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitBy limits requests per key. A rejected request gets 429 with a
// Retry-After hint in whole seconds.
func RateLimitBy(r rate.Limit, b int, key func(*gin.Context) string) gin.HandlerFunc {
	limiters := &sync.Map{}

	go func() {
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-limiterIdle).UnixNano()
			limiters.Range(func(k, v interface{}) bool {
				if v.(*keyedLimiter).lastSeen.Load() < cutoff {
					limiters.Delete(k)
				}
				return true
			})
		}
	}()

	retryAfter := "1"
	if r > 0 && r < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(float64(1 / r))))
	}

	return func(c *gin.Context) {
		v, _ := limiters.LoadOrStore(key(c), &keyedLimiter{limiter: rate.NewLimiter(r, b)})
		kl := v.(*keyedLimiter)
		kl.lastSeen.Store(time.Now().UnixNano())
		if !kl.limiter.Allow() {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
