package http

import (
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimiter caps requests per fixed one-minute window. A zero or
// negative limit disables limiting.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	counter int
	window  time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.window) >= time.Minute {
		r.window = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}

// RateLimitMiddleware rejects requests over the limiter's budget. It
// guards the credential endpoints against brute-force attempts.
func RateLimitMiddleware(limiter *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.allow() {
			c.AbortWithStatusJSON(stdhttp.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			return
		}
		c.Next()
	}
}
