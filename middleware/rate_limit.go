package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractledger/pkg/logger"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	mu        sync.Mutex
	counts    map[string]int
	lastReset time.Time
	rate      int           // requests per window
	window    time.Duration // time window
	now       func() time.Time
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts:    make(map[string]int),
		lastReset: time.Now(),
		rate:      rate,
		window:    window,
		now:       time.Now,
	}
}

// Allow records one request for key and reports whether it fits the window.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now := l.now(); now.Sub(l.lastReset) > l.window {
		l.counts = make(map[string]int)
		l.lastReset = now
	}
	if l.counts[key] >= l.rate {
		return false
	}
	l.counts[key]++
	return true
}

// RateLimit limits requests per company, falling back to the client IP for
// requests without one. Register it after CompanyScope.
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if company := GetCompanyID(c); company != "" {
			key = "company:" + company
		}

		if !limiter.Allow(key) {
			logger.WithContext(c.Request.Context()).Warn("rate limit exceeded",
				"key", key,
				"client_ip", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
