// Package ratelimit provides fixed-window rate limiting for the API.
//
// Windows live in process memory; with several instances each enforces
// its own budget. The limiter sits behind a small interface at the call
// sites, so a shared backend can replace it without touching callers.
package ratelimit

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novamarkt/platform/internal/metrics"
)

// Limiter tracks fixed windows by key.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*windowState
	stop    chan struct{}
}

type windowState struct {
	count   int
	resetAt time.Time
}

// New creates a limiter and starts its cleanup goroutine.
func New(cleanupInterval time.Duration) *Limiter {
	l := &Limiter{
		windows: make(map[string]*windowState),
		stop:    make(chan struct{}),
	}
	go l.cleanup(cleanupInterval)
	return l
}

// cleanup removes expired windows periodically.
func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for key, w := range l.windows {
				if now.After(w.resetAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow records an attempt for key and reports whether it fits the
// window. A new window opens when none exists or the old one expired.
// When denied, retryAfter says how long until the window resets; the
// denied attempt does not extend the window.
func (l *Limiter) Allow(key string, max int, window time.Duration) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &windowState{count: 1, resetAt: now.Add(window)}
		return true, 0
	}

	if w.count >= max {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

// Middleware returns a gin middleware enforcing max requests per window,
// keyed by authenticated actor when present, client IP otherwise. The
// name labels the limit in responses and metrics.
func (l *Limiter) Middleware(name string, max int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := name + ":ip:" + c.ClientIP()
		if actorID := c.GetString("actorID"); actorID != "" {
			key = name + ":user:" + actorID
		}

		allowed, retryAfter := l.Allow(key, max, window)
		if !allowed {
			metrics.RateLimitedTotal.WithLabelValues(name).Inc()
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     "Too many requests. Please slow down.",
				"retry_after": seconds,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
