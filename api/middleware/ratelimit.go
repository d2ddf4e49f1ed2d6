package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/models"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiters hands out one token bucket per identity (API key or client IP).
type Limiters struct {
	cfg config.RateLimitConfig

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

// NewLimiters creates an empty limiter set.
func NewLimiters(cfg config.RateLimitConfig) *Limiters {
	return &Limiters{cfg: cfg, entries: make(map[string]*limiterEntry)}
}

// Allow takes one token from identity's bucket.
func (l *Limiters) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[identity]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst),
		}
		l.entries[identity] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Evict drops buckets unused since before cutoff.
func (l *Limiters) Evict(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}

// Run evicts buckets idle for an hour, every five minutes, until ctx is done.
func (l *Limiters) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Evict(time.Now().Add(-1 * time.Hour))
		}
	}
}

// RateLimit returns per-identity token-bucket rate limiting middleware.
// A non-positive rate disables limiting.
func RateLimit(l *Limiters) gin.HandlerFunc {
	if l == nil || l.cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.GetString(identityKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		if !l.Allow(identity) {
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down")
			return
		}
		c.Next()
	}
}
