// Package cache keeps recent successful scrape results in memory.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/use-agent/prisma/models"
)

// Cache is an expiring LRU of scrape results. It is safe for concurrent
// use.
type Cache struct {
	lru *expirable.LRU[string, models.ScrapeResult]
}

// New creates a Cache holding at most maxEntries results for ttl each.
func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, models.ScrapeResult](maxEntries, nil, ttl)}
}

// Key derives a cache key from the URL and the settings that shape its
// markdown.
func Key(url, extractMode, fetchMode string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(extractMode))
	h.Write([]byte("|"))
	h.Write([]byte(fetchMode))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key. It is safe to call on a nil
// Cache.
func (c *Cache) Get(key string) (models.ScrapeResult, bool) {
	if c == nil {
		return models.ScrapeResult{}, false
	}
	return c.lru.Get(key)
}

// Set stores r if it succeeded. Failures are never cached.
func (c *Cache) Set(key string, r models.ScrapeResult) {
	if c == nil || !r.Success {
		return
	}
	c.lru.Add(key, r)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
