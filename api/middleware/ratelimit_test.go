package middleware

import (
	"testing"
	"time"

	"github.com/use-agent/prisma/config"
)

func TestLimiters_PerIdentity(t *testing.T) {
	l := NewLimiters(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	if !l.Allow("a") {
		t.Fatal("first request for a denied")
	}
	if l.Allow("a") {
		t.Error("second request for a allowed past burst")
	}
	if !l.Allow("b") {
		t.Error("b shares a's bucket")
	}
}

func TestLimiters_Evict(t *testing.T) {
	l := NewLimiters(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	l.Allow("a")
	l.Evict(time.Now().Add(time.Minute))
	if len(l.entries) != 0 {
		t.Errorf("entries = %d after evicting everything", len(l.entries))
	}
}
