package cache

import (
	"testing"
	"time"

	"github.com/use-agent/prisma/models"
)

func TestCache_SetGet(t *testing.T) {
	c := New(10, time.Hour)
	key := Key("https://example.com", "selectors", "browser")
	r := models.NewScrapeSuccess("https://example.com", "T", "md", time.Second)

	if _, ok := c.Get(key); ok {
		t.Fatal("Get() hit on empty cache")
	}
	c.Set(key, r)
	got, ok := c.Get(key)
	if !ok || got.Markdown != "md" {
		t.Errorf("Get() = %+v, %v", got, ok)
	}
}

func TestCache_SkipsFailures(t *testing.T) {
	c := New(10, time.Hour)
	key := Key("https://example.com", "selectors", "browser")
	c.Set(key, models.NewScrapeFailure("https://example.com", models.NewError(models.ErrCodeTimeout, "t", nil), 0))
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_EvictsOldest(t *testing.T) {
	c := New(2, time.Hour)
	for _, u := range []string{"a", "b", "c"} {
		c.Set(u, models.NewScrapeSuccess(u, u, u, 0))
	}
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry not evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCache_Expires(t *testing.T) {
	c := New(10, 20*time.Millisecond)
	c.Set("k", models.NewScrapeSuccess("u", "t", "m", 0))
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry returned")
	}
}

func TestKey_DependsOnModes(t *testing.T) {
	if Key("u", "selectors", "browser") == Key("u", "readability", "browser") {
		t.Error("extract mode not part of the key")
	}
	if Key("u", "selectors", "browser") == Key("u", "selectors", "http") {
		t.Error("fetch mode not part of the key")
	}
}

func TestCache_Nil(t *testing.T) {
	var c *Cache
	c.Set("k", models.NewScrapeSuccess("u", "t", "m", 0))
	if _, ok := c.Get("k"); ok || c.Len() != 0 {
		t.Error("nil cache stored a value")
	}
}
