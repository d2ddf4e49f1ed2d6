package scraper

import (
	"sync"
	"time"
)

type domainEntry struct {
	mode      string
	expiresAt time.Time
}

// DomainMemory remembers, per host, which fetch mode produced usable
// content. Entries expire after the TTL and are pruned hourly.
type DomainMemory struct {
	store sync.Map // host (string) -> domainEntry
	ttl   time.Duration
	now   func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewDomainMemory creates a DomainMemory and starts its pruning goroutine.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	dm := &DomainMemory{
		ttl:  ttl,
		now:  time.Now,
		done: make(chan struct{}),
	}
	go dm.pruneLoop()
	return dm
}

// Get returns the remembered mode for host, or "" when unknown or expired.
func (dm *DomainMemory) Get(host string) string {
	val, ok := dm.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(domainEntry)
	if dm.now().After(entry.expiresAt) {
		dm.store.Delete(host)
		return ""
	}
	return entry.mode
}

// Set records mode for host.
func (dm *DomainMemory) Set(host, mode string) {
	dm.store.Store(host, domainEntry{mode: mode, expiresAt: dm.now().Add(dm.ttl)})
}

// Delete forgets host.
func (dm *DomainMemory) Delete(host string) {
	dm.store.Delete(host)
}

// Stop terminates the pruning goroutine. It is safe to call more than once.
func (dm *DomainMemory) Stop() {
	dm.stopOnce.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) pruneLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			now := dm.now()
			dm.store.Range(func(key, value any) bool {
				if now.After(value.(domainEntry).expiresAt) {
					dm.store.Delete(key)
				}
				return true
			})
		}
	}
}
