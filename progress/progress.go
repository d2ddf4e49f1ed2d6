// Package progress delivers pipeline progress events to subscribers.
//
// Delivery is synchronous and best-effort: a subscriber that panics is
// logged and skipped, and never affects the publisher.
package progress

import (
	"context"
	"log/slog"
	"sync"
)

// ScrapeEvent reports scraping progress. Current is 1-based: the index of
// the URL about to be fetched in sequential mode, or the number of URLs
// completed so far in concurrent mode.
type ScrapeEvent struct {
	Current int
	Total   int
	URL     string
}

// Message is a free-form status line, used for model loading and synthesis.
type Message string

// Bus fans events of type E out to its subscribers.
type Bus[E any] struct {
	mu     sync.RWMutex
	subs   []func(E)
	logger *slog.Logger
}

// NewBus creates a Bus that logs subscriber failures to logger.
func NewBus[E any](logger *slog.Logger) *Bus[E] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus[E]{logger: logger}
}

// Subscribe registers fn. Subscribers are called in registration order.
func (b *Bus[E]) Subscribe(fn func(E)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

// Publish delivers ev to every subscriber. It is safe to call on a nil Bus.
func (b *Bus[E]) Publish(ev E) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, fn := range subs {
		b.deliver(fn, ev)
	}
}

// PublishContext delivers ev to every subscriber and then to the observer
// attached to ctx with WithObserver, if any.
func (b *Bus[E]) PublishContext(ctx context.Context, ev E) {
	if b == nil {
		return
	}
	b.Publish(ev)
	if fn, ok := ctx.Value(observerKey[E]{}).(func(E)); ok {
		b.deliver(fn, ev)
	}
}

type observerKey[E any] struct{}

// WithObserver returns a context that carries fn as a per-call observer
// for events of type E. Publishers that receive the context call fn in
// addition to their bus subscribers.
func WithObserver[E any](ctx context.Context, fn func(E)) context.Context {
	return context.WithValue(ctx, observerKey[E]{}, fn)
}

func (b *Bus[E]) deliver(fn func(E), ev E) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("progress subscriber failed", "panic", r)
		}
	}()
	fn(ev)
}
