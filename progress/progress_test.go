package progress

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus[ScrapeEvent](nil)
	var got []int
	bus.Subscribe(func(e ScrapeEvent) { got = append(got, e.Current) })
	bus.Subscribe(func(e ScrapeEvent) { got = append(got, e.Current*10) })

	bus.Publish(ScrapeEvent{Current: 1, Total: 2, URL: "a"})
	bus.Publish(ScrapeEvent{Current: 2, Total: 2, URL: "b"})

	want := []int{1, 10, 2, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus[Message](slog.New(slog.NewTextHandler(io.Discard, nil)))
	delivered := 0
	bus.Subscribe(func(Message) { panic("boom") })
	bus.Subscribe(func(Message) { delivered++ })

	bus.Publish("loading")
	bus.Publish("loaded")

	if delivered != 2 {
		t.Fatalf("second subscriber got %d events, want 2", delivered)
	}
}

func TestBus_NilSafe(t *testing.T) {
	var bus *Bus[Message]
	bus.Publish("ignored")
	NewBus[Message](nil).Subscribe(nil)
}

func TestBus_PublishContextObserver(t *testing.T) {
	bus := NewBus[ScrapeEvent](slog.New(slog.NewTextHandler(io.Discard, nil)))
	var shared, scoped []string
	bus.Subscribe(func(e ScrapeEvent) { shared = append(shared, e.URL) })

	ctx := WithObserver(context.Background(), func(e ScrapeEvent) { scoped = append(scoped, e.URL) })
	bus.PublishContext(ctx, ScrapeEvent{URL: "a"})
	bus.PublishContext(context.Background(), ScrapeEvent{URL: "b"})

	if len(shared) != 2 {
		t.Errorf("subscriber got %v, want both events", shared)
	}
	if len(scoped) != 1 || scoped[0] != "a" {
		t.Errorf("observer got %v, want only the event published with its context", scoped)
	}

	// An observer for another event type is not called.
	msgCtx := WithObserver(context.Background(), func(Message) { t.Error("message observer called for a scrape event") })
	bus.PublishContext(msgCtx, ScrapeEvent{URL: "c"})

	// A panicking observer is isolated.
	panicky := WithObserver(context.Background(), func(ScrapeEvent) { panic("boom") })
	bus.PublishContext(panicky, ScrapeEvent{URL: "d"})
}
