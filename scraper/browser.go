package scraper

import (
	"context"
	"time"
)

// LoadState names a page lifecycle milestone.
type LoadState string

const (
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateLoad             LoadState = "load"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context, headless bool) (Session, error)
}

// Session is a running browser. It is owned by one Scraper.
type Session interface {
	NewContext(ctx context.Context) (BrowserContext, error)
	Close() error
}

// BrowserContext is an isolated browsing context. Closing it closes its pages.
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	// Goto navigates to url and waits for DOM content to load, bounded by
	// timeout.
	Goto(ctx context.Context, url string, timeout time.Duration) error

	// WaitForLoadState waits until the page reaches state or timeout elapses.
	WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error

	Title(ctx context.Context) (string, error)

	// Content returns the rendered HTML of the whole document.
	Content(ctx context.Context) (string, error)
}
