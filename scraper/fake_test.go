package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// site describes how the fake browser responds to one URL.
type site struct {
	html    string
	title   string
	gotoErr error
	idleErr error
	delay   time.Duration
	panics  bool
}

// fakeBrowser implements Launcher, Session, BrowserContext and Page over a
// table of sites.
type fakeBrowser struct {
	mu        sync.Mutex
	sites     map[string]site
	launchErr error

	launches  int
	closes    int
	gotos     []string
	active    int
	maxActive int
}

func newFakeBrowser(sites map[string]site) *fakeBrowser {
	return &fakeBrowser{sites: sites}
}

func (b *fakeBrowser) Launch(ctx context.Context, headless bool) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.launchErr != nil {
		return nil, b.launchErr
	}
	b.launches++
	return &fakeSession{b: b}, nil
}

func (b *fakeBrowser) counts() (launches, closes, maxActive int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.launches, b.closes, b.maxActive
}

type fakeSession struct{ b *fakeBrowser }

func (s *fakeSession) NewContext(ctx context.Context) (BrowserContext, error) {
	s.b.mu.Lock()
	s.b.active++
	if s.b.active > s.b.maxActive {
		s.b.maxActive = s.b.active
	}
	s.b.mu.Unlock()
	return &fakeContext{b: s.b}, nil
}

func (s *fakeSession) Close() error {
	s.b.mu.Lock()
	s.b.closes++
	s.b.mu.Unlock()
	return nil
}

type fakeContext struct{ b *fakeBrowser }

func (c *fakeContext) NewPage(ctx context.Context) (Page, error) {
	return &fakePage{b: c.b}, nil
}

func (c *fakeContext) Close() error {
	c.b.mu.Lock()
	c.b.active--
	c.b.mu.Unlock()
	return nil
}

type fakePage struct {
	b    *fakeBrowser
	site site
}

func (p *fakePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	p.b.mu.Lock()
	s, ok := p.b.sites[url]
	p.b.gotos = append(p.b.gotos, url)
	p.b.mu.Unlock()
	if !ok {
		return fmt.Errorf("navigation failed: net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	p.site = s
	if s.panics {
		panic("renderer crashed")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.gotoErr
}

func (p *fakePage) WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error {
	return p.site.idleErr
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	return p.site.title, nil
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	return p.site.html, nil
}

func articlePage(title, text string) string {
	return "<html><head><title>" + title + "</title></head><body><nav>menu</nav><article><h1>" + title +
		"</h1><p>" + strings.Repeat(text+" ", 600/len(text)+1) + "</p></article></body></html>"
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errTimeout = context.DeadlineExceeded
