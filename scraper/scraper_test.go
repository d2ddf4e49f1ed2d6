package scraper

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/models"
	"github.com/use-agent/prisma/progress"
)

func testConfig() config.ScraperConfig {
	cfg := config.DefaultScraper()
	cfg.Delay = 0
	cfg.NetworkIdleTimeout = config.Duration(50 * time.Millisecond)
	return cfg
}

func newTestScraper(t *testing.T, cfg config.ScraperConfig, b *fakeBrowser, opts ...Option) *Scraper {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	var l Launcher
	if b != nil {
		l = b
	}
	s, err := New(cfg, l, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestScrapeURL_Success(t *testing.T) {
	b := newFakeBrowser(map[string]site{
		"https://example.com/a": {html: articlePage("Alpha", "alpha text"), title: "Alpha"},
	})
	s := newTestScraper(t, testConfig(), b)

	res := s.ScrapeURL(context.Background(), "https://example.com/a")
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Title != "Alpha" || res.URL != "https://example.com/a" {
		t.Errorf("unexpected result: title=%q url=%q", res.Title, res.URL)
	}
	if !strings.HasPrefix(res.Markdown, "# Alpha\n\n**Source:** https://example.com/a") {
		t.Errorf("missing metadata header: %q", res.Markdown[:50])
	}
	if strings.Contains(res.Markdown, "menu") {
		t.Error("navigation leaked into markdown")
	}
	if res.ContentLength != len([]rune(res.Markdown)) {
		t.Errorf("ContentLength = %d, want %d", res.ContentLength, len([]rune(res.Markdown)))
	}
	if res.Error != "" || res.Timestamp.IsZero() {
		t.Errorf("unexpected error/timestamp: %q %v", res.Error, res.Timestamp)
	}
	if s.State() != SessionOpen {
		t.Error("single scrape should leave the session open")
	}
}

func TestScrapeURL_FailureClassification(t *testing.T) {
	tests := []struct {
		name     string
		site     site
		url      string
		wantCode string
		wantConn bool
	}{
		{"unreachable host", site{}, "https://unreachable.invalid/", models.ErrCodeNetwork, true},
		{"navigation timeout", site{gotoErr: errTimeout}, "https://slow.example.com/", models.ErrCodeTimeout, false},
		{"generic navigation error", site{gotoErr: errors.New("frame detached")}, "https://broken.example.com/", models.ErrCodeNavigation, false},
		{"renderer panic", site{panics: true}, "https://panic.example.com/", models.ErrCodeInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sites := map[string]site{}
			if tt.url != "https://unreachable.invalid/" {
				sites[tt.url] = tt.site
			}
			s := newTestScraper(t, testConfig(), newFakeBrowser(sites))

			res := s.ScrapeURL(context.Background(), tt.url)
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %s, want %s (error %q)", res.ErrorCode, tt.wantCode, res.Error)
			}
			if res.URL != tt.url || res.Markdown != "" || res.Title != "" {
				t.Errorf("failed result must keep URL and have no content: %+v", res)
			}
			if res.Error == "" || len([]rune(res.Error)) > models.MaxErrorLength {
				t.Errorf("error text %q not within bounds", res.Error)
			}
			if tt.wantConn && !strings.Contains(res.Error, ErrConnection.Error()) {
				t.Errorf("expected connection error, got %q", res.Error)
			}
		})
	}
}

func TestScrapeURL_InvalidURLDoesNotLaunch(t *testing.T) {
	b := newFakeBrowser(nil)
	s := newTestScraper(t, testConfig(), b)

	for _, u := range []string{"not a url", "ftp://example.com/file", "https://"} {
		res := s.ScrapeURL(context.Background(), u)
		if res.Success || res.ErrorCode != models.ErrCodeInvalidInput {
			t.Errorf("%q: got success=%v code=%s", u, res.Success, res.ErrorCode)
		}
	}
	if launches, _, _ := b.counts(); launches != 0 {
		t.Errorf("browser launched %d times for invalid input", launches)
	}
}

func TestScrapeURL_TitleFallback(t *testing.T) {
	b := newFakeBrowser(map[string]site{
		"https://example.com/html-title": {html: articlePage("From HTML", "body text")},
		"https://example.com/no-title":   {html: "<html><body><article>" + strings.Repeat("x", 600) + "</article></body></html>"},
	})
	s := newTestScraper(t, testConfig(), b)

	if got := s.ScrapeURL(context.Background(), "https://example.com/html-title").Title; got != "From HTML" {
		t.Errorf("title = %q, want %q", got, "From HTML")
	}
	if got := s.ScrapeURL(context.Background(), "https://example.com/no-title").Title; got != "Untitled" {
		t.Errorf("title = %q, want Untitled", got)
	}
}

func TestScrapeURL_NetworkIdleTimeoutTolerated(t *testing.T) {
	b := newFakeBrowser(map[string]site{
		"https://example.com/busy": {html: articlePage("Busy", "busy page"), title: "Busy", idleErr: errTimeout},
	})
	s := newTestScraper(t, testConfig(), b)

	if res := s.ScrapeURL(context.Background(), "https://example.com/busy"); !res.Success {
		t.Fatalf("idle timeout must not fail the scrape: %s", res.Error)
	}
}

func TestScrapeURLs_IsolatesFailure(t *testing.T) {
	urls := []string{
		"https://example.com/1",
		"https://does-not-exist.invalid/",
		"https://example.com/3",
	}
	b := newFakeBrowser(map[string]site{
		urls[0]: {html: articlePage("One", "first"), title: "One"},
		urls[2]: {html: articlePage("Three", "third"), title: "Three"},
	})
	s := newTestScraper(t, testConfig(), b)

	results := s.ScrapeURLs(context.Background(), urls)
	if len(results) != len(urls) {
		t.Fatalf("got %d results, want %d", len(results), len(urls))
	}
	failures := 0
	for i, r := range results {
		if r.URL != urls[i] {
			t.Errorf("results[%d].URL = %q, want %q", i, r.URL, urls[i])
		}
		if !r.Success {
			failures++
		}
	}
	if failures != 1 || results[1].Success {
		t.Errorf("expected exactly the unreachable URL to fail, failures=%d", failures)
	}
	if b.gotos[len(b.gotos)-1] != urls[2] {
		t.Error("batch stopped early after the failure")
	}

	launches, closes, _ := b.counts()
	if launches != 1 || closes != 1 {
		t.Errorf("launches=%d closes=%d, want one shared session closed once", launches, closes)
	}
	if s.State() != SessionClosed {
		t.Error("session should be closed after the batch")
	}
}

func TestScrapeURLs_FiveURLsOneTimeout(t *testing.T) {
	var urls []string
	sites := map[string]site{}
	for i := 1; i <= 5; i++ {
		u := "https://example.com/page" + string(rune('0'+i))
		urls = append(urls, u)
		sites[u] = site{html: articlePage("Page", "content"), title: "Page"}
	}
	sites[urls[3]] = site{gotoErr: errTimeout}

	s := newTestScraper(t, testConfig(), newFakeBrowser(sites))

	var events []progress.ScrapeEvent
	s.OnProgress(func(e progress.ScrapeEvent) { events = append(events, e) })

	results := s.ScrapeURLs(context.Background(), urls)
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	if got := models.CountSucceeded(results); got != 4 {
		t.Errorf("succeeded = %d, want 4", got)
	}
	if results[3].ErrorCode != models.ErrCodeTimeout {
		t.Errorf("timeout result code = %s", results[3].ErrorCode)
	}

	if len(events) != 5 {
		t.Fatalf("got %d progress events, want 5", len(events))
	}
	for i, e := range events {
		if e.Current != i+1 || e.Total != 5 || e.URL != urls[i] {
			t.Errorf("event %d = %+v", i, e)
		}
	}
}

func TestScrapeURLs_ProgressPanicDoesNotAbort(t *testing.T) {
	urls := []string{"https://example.com/a", "https://example.com/b"}
	b := newFakeBrowser(map[string]site{
		urls[0]: {html: articlePage("A", "aaa"), title: "A"},
		urls[1]: {html: articlePage("B", "bbb"), title: "B"},
	})
	s := newTestScraper(t, testConfig(), b)
	s.OnProgress(func(progress.ScrapeEvent) { panic("ui went away") })

	results := s.ScrapeURLs(context.Background(), urls)
	if models.CountSucceeded(results) != 2 {
		t.Fatalf("progress subscriber failure affected the batch: %+v", results)
	}
}

func TestScrapeURLs_DelayBetweenFetches(t *testing.T) {
	cfg := testConfig()
	cfg.Delay = config.Duration(40 * time.Millisecond)
	urls := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
	sites := map[string]site{}
	for _, u := range urls {
		sites[u] = site{html: articlePage("P", "text"), title: "P"}
	}
	s := newTestScraper(t, cfg, newFakeBrowser(sites))

	start := time.Now()
	s.ScrapeURLs(context.Background(), urls)
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("elapsed %s, want at least two delays", elapsed)
	}
}

func TestScrapeURLs_CanceledKeepsOneResultPerURL(t *testing.T) {
	urls := []string{"https://example.com/a", "https://example.com/b"}
	b := newFakeBrowser(map[string]site{})
	s := newTestScraper(t, testConfig(), b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := s.ScrapeURLs(ctx, urls)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Success || r.ErrorCode != models.ErrCodeCanceled {
			t.Errorf("result %+v, want canceled", r)
		}
	}
	if launches, _, _ := b.counts(); launches != 0 {
		t.Error("canceled batch should not launch the browser")
	}
}

func TestScrapeURLs_LaunchFailure(t *testing.T) {
	b := newFakeBrowser(nil)
	b.launchErr = errors.New("chromium not found")
	s := newTestScraper(t, testConfig(), b)

	results := s.ScrapeURLs(context.Background(), []string{"https://example.com/a", "https://example.com/b"})
	for _, r := range results {
		if r.Success || r.ErrorCode != models.ErrCodeBrowserCrash {
			t.Errorf("result %+v, want BROWSER_CRASH failure", r)
		}
	}
}

func TestScrapeURLsConcurrent_PreservesOrder(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 2

	urls := []string{
		"https://a.example.com/",
		"https://b.example.com/",
		"https://c.example.com/",
		"https://d.example.com/",
		"https://e.example.com/",
	}
	sites := map[string]site{}
	for i, u := range urls {
		// Earlier URLs take longer so completion order differs from input order.
		sites[u] = site{
			html:  articlePage("Site", "text"),
			title: u,
			delay: time.Duration(len(urls)-i) * 15 * time.Millisecond,
		}
	}
	sites[urls[2]] = site{panics: true}

	b := newFakeBrowser(sites)
	s := newTestScraper(t, cfg, b)

	var (
		mu     sync.Mutex
		events []progress.ScrapeEvent
	)
	s.OnProgress(func(e progress.ScrapeEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	results := s.ScrapeURLsConcurrent(context.Background(), urls)
	if len(results) != len(urls) {
		t.Fatalf("got %d results, want %d", len(results), len(urls))
	}
	for i, r := range results {
		if r.URL != urls[i] {
			t.Errorf("results[%d].URL = %q, want %q", i, r.URL, urls[i])
		}
	}
	if results[2].Success || results[2].ErrorCode != models.ErrCodeInternal {
		t.Errorf("panicking URL should fail with INTERNAL_ERROR, got %+v", results[2])
	}
	if got := models.CountSucceeded(results); got != 4 {
		t.Errorf("succeeded = %d, want 4", got)
	}

	if _, _, maxActive := b.counts(); maxActive > cfg.MaxConcurrent {
		t.Errorf("max concurrent contexts = %d, limit %d", maxActive, cfg.MaxConcurrent)
	}

	if len(events) != len(urls) {
		t.Fatalf("got %d progress events, want %d", len(events), len(urls))
	}
	for i, e := range events {
		if e.Current != i+1 || e.Total != len(urls) {
			t.Errorf("event %d = %+v, want running completed count", i, e)
		}
	}
	if s.State() != SessionClosed {
		t.Error("session should be closed after the batch")
	}
}

func TestScrapeURLsConcurrent_Canceled(t *testing.T) {
	s := newTestScraper(t, testConfig(), newFakeBrowser(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	urls := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
	results := s.ScrapeURLsConcurrent(ctx, urls)
	for i, r := range results {
		if r.URL != urls[i] || r.ErrorCode != models.ErrCodeCanceled {
			t.Errorf("results[%d] = %+v, want canceled for %s", i, r, urls[i])
		}
	}
}

func TestScrapeURL_HTTPFetchMode(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://static.example.com/doc",
		httpmock.NewStringResponder(200, articlePage("Static", "server rendered")))
	transport.RegisterResponder("GET", "https://static.example.com/missing",
		httpmock.NewStringResponder(404, "not found"))

	cfg := testConfig()
	cfg.FetchMode = config.FetchHTTP
	s := newTestScraper(t, cfg, nil, WithHTTPClient(&http.Client{Transport: transport}))

	res := s.ScrapeURL(context.Background(), "https://static.example.com/doc")
	if !res.Success || res.FetchMethod != config.FetchHTTP || res.Title != "Static" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = s.ScrapeURL(context.Background(), "https://static.example.com/missing")
	if res.Success || res.ErrorCode != models.ErrCodeNavigation {
		t.Fatalf("404 should fail with NAVIGATION_FAILED, got %+v", res)
	}
}

func TestScrapeURL_AutoModeFallsBackToBrowser(t *testing.T) {
	const shellURL = "https://spa.example.com/app"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", shellURL,
		httpmock.NewStringResponder(200, `<html><body><div id="root"></div><script src="app.js"></script></body></html>`))

	b := newFakeBrowser(map[string]site{
		shellURL: {html: articlePage("Rendered", "client rendered"), title: "Rendered"},
	})
	cfg := testConfig()
	cfg.FetchMode = config.FetchAuto
	s := newTestScraper(t, cfg, b, WithHTTPClient(&http.Client{Transport: transport}))

	res := s.ScrapeURL(context.Background(), shellURL)
	if !res.Success || res.FetchMethod != config.FetchBrowser {
		t.Fatalf("expected browser fallback, got %+v", res)
	}
	if got := s.domains.Get("spa.example.com"); got != config.FetchBrowser {
		t.Errorf("domain memory = %q, want browser", got)
	}

	// The remembered host skips the HTTP attempt.
	before := transport.GetTotalCallCount()
	s.ScrapeURL(context.Background(), shellURL)
	if transport.GetTotalCallCount() != before {
		t.Error("remembered host should go straight to the browser")
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 0
	if _, err := New(cfg, newFakeBrowser(nil)); err == nil {
		t.Fatal("expected error for zero max concurrency")
	}
	if _, err := New(testConfig(), nil); err == nil {
		t.Fatal("expected error for missing launcher in browser mode")
	}
}

func TestNeedsBrowser(t *testing.T) {
	long := strings.Repeat("Plenty of server rendered words. ", 20)
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"empty shell", `<html><body><div id="app"></div></body></html>`, true},
		{"server rendered", "<html><body><p>" + long + "</p></body></html>", false},
		{"empty root with text elsewhere", `<html><body><div id="root"></div><p>` + long + `</p></body></html>`, true},
		{"noscript warning", `<html><body><noscript>You need to enable JavaScript to run this app.</noscript><p>` + long + `</p></body></html>`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsBrowser([]byte(tt.body)); got != tt.want {
				t.Errorf("needsBrowser() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDomainMemory_Expiry(t *testing.T) {
	dm := NewDomainMemory(time.Minute)
	defer dm.Stop()

	now := time.Now()
	dm.now = func() time.Time { return now }
	dm.Set("example.com", config.FetchBrowser)
	if dm.Get("example.com") != config.FetchBrowser {
		t.Fatal("entry missing right after Set")
	}
	dm.now = func() time.Time { return now.Add(2 * time.Minute) }
	if dm.Get("example.com") != "" {
		t.Fatal("entry should have expired")
	}
	dm.Stop()
}
