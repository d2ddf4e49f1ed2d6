package scraper

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/models"
	"github.com/use-agent/prisma/progress"
)

// fetched is a rendered page ready for extraction.
type fetched struct {
	html   string
	title  string
	method string // "browser" or "http"
}

// ScrapeURL fetches one page and converts it to Markdown. It never panics
// and never returns an error: every failure becomes a failed result. The
// browser session is opened on first use and left open.
func (s *Scraper) ScrapeURL(ctx context.Context, rawURL string) (res models.ScrapeResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := models.NewError(models.ErrCodeInternal, fmt.Sprintf("unexpected failure: %v", r), nil)
			res = models.NewScrapeFailure(rawURL, err, time.Since(start))
		}
		s.observe(res)
	}()

	if err := validateURL(rawURL); err != nil {
		return models.NewScrapeFailure(rawURL, err, time.Since(start))
	}
	if err := ctx.Err(); err != nil {
		return models.NewScrapeFailure(rawURL, categorizeError(err, models.ErrCodeCanceled, "scrape canceled"), time.Since(start))
	}

	page, err := s.fetch(ctx, rawURL)
	if err != nil {
		return models.NewScrapeFailure(rawURL, err, time.Since(start))
	}

	md, err := s.extractor.Extract(page.html, page.title, rawURL, time.Now())
	if err != nil {
		return models.NewScrapeFailure(rawURL, err, time.Since(start))
	}

	res = models.NewScrapeSuccess(rawURL, titleOrDefault(page.title), md, time.Since(start))
	res.FetchMethod = page.method
	return res
}

func (s *Scraper) observe(res models.ScrapeResult) {
	elapsed := time.Duration(res.ElapsedSeconds * float64(time.Second))
	s.metrics.ObserveScrape(res.Success, res.ErrorCode, elapsed)
	if res.Success {
		s.logger.Info("scraped",
			"url", res.URL,
			"title", res.Title,
			"chars", res.ContentLength,
			"method", res.FetchMethod,
			"elapsed", elapsed.Round(time.Millisecond),
		)
		return
	}
	s.logger.Error("scrape failed",
		"url", res.URL,
		"code", res.ErrorCode,
		"error", res.Error,
	)
}

// ScrapeURLs scrapes urls one at a time, in order. A progress event is
// published before each fetch and the configured delay separates
// consecutive fetches. When ctx is canceled the remaining URLs are recorded
// as canceled, so the result always has one entry per URL. The browser
// session is closed before returning.
func (s *Scraper) ScrapeURLs(ctx context.Context, urls []string) []models.ScrapeResult {
	s.beginBatch()
	defer s.endBatch()

	results := make([]models.ScrapeResult, 0, len(urls))
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			results = append(results, canceledResult(u, err))
			continue
		}

		s.progress.PublishContext(ctx, progress.ScrapeEvent{Current: i + 1, Total: len(urls), URL: u})
		results = append(results, s.ScrapeURL(ctx, u))

		if i < len(urls)-1 {
			sleepCtx(ctx, s.cfg.Delay.Std())
		}
	}

	s.logSummary("sequential", results)
	return results
}

// ScrapeURLsConcurrent scrapes urls with at most MaxConcurrent fetches in
// flight. results[i] always belongs to urls[i]; progress events follow
// completion order and carry the running count of completed URLs.
// Requests to the same host are spaced by the configured delay.
func (s *Scraper) ScrapeURLsConcurrent(ctx context.Context, urls []string) []models.ScrapeResult {
	s.beginBatch()
	defer s.endBatch()

	results := make([]models.ScrapeResult, len(urls))
	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	hosts := newHostLimiter(s.cfg.Delay.Std())

	var (
		wg        sync.WaitGroup
		progMu    sync.Mutex
		completed int
	)
	report := func(u string) {
		progMu.Lock()
		defer progMu.Unlock()
		completed++
		s.progress.PublishContext(ctx, progress.ScrapeEvent{Current: completed, Total: len(urls), URL: u})
	}

	for i, rawURL := range urls {
		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()
			defer report(target)
			defer func() {
				if r := recover(); r != nil {
					err := models.NewError(models.ErrCodeInternal, fmt.Sprintf("unexpected failure: %v", r), nil)
					results[idx] = models.NewScrapeFailure(target, err, 0)
				}
			}()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = canceledResult(target, ctx.Err())
				return
			}
			defer func() { <-sem }()

			if err := hosts.wait(ctx, target); err != nil {
				results[idx] = canceledResult(target, err)
				return
			}
			results[idx] = s.ScrapeURL(ctx, target)
		}(i, rawURL)
	}
	wg.Wait()

	s.logSummary("concurrent", results)
	return results
}

func (s *Scraper) logSummary(mode string, results []models.ScrapeResult) {
	s.logger.Info("batch finished",
		"mode", mode,
		"succeeded", models.CountSucceeded(results),
		"total", len(results),
	)
}

// fetch retrieves the rendered page according to the fetch mode.
func (s *Scraper) fetch(ctx context.Context, rawURL string) (*fetched, error) {
	switch s.cfg.FetchMode {
	case config.FetchHTTP:
		return s.fetchHTTP(ctx, rawURL, false)
	case config.FetchAuto:
		host := hostOf(rawURL)
		if s.domains.Get(host) == config.FetchBrowser {
			return s.fetchBrowser(ctx, rawURL)
		}
		page, err := s.fetchHTTP(ctx, rawURL, true)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, categorizeError(ctx.Err(), models.ErrCodeCanceled, "scrape canceled")
		}
		s.logger.Debug("http fast path insufficient, using browser", "url", rawURL, "reason", err)
		s.domains.Set(host, config.FetchBrowser)
		return s.fetchBrowser(ctx, rawURL)
	default:
		return s.fetchBrowser(ctx, rawURL)
	}
}

// fetchBrowser renders rawURL in a fresh browser context of the shared
// session:
//
//  1. navigate and wait for DOM content, bounded by the page timeout
//  2. best-effort network-idle wait, bounded by NetworkIdleTimeout
//  3. read the title and the rendered HTML
func (s *Scraper) fetchBrowser(ctx context.Context, rawURL string) (*fetched, error) {
	sess, err := s.openSession(ctx)
	if err != nil {
		return nil, err
	}

	bctx, err := sess.NewContext(ctx)
	if err != nil {
		return nil, categorizeError(err, models.ErrCodeBrowserCrash, "failed to open browser context")
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			s.logger.Debug("closing browser context failed", "url", rawURL, "error", err)
		}
	}()

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return nil, categorizeError(err, models.ErrCodeBrowserCrash, "failed to open page")
	}

	if err := page.Goto(ctx, rawURL, s.cfg.Timeout.Std()); err != nil {
		return nil, categorizeError(err, models.ErrCodeNavigation, "navigation to target URL failed")
	}

	if s.cfg.WaitNetworkIdle {
		if err := page.WaitForLoadState(ctx, LoadStateNetworkIdle, s.cfg.NetworkIdleTimeout.Std()); err != nil {
			if ctx.Err() != nil {
				return nil, categorizeError(ctx.Err(), models.ErrCodeCanceled, "scrape canceled")
			}
			s.logger.Debug("network idle wait timed out, using current DOM", "url", rawURL, "error", err)
		}
	}

	html, err := page.Content(ctx)
	if err != nil {
		return nil, categorizeError(err, models.ErrCodeExtraction, "failed to read page HTML")
	}

	title, err := page.Title(ctx)
	if err != nil {
		s.logger.Debug("reading page title failed", "url", rawURL, "error", err)
	}
	if title == "" {
		title = extractTitle([]byte(html))
	}
	return &fetched{html: html, title: title, method: config.FetchBrowser}, nil
}

// fetchHTTP fetches rawURL without JavaScript. With checkShell set, pages
// that look like client-rendered shells are rejected.
func (s *Scraper) fetchHTTP(ctx context.Context, rawURL string, checkShell bool) (*fetched, error) {
	body, err := s.fetcher.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if checkShell && needsBrowser(body) {
		return nil, errNeedsBrowser
	}
	return &fetched{html: string(body), title: extractTitle(body), method: config.FetchHTTP}, nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.NewError(models.ErrCodeInvalidInput, "malformed URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.NewError(models.ErrCodeInvalidInput, fmt.Sprintf("unsupported URL scheme %q", u.Scheme), nil)
	}
	if u.Host == "" {
		return models.NewError(models.ErrCodeInvalidInput, "URL has no host", nil)
	}
	return nil
}

func canceledResult(rawURL string, err error) models.ScrapeResult {
	return models.NewScrapeFailure(rawURL, models.NewError(models.ErrCodeCanceled, "scrape canceled", err), 0)
}

func titleOrDefault(title string) string {
	if title == "" {
		return "Untitled"
	}
	return title
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Hostname()
	}
	return rawURL
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// hostLimiter spaces requests to the same host by a fixed interval.
type hostLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostLimiter(interval time.Duration) *hostLimiter {
	return &hostLimiter{interval: interval, limiters: make(map[string]*rate.Limiter)}
}

func (h *hostLimiter) wait(ctx context.Context, rawURL string) error {
	if h.interval <= 0 {
		return ctx.Err()
	}
	host := hostOf(rawURL)

	h.mu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(h.interval), 1)
		h.limiters[host] = lim
	}
	h.mu.Unlock()

	return lim.Wait(ctx)
}
