package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/models"
)

// RodLauncher launches Chromium through go-rod.
type RodLauncher struct {
	browser config.BrowserConfig
	scraper config.ScraperConfig
	logger  *slog.Logger
}

// NewRodLauncher creates a launcher for the given browser and page settings.
func NewRodLauncher(browser config.BrowserConfig, scraper config.ScraperConfig, logger *slog.Logger) *RodLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodLauncher{browser: browser, scraper: scraper, logger: logger}
}

// Launch starts a Chromium process and connects to it.
func (l *RodLauncher) Launch(ctx context.Context, headless bool) (Session, error) {
	lch := launcher.New().
		Headless(headless).
		NoSandbox(l.browser.NoSandbox)
	if l.browser.Bin != "" {
		lch = lch.Bin(l.browser.Bin)
	}
	if l.browser.Proxy != "" {
		lch = lch.Proxy(l.browser.Proxy)
	}
	lch.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	lch.Delete(flags.Flag("enable-automation"))
	lch.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	lch.Set(flags.Flag("disable-background-timer-throttling"))
	lch.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	lch.Set(flags.Flag("disable-renderer-backgrounding"))
	lch.Set(flags.Flag("disable-dev-shm-usage"))
	lch.Set(flags.Flag("disable-extensions"))
	lch.Set(flags.Flag("no-first-run"))

	controlURL, err := lch.Launch()
	if err != nil {
		return nil, models.NewError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		lch.Kill()
		return nil, models.NewError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	l.logger.Debug("browser launched", "controlURL", controlURL)

	return &rodSession{browser: browser, launcher: lch, cfg: l.scraper, logger: l.logger}, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.ScraperConfig
	logger   *slog.Logger
}

// NewContext opens an incognito browser context.
func (s *rodSession) NewContext(ctx context.Context) (BrowserContext, error) {
	inc, err := s.browser.Incognito()
	if err != nil {
		return nil, err
	}
	return &rodContext{browser: inc, cfg: s.cfg, logger: s.logger}, nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}

type rodContext struct {
	browser *rod.Browser
	cfg     config.ScraperConfig
	logger  *slog.Logger

	mu    sync.Mutex
	pages []*rodPage
}

// NewPage opens a tab with the configured user agent, stealth scripts and
// resource blocking installed before any navigation.
func (c *rodContext) NewPage(ctx context.Context) (Page, error) {
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}

	if c.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.cfg.UserAgent}); err != nil {
			c.logger.Debug("setting user agent failed", "error", err)
		}
	}
	if c.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			c.logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &rodPage{
		page:   page.Context(pctx),
		cancel: cancel,
		router: blockResources(page, c.cfg.BlockedResources),
	}

	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()
	return p, nil
}

// Close stops the pages' interceptors and disposes the incognito context,
// which closes its pages.
func (c *rodContext) Close() error {
	c.mu.Lock()
	pages := c.pages
	c.pages = nil
	c.mu.Unlock()

	for _, p := range pages {
		p.release()
	}
	return c.browser.Close()
}

type rodPage struct {
	page   *rod.Page
	cancel context.CancelFunc
	router *rod.HijackRouter

	// idle is armed before navigation so early network activity counts.
	idle chan struct{}
}

func (p *rodPage) release() {
	if p.router != nil {
		_ = p.router.Stop()
	}
	p.cancel()
}

// Goto navigates and waits until the document has left the "loading"
// state, all within timeout.
func (p *rodPage) Goto(ctx context.Context, target string, timeout time.Duration) error {
	if u, err := url.Parse(target); err == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{
				"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
			},
		}.Call(p.page)
	}

	waitIdle := p.page.WaitNavigation(proto.PageLifecycleEventNameNetworkIdle)
	p.idle = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		waitIdle()
	}(p.idle)

	nav := p.page.Context(ctx).Timeout(timeout)
	if err := nav.Navigate(target); err != nil {
		return navigationError(err)
	}
	if err := nav.Wait(rod.Eval(`() => document.readyState !== "loading"`)); err != nil {
		return navigationError(err)
	}
	return nil
}

func (p *rodPage) WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error {
	page := p.page.Context(ctx).Timeout(timeout)
	switch state {
	case LoadStateNetworkIdle:
		if p.idle == nil {
			return page.WaitDOMStable(500*time.Millisecond, 0)
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-p.idle:
			return nil
		case <-timer.C:
			return context.DeadlineExceeded
		case <-ctx.Done():
			return ctx.Err()
		}
	case LoadStateLoad:
		return page.WaitLoad()
	default:
		return page.Wait(rod.Eval(`() => document.readyState !== "loading"`))
	}
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Value.Str()), nil
}

func (p *rodPage) Content(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// navigationError classifies Chromium "net::ERR_*" reasons as connection
// errors.
func navigationError(err error) error {
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) && strings.HasPrefix(navErr.Reason, netErrorPrefix) {
		return connectionError(navErr.Reason, nil)
	}
	return err
}
