package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/use-agent/prisma/cleaner"
	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/metrics"
	"github.com/use-agent/prisma/models"
	"github.com/use-agent/prisma/progress"
)

// SessionState is the lifecycle state of the shared browser session.
type SessionState int

const (
	SessionClosed SessionState = iota
	SessionOpen
)

func (s SessionState) String() string {
	if s == SessionOpen {
		return "open"
	}
	return "closed"
}

// browserMemoryTTL is how long a host stays pinned to the browser after
// the HTTP fast path proved insufficient.
const browserMemoryTTL = 24 * time.Hour

// Scraper is the batch scraping engine. It owns one lazily launched browser
// session shared by every URL of a batch.
type Scraper struct {
	cfg       config.ScraperConfig
	launcher  Launcher
	extractor *cleaner.Extractor
	fetcher   *httpFetcher
	domains   *DomainMemory
	metrics   *metrics.Metrics
	logger    *slog.Logger
	progress  *progress.Bus[progress.ScrapeEvent]

	httpClient *http.Client
	proxy      string

	mu      sync.Mutex
	state   SessionState
	session Session
	batches int // batch calls currently holding the session
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records per-URL outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// WithHTTPClient replaces the Chrome-fingerprint client of the HTTP fetch
// path.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) { s.httpClient = c }
}

// WithProxy routes the HTTP fetch path through proxy.
func WithProxy(proxy string) Option {
	return func(s *Scraper) { s.proxy = proxy }
}

// New validates cfg and builds a Scraper. launcher may be nil only when
// the fetch mode is "http".
func New(cfg config.ScraperConfig, launcher Launcher, opts ...Option) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, models.NewError(models.ErrCodeInvalidInput, "invalid scraper config", err)
	}
	if launcher == nil && cfg.FetchMode != config.FetchHTTP {
		return nil, models.NewError(models.ErrCodeInvalidInput, "a browser launcher is required for fetch mode "+cfg.FetchMode, nil)
	}

	s := &Scraper{
		cfg:      cfg,
		launcher: launcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.progress = progress.NewBus[progress.ScrapeEvent](s.logger)
	s.extractor = cleaner.NewExtractor(cfg, cleaner.WithLogger(s.logger))
	if cfg.FetchMode != config.FetchBrowser {
		s.fetcher = newHTTPFetcher(cfg.UserAgent, cfg.HTTPTimeout.Std(), s.proxy, s.httpClient)
	}
	if cfg.FetchMode == config.FetchAuto {
		s.domains = NewDomainMemory(browserMemoryTTL)
	}
	return s, nil
}

// OnProgress subscribes fn to scraping progress events.
func (s *Scraper) OnProgress(fn func(progress.ScrapeEvent)) {
	s.progress.Subscribe(fn)
}

// Config returns the engine's configuration.
func (s *Scraper) Config() config.ScraperConfig {
	return s.cfg
}

// State reports whether the browser session is open.
func (s *Scraper) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to state to and is the only place the
// session is launched or closed. Callers hold s.mu.
func (s *Scraper) transition(ctx context.Context, to SessionState) error {
	if s.state == to {
		return nil
	}
	switch to {
	case SessionOpen:
		sess, err := s.launcher.Launch(ctx, s.cfg.Headless)
		if err != nil {
			return categorizeError(err, models.ErrCodeBrowserCrash, "failed to launch browser")
		}
		s.session, s.state = sess, SessionOpen
		s.logger.Info("browser session opened", "headless", s.cfg.Headless)
		return nil
	default:
		err := s.session.Close()
		s.session, s.state = nil, SessionClosed
		s.logger.Info("browser session closed")
		return err
	}
}

// openSession returns the shared session, launching it on first use.
func (s *Scraper) openSession(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(ctx, SessionOpen); err != nil {
		return nil, err
	}
	return s.session, nil
}

// beginBatch marks a batch call as using the session.
func (s *Scraper) beginBatch() {
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()
}

// endBatch releases the session once the last running batch finishes.
func (s *Scraper) endBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches--
	if s.batches > 0 {
		return
	}
	if err := s.transition(context.Background(), SessionClosed); err != nil {
		s.logger.Warn("closing browser session failed", "error", err)
	}
}

// Close tears down the browser session and background workers.
func (s *Scraper) Close() error {
	s.mu.Lock()
	err := s.transition(context.Background(), SessionClosed)
	s.mu.Unlock()
	if s.domains != nil {
		s.domains.Stop()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
