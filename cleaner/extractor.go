package cleaner

import (
	"log/slog"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/models"
)

// Extractor turns a rendered page into normalized Markdown:
//
//	Stage 0 (filter):   drop excluded selectors, keep included ones
//	Stage 1 (isolate):  pick the main-content fragment (selectors, readability or pruning)
//	Stage 2 (convert):  apply cleaning options, convert the fragment to Markdown
//	Stage 3 (normalize): collapse blank lines, prefix the metadata header
//
// The converter and compiled selectors are built once; an Extractor is safe
// for concurrent use.
type Extractor struct {
	cfg        config.ScraperConfig
	conv       *converter.Converter
	candidates []candidate
	logger     *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for extraction fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor builds an Extractor from the scraper's cleaning options.
func NewExtractor(cfg config.ScraperConfig, opts ...Option) *Extractor {
	e := &Extractor{
		cfg:        cfg,
		conv:       newMarkdownConverter(),
		candidates: mainContentCandidates,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs the full pipeline over rawHTML and returns the page Markdown
// with its metadata header.
func (e *Extractor) Extract(rawHTML, title, sourceURL string, at time.Time) (string, error) {
	rawHTML = ApplySelectors(rawHTML, e.cfg.IncludeSelectors, e.cfg.ExcludeSelectors)
	fragment := e.MainContent(rawHTML, sourceURL)

	md, err := e.Convert(fragment, sourceURL)
	if err != nil {
		return "", models.NewError(models.ErrCodeExtraction, "markdown conversion failed", err)
	}
	return Normalize(md, title, sourceURL, at), nil
}

// MainContent returns the HTML fragment holding the page's main content
// according to the configured extract mode. Readability and pruning fall
// back to the selector chain when they find nothing usable.
func (e *Extractor) MainContent(rawHTML, sourceURL string) string {
	switch e.cfg.ExtractMode {
	case config.ExtractReadability:
		if content, ok := e.readable(rawHTML, sourceURL); ok {
			return content
		}
	case config.ExtractPruning:
		if content, ok := PruneContent(rawHTML); ok {
			return content
		}
		e.logger.Debug("pruning: no block scored, using selector chain", "url", sourceURL)
	}
	return e.SelectMainContent(rawHTML)
}
