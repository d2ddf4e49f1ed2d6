// Package pipeline runs a research job end to end: scrape the URLs, keep
// the pages that produced content, persist them, and optionally synthesize
// a report from them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/prisma/models"
	"github.com/use-agent/prisma/output"
	"github.com/use-agent/prisma/progress"
	"github.com/use-agent/prisma/store"
	"github.com/use-agent/prisma/urls"
)

// Scraper fetches pages. *scraper.Scraper implements it.
type Scraper interface {
	ScrapeURLs(ctx context.Context, urls []string) []models.ScrapeResult
	ScrapeURLsConcurrent(ctx context.Context, urls []string) []models.ScrapeResult
}

// Synthesizer writes reports. *analyzer.Analyzer implements it.
type Synthesizer interface {
	IsLoaded() bool
	LoadModel(ctx context.Context, path string) error
	GenerateResearchReport(ctx context.Context, documents []string, topic string) models.AnalysisResult
}

// ModelSource provides model weights. *modelstore.Store implements it.
type ModelSource interface {
	IsAvailable() bool
	ModelPath() string
	Download(ctx context.Context) (string, error)
}

// Request describes one run.
type Request struct {
	// ID names the run. A random one is generated when empty.
	ID         string
	URLs       []string
	Topic      string
	Analyze    bool
	Concurrent bool
}

// Options toggles optional pipeline steps.
type Options struct {
	SavePages    bool // write scrape_*.md files
	Manifest     bool // write run_*.yaml
	AutoDownload bool // fetch missing weights before synthesis
}

// Pipeline wires the scraping, synthesis and persistence components.
// Only the scraper is required.
type Pipeline struct {
	scraper  Scraper
	analyzer Synthesizer
	models   ModelSource
	writer   *output.Writer
	history  *store.Store
	opts     Options
	logger   *slog.Logger
	status   *progress.Bus[progress.Message]
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithSynthesizer enables report generation.
func WithSynthesizer(s Synthesizer) Option {
	return func(p *Pipeline) { p.analyzer = s }
}

// WithModelSource lets the pipeline check for and download weights.
func WithModelSource(m ModelSource) Option {
	return func(p *Pipeline) { p.models = m }
}

// WithWriter persists pages, reports and manifests.
func WithWriter(w *output.Writer) Option {
	return func(p *Pipeline) { p.writer = w }
}

// WithHistory records runs in the history database.
func WithHistory(s *store.Store) Option {
	return func(p *Pipeline) { p.history = s }
}

// WithOptions sets the optional steps.
func WithOptions(o Options) Option {
	return func(p *Pipeline) { p.opts = o }
}

// New creates a Pipeline.
func New(s Scraper, opts ...Option) *Pipeline {
	p := &Pipeline{
		scraper: s,
		opts:    Options{SavePages: true, Manifest: true},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.status = progress.NewBus[progress.Message](p.logger)
	return p
}

// OnStatus subscribes fn to phase messages.
func (p *Pipeline) OnStatus(fn func(progress.Message)) {
	p.status.Subscribe(fn)
}

// Documents returns the markdown of every successful result that has
// content, in input order. Failed and empty results never reach the
// synthesizer.
func Documents(results []models.ScrapeResult) []string {
	var docs []string
	for _, r := range results {
		if r.Success && strings.TrimSpace(r.Markdown) != "" {
			docs = append(docs, r.Markdown)
		}
	}
	return docs
}

// Run executes req. The returned summary is non-nil whenever scraping
// started, including when ctx is canceled midway; the error is then
// CANCELED. A report failure is recorded in summary.Analysis, not
// returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*models.RunSummary, error) {
	start := time.Now()
	valid, skipped := p.prepare(req.URLs)
	if len(valid) == 0 {
		return nil, models.NewError(models.ErrCodeInvalidInput, "no scrapeable URLs", nil)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	run := &models.RunSummary{
		ID:        id,
		Topic:     req.Topic,
		StartedAt: start,
		Total:     len(valid),
		Skipped:   skipped,
	}
	log := p.logger.With("run_id", run.ID)
	log.Info("run started", "urls", len(valid), "skipped", len(skipped), "analyze", req.Analyze)

	p.notify("Phase 1: scraping")
	if req.Concurrent {
		run.Results = p.scraper.ScrapeURLsConcurrent(ctx, valid)
	} else {
		run.Results = p.scraper.ScrapeURLs(ctx, valid)
	}
	run.Succeeded = models.CountSucceeded(run.Results)
	p.notify(progress.Message(fmt.Sprintf("%d/%d pages scraped", run.Succeeded, run.Total)))
	p.savePages(run, log)

	var runErr error
	switch {
	case ctx.Err() != nil:
		runErr = models.NewError(models.ErrCodeCanceled, "run canceled", ctx.Err())
	case req.Analyze:
		p.synthesize(ctx, run, log)
		if ctx.Err() != nil {
			runErr = models.NewError(models.ErrCodeCanceled, "run canceled", ctx.Err())
		}
	}

	run.Duration = time.Since(start).Seconds()
	p.record(context.WithoutCancel(ctx), run, log)

	log.Info("run finished", "succeeded", run.Succeeded, "total", run.Total,
		"report", run.ReportPath != "", "elapsed", time.Since(start).Round(time.Millisecond))
	p.notify("Done")
	return run, runErr
}

// prepare dedupes the input and drops URLs that cannot be scraped.
func (p *Pipeline) prepare(list []string) (valid, skipped []string) {
	for _, u := range urls.Dedupe(list) {
		if ok, reason := urls.IsScrapeable(u); ok {
			valid = append(valid, u)
		} else {
			skipped = append(skipped, fmt.Sprintf("%s (%s)", u, reason))
			p.logger.Warn("skipping URL", "url", u, "reason", reason)
		}
	}
	return valid, skipped
}

func (p *Pipeline) savePages(run *models.RunSummary, log *slog.Logger) {
	if p.writer == nil || !p.opts.SavePages {
		return
	}
	for _, r := range run.Results {
		if !r.Success {
			continue
		}
		path, err := p.writer.SaveScrape(r)
		if err != nil {
			log.Error("save page failed", "url", r.URL, "error", err)
			continue
		}
		run.Files = append(run.Files, path)
	}
}

// synthesize generates the report when there is content to work with.
func (p *Pipeline) synthesize(ctx context.Context, run *models.RunSummary, log *slog.Logger) {
	if p.analyzer == nil {
		res := models.NewAnalysisFailure(models.ErrCodeDependencyMissing, "report synthesis is not configured")
		run.Analysis = &res
		return
	}
	docs := Documents(run.Results)
	if len(docs) == 0 {
		log.Warn("no content to analyze")
		return
	}

	p.notify("Phase 2: analysis")
	if err := p.ensureModel(ctx, log); err != nil {
		res := models.NewAnalysisFailure(models.CodeOf(err), models.Describe(err))
		run.Analysis = &res
		return
	}

	topic := run.Topic
	if topic == "" {
		topic = "Web Research"
	}
	res := p.analyzer.GenerateResearchReport(ctx, docs, topic)
	run.Analysis = &res
	if !res.Success {
		log.Error("report generation failed", "code", res.ErrorCode, "error", res.Error)
		return
	}
	if p.writer == nil {
		return
	}
	path, err := p.writer.SaveReport(res.Summary, topic)
	if err != nil {
		log.Error("save report failed", "error", err)
		return
	}
	run.ReportPath = path
	run.Files = append(run.Files, path)
	p.notify(progress.Message("Report generated: " + path))
}

// ensureModel loads the model, downloading the weights first when they are
// missing and downloads are allowed.
func (p *Pipeline) ensureModel(ctx context.Context, log *slog.Logger) error {
	if p.analyzer.IsLoaded() {
		return nil
	}
	path := ""
	if p.models != nil {
		if !p.models.IsAvailable() {
			if !p.opts.AutoDownload {
				return models.NewError(models.ErrCodeWeightsMissing,
					"model weights not found; run `prisma model download` or enable model.auto_download", nil)
			}
			p.notify("Downloading model...")
			if _, err := p.models.Download(ctx); err != nil {
				log.Error("model download failed", "error", err)
				return models.NewError(models.ErrCodeWeightsMissing, "model download failed", err)
			}
		}
		path = p.models.ModelPath()
	}
	return p.analyzer.LoadModel(ctx, path)
}

// record writes history and the manifest. Failures are logged only.
func (p *Pipeline) record(ctx context.Context, run *models.RunSummary, log *slog.Logger) {
	if p.history != nil {
		if err := p.history.RecordRun(ctx, run); err != nil {
			log.Error("record run failed", "error", err)
		} else {
			if err := p.history.RecordScrapes(ctx, run.ID, run.Results); err != nil {
				log.Error("record scrapes failed", "error", err)
			}
			if run.Analysis != nil {
				if err := p.history.RecordReport(ctx, run.ID, *run.Analysis, run.ReportPath); err != nil {
					log.Error("record report failed", "error", err)
				}
			}
		}
	}
	if p.writer != nil && p.opts.Manifest {
		if _, err := p.writer.WriteManifest(run); err != nil {
			log.Error("write manifest failed", "error", err)
		}
	}
}

func (p *Pipeline) notify(msg progress.Message) {
	p.status.Publish(msg)
}
