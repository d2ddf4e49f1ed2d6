package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/prisma/analyzer"
	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/llm"
	"github.com/use-agent/prisma/metrics"
	"github.com/use-agent/prisma/modelstore"
	"github.com/use-agent/prisma/output"
	"github.com/use-agent/prisma/pipeline"
	"github.com/use-agent/prisma/scraper"
	"github.com/use-agent/prisma/store"
)

type commandContext struct {
	configFlag *string
	levelFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     *slog.Logger
}

func newCommandContext(configFlag, levelFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		levelFlag:  levelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.levelFlag != nil && *c.levelFlag != "" {
			cfg.Log.Level = *c.levelFlag
		}
		c.config = cfg
		c.logger = newLogger(cfg.Log, os.Stderr)
		slog.SetDefault(c.logger)
	})
	return c.config, c.configErr
}

// components are the long-lived pieces a command may need. Close releases
// whatever was built.
type components struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	scraper  *scraper.Scraper
	models   *modelstore.Store
	analyzer *analyzer.Analyzer
	writer   *output.Writer
	history  *store.Store
	pipeline *pipeline.Pipeline
}

// buildOptions selects the optional components.
type buildOptions struct {
	analyzer bool
	history  bool
}

func (c *commandContext) build(opts buildOptions) (*components, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.logger
	comp := &components{cfg: cfg, logger: logger, metrics: metrics.New()}

	launcher := scraper.NewRodLauncher(cfg.Browser, cfg.Scraper, logger)
	comp.scraper, err = scraper.New(cfg.Scraper, launcher,
		scraper.WithLogger(logger),
		scraper.WithMetrics(comp.metrics),
		scraper.WithProxy(cfg.Browser.Proxy),
	)
	if err != nil {
		return nil, fmt.Errorf("build scraper: %w", err)
	}

	comp.models = modelstore.New(cfg.Model, modelstore.WithLogger(logger))

	comp.writer, err = output.NewWriter(cfg.Output.Dir, output.WithLogger(logger))
	if err != nil {
		comp.Close()
		return nil, fmt.Errorf("prepare output directory: %w", err)
	}
	if cfg.Output.KeepDays > 0 {
		if n, err := comp.writer.Cleanup(time.Duration(cfg.Output.KeepDays) * 24 * time.Hour); err != nil {
			logger.Warn("output cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("removed old output files", "count", n)
		}
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithWriter(comp.writer),
		pipeline.WithModelSource(comp.models),
		pipeline.WithOptions(pipeline.Options{
			SavePages:    cfg.Output.SavePages,
			Manifest:     cfg.Output.Manifest,
			AutoDownload: cfg.Model.AutoDownload,
		}),
	}

	if opts.analyzer {
		backend := llm.NewServerBackend(cfg.Inference, llm.WithLogger(logger))
		comp.analyzer, err = analyzer.New(cfg.Analysis, cfg.Budget, backend,
			analyzer.WithLogger(logger),
			analyzer.WithMetrics(comp.metrics),
			analyzer.WithLocator(comp.models),
		)
		if err != nil {
			comp.Close()
			return nil, fmt.Errorf("build analyzer: %w", err)
		}
		pipeOpts = append(pipeOpts, pipeline.WithSynthesizer(comp.analyzer))
	}

	if opts.history && cfg.History.Enabled {
		comp.history, err = store.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("run history disabled", "path", cfg.History.Path, "error", err)
		} else {
			pipeOpts = append(pipeOpts, pipeline.WithHistory(comp.history))
		}
	}

	comp.pipeline = pipeline.New(comp.scraper, pipeOpts...)
	return comp, nil
}

func (c *components) Close() {
	if c.scraper != nil {
		if err := c.scraper.Close(); err != nil {
			c.logger.Warn("close scraper", "error", err)
		}
	}
	if c.analyzer != nil {
		if err := c.analyzer.Unload(); err != nil {
			c.logger.Warn("unload model", "error", err)
		}
	}
	if c.history != nil {
		_ = c.history.Close()
	}
}
