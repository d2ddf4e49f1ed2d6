package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Scraper.Validate(); err != nil {
		return err
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	if err := c.Budget.Validate(c.Analysis.ContextSize); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return errors.New("auth.enabled requires at least one auth.api_keys entry")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit.requests_per_second and rate_limit.burst must be positive")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache.max_entries must not be negative")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir must be set")
	}
	if c.Model.File == "" || c.Model.Dir == "" {
		return errors.New("model.dir and model.file must be set")
	}
	return nil
}

// Validate rejects scraper settings the engine cannot run with.
func (s ScraperConfig) Validate() error {
	if s.Timeout <= 0 {
		return errors.New("scraper.timeout must be positive")
	}
	if s.NetworkIdleTimeout < 0 {
		return errors.New("scraper.network_idle_timeout must not be negative")
	}
	if s.Delay < 0 {
		return errors.New("scraper.delay must not be negative")
	}
	if s.MaxConcurrent <= 0 {
		return errors.New("scraper.max_concurrent must be positive")
	}
	if s.MinContentLength < 0 {
		return errors.New("scraper.min_content_length must not be negative")
	}
	if s.BodyWidth < 0 {
		return errors.New("scraper.body_width must not be negative")
	}
	switch s.ExtractMode {
	case ExtractSelectors, ExtractReadability, ExtractPruning:
	default:
		return fmt.Errorf("scraper.extract_mode %q must be one of selectors, readability, pruning", s.ExtractMode)
	}
	switch s.FetchMode {
	case FetchBrowser, FetchAuto, FetchHTTP:
	default:
		return fmt.Errorf("scraper.fetch_mode %q must be one of browser, auto, http", s.FetchMode)
	}
	return nil
}

// Validate rejects generation parameters the model cannot honour.
func (a AnalysisConfig) Validate() error {
	if a.ContextSize <= 0 {
		return errors.New("analysis.context_size must be positive")
	}
	if a.MaxTokens <= 0 {
		return errors.New("analysis.max_tokens must be positive")
	}
	if a.MaxTokens >= a.ContextSize {
		return fmt.Errorf("analysis.max_tokens (%d) must be smaller than analysis.context_size (%d)", a.MaxTokens, a.ContextSize)
	}
	if a.Threads <= 0 {
		return errors.New("analysis.threads must be positive")
	}
	if a.Temperature < 0 {
		return errors.New("analysis.temperature must not be negative")
	}
	if a.TopP <= 0 || a.TopP > 1 {
		return errors.New("analysis.top_p must be in (0, 1]")
	}
	if a.TopK < 0 {
		return errors.New("analysis.top_k must not be negative")
	}
	if a.RepeatPenalty <= 0 {
		return errors.New("analysis.repeat_penalty must be positive")
	}
	return nil
}

// Validate rejects budget constants that leave no room for input or output
// in a context window of contextSize tokens.
func (b BudgetConfig) Validate(contextSize int) error {
	if b.SafetyMargin < 0 || b.OutputReserve < 0 || b.MinInput < 0 {
		return errors.New("budget.safety_margin, budget.output_reserve and budget.min_input must not be negative")
	}
	if b.TargetInput <= 0 {
		return errors.New("budget.target_input must be positive")
	}
	if b.CharsPerToken <= 0 {
		return errors.New("budget.chars_per_token must be positive")
	}
	if b.PerSourceChars <= 0 {
		return errors.New("budget.per_source_chars must be positive")
	}
	if contextSize <= b.SafetyMargin+b.OutputReserve {
		return fmt.Errorf("analysis.context_size (%d) must exceed budget.safety_margin + budget.output_reserve (%d)",
			contextSize, b.SafetyMargin+b.OutputReserve)
	}
	return nil
}
