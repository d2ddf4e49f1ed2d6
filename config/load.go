package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName is the project-local config file picked up when no path
// is given.
const DefaultFileName = "prisma.toml"

// Load builds the configuration: defaults, then the TOML file, then PRISMA_*
// environment overrides. It returns the config and the file path that was
// read, or "" when no file was used.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, "", err
	}
	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", fmt.Errorf("parse config %s: %w", resolved, err)
		}
	} else {
		resolved = ""
	}

	applyEnv(&cfg)

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func resolvePath(path string) (string, bool, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv("PRISMA_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultFileName
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return "", false, fmt.Errorf("config file %s not found", expanded)
			}
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

func applyEnv(c *Config) {
	c.Server.Host = envOr("PRISMA_HOST", c.Server.Host)
	c.Server.Port = envIntOr("PRISMA_PORT", c.Server.Port)
	c.Server.Mode = envOr("PRISMA_MODE", c.Server.Mode)

	c.Browser.NoSandbox = envBoolOr("PRISMA_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.Bin = envOr("PRISMA_BROWSER_BIN", c.Browser.Bin)
	c.Browser.Proxy = envOr("PRISMA_PROXY", c.Browser.Proxy)

	s := &c.Scraper
	s.Headless = envBoolOr("PRISMA_HEADLESS", s.Headless)
	s.Timeout = envDurationOr("PRISMA_TIMEOUT", s.Timeout)
	s.WaitNetworkIdle = envBoolOr("PRISMA_WAIT_NETWORK_IDLE", s.WaitNetworkIdle)
	s.Delay = envDurationOr("PRISMA_DELAY", s.Delay)
	s.MaxConcurrent = envIntOr("PRISMA_MAX_CONCURRENT", s.MaxConcurrent)
	s.ExtractMode = envOr("PRISMA_EXTRACT_MODE", s.ExtractMode)
	s.FetchMode = envOr("PRISMA_FETCH_MODE", s.FetchMode)
	s.UserAgent = envOr("PRISMA_USER_AGENT", s.UserAgent)
	s.Stealth = envBoolOr("PRISMA_STEALTH", s.Stealth)
	s.BlockedResources = envSliceOr("PRISMA_BLOCKED_RESOURCES", s.BlockedResources)
	s.ExcludeSelectors = envSliceOr("PRISMA_EXCLUDE_SELECTORS", s.ExcludeSelectors)

	a := &c.Analysis
	a.ContextSize = envIntOr("PRISMA_CONTEXT_SIZE", a.ContextSize)
	a.Threads = envIntOr("PRISMA_THREADS", a.Threads)
	a.GPULayers = envIntOr("PRISMA_GPU_LAYERS", a.GPULayers)
	a.MaxTokens = envIntOr("PRISMA_MAX_TOKENS", a.MaxTokens)
	a.Temperature = envFloatOr("PRISMA_TEMPERATURE", a.Temperature)
	a.ReportLanguage = envOr("PRISMA_REPORT_LANGUAGE", a.ReportLanguage)

	c.Inference.ServerBin = envOr("PRISMA_LLAMA_SERVER", c.Inference.ServerBin)
	c.Inference.BaseURL = envOr("PRISMA_LLAMA_URL", c.Inference.BaseURL)

	c.Model.Dir = envOr("PRISMA_MODEL_DIR", c.Model.Dir)
	c.Model.AutoDownload = envBoolOr("PRISMA_AUTO_DOWNLOAD", c.Model.AutoDownload)

	c.Output.Dir = envOr("PRISMA_OUTPUT_DIR", c.Output.Dir)
	c.History.Enabled = envBoolOr("PRISMA_HISTORY", c.History.Enabled)
	c.History.Path = envOr("PRISMA_HISTORY_PATH", c.History.Path)

	c.Auth.Enabled = envBoolOr("PRISMA_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("PRISMA_API_KEYS", c.Auth.APIKeys)
	c.RateLimit.RequestsPerSecond = envFloatOr("PRISMA_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("PRISMA_RATE_BURST", c.RateLimit.Burst)
	c.Cache.MaxEntries = envIntOr("PRISMA_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)

	c.Log.Level = envOr("PRISMA_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("PRISMA_LOG_FORMAT", c.Log.Format)

	c.Webhook.Secret = envOr("PRISMA_WEBHOOK_SECRET", c.Webhook.Secret)
}

func (c *Config) normalize() error {
	var err error
	if c.Model.Dir, err = expandPath(c.Model.Dir); err != nil {
		return fmt.Errorf("model.dir: %w", err)
	}
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Output.Dir, "history.db")
	}
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.Scraper.ExtractMode = strings.ToLower(strings.TrimSpace(c.Scraper.ExtractMode))
	c.Scraper.FetchMode = strings.ToLower(strings.TrimSpace(c.Scraper.FetchMode))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Inference.BaseURL = strings.TrimRight(c.Inference.BaseURL, "/")
	c.Model.BaseURL = strings.TrimRight(c.Model.BaseURL, "/")
	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
