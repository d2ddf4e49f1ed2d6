package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Browser   BrowserConfig   `toml:"browser"`
	Scraper   ScraperConfig   `toml:"scraper"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Budget    BudgetConfig    `toml:"budget"`
	Inference InferenceConfig `toml:"inference"`
	Model     ModelConfig     `toml:"model"`
	Output    OutputConfig    `toml:"output"`
	History   HistoryConfig   `toml:"history"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Cache     CacheConfig     `toml:"cache"`
	Log       LogConfig       `toml:"log"`
	Webhook   WebhookConfig   `toml:"webhook"`
}

// Duration is a time.Duration that reads "30s"-style strings from TOML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `toml:"host"` // default: "127.0.0.1"
	Port int    `toml:"port"` // default: 8080
	Mode string `toml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Chromium process.
type BrowserConfig struct {
	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `toml:"no_sandbox"`

	// Bin overrides the Chromium binary path.
	Bin string `toml:"bin"`

	// Proxy is an optional proxy URL for all browser traffic.
	Proxy string `toml:"proxy"`
}

// Extract modes.
const (
	ExtractSelectors   = "selectors"
	ExtractReadability = "readability"
	ExtractPruning     = "pruning"
)

// Fetch modes.
const (
	FetchBrowser = "browser"
	FetchAuto    = "auto"
	FetchHTTP    = "http"
)

// ScraperConfig configures one scraping engine. It is treated as immutable
// once the engine is built.
type ScraperConfig struct {
	Headless bool `toml:"headless"` // default: true

	// Timeout bounds navigation of a single page.
	Timeout Duration `toml:"timeout"` // default: 30s

	// WaitNetworkIdle enables the secondary, best-effort network-idle wait.
	WaitNetworkIdle    bool     `toml:"wait_network_idle"`    // default: true
	NetworkIdleTimeout Duration `toml:"network_idle_timeout"` // default: 10s

	// Markdown cleaning options.
	RemoveImages   bool `toml:"remove_images"`   // default: true
	RemoveLinks    bool `toml:"remove_links"`    // default: false
	IgnoreEmphasis bool `toml:"ignore_emphasis"` // default: false
	BodyWidth      int  `toml:"body_width"`      // 0 disables wrapping

	// Delay separates consecutive fetches in sequential mode and spaces
	// requests to the same host in concurrent mode.
	Delay Duration `toml:"delay"` // default: 1s

	MaxConcurrent int `toml:"max_concurrent"` // default: 3

	ExtractMode      string `toml:"extract_mode"`       // default: "selectors"
	MinContentLength int    `toml:"min_content_length"` // default: 500

	FetchMode   string   `toml:"fetch_mode"`   // default: "browser"
	HTTPTimeout Duration `toml:"http_timeout"` // default: 10s

	UserAgent string `toml:"user_agent"`
	Stealth   bool   `toml:"stealth"`

	// Citations rewrites inline links as numbered references.
	Citations bool `toml:"citations"`

	// BlockedResources lists resource types the browser does not load.
	BlockedResources []string `toml:"blocked_resources"`

	// ExcludeSelectors are removed from every page before extraction.
	// IncludeSelectors, when one matches, restrict the page to the
	// matching elements.
	ExcludeSelectors []string `toml:"exclude_selectors"`
	IncludeSelectors []string `toml:"include_selectors"`
}

// AnalysisConfig holds model and generation parameters.
type AnalysisConfig struct {
	ContextSize   int     `toml:"context_size"`   // default: 4096
	Threads       int     `toml:"threads"`        // default: 4
	GPULayers     int     `toml:"gpu_layers"`     // -1 offloads every layer
	MaxTokens     int     `toml:"max_tokens"`     // default: 2048
	Temperature   float64 `toml:"temperature"`    // default: 0.7
	TopP          float64 `toml:"top_p"`          // default: 0.9
	TopK          int     `toml:"top_k"`          // default: 40
	RepeatPenalty float64 `toml:"repeat_penalty"` // default: 1.1

	// ReportLanguage is "auto" (detect from sources), a language name
	// such as "Spanish", or empty for no language instruction.
	ReportLanguage string `toml:"report_language"`
}

// BudgetConfig holds the prompt budget constants.
type BudgetConfig struct {
	// SafetyMargin is reserved for prompt scaffolding.
	SafetyMargin int `toml:"safety_margin"` // default: 200

	// MinInput is the input window below which the budget is rebalanced.
	MinInput int `toml:"min_input"` // default: 1000

	// TargetInput is the input window forced by a rebalance.
	TargetInput int `toml:"target_input"` // default: 2500

	// OutputReserve is the smallest output window a rebalance leaves.
	OutputReserve int `toml:"output_reserve"` // default: 500

	CharsPerToken  int `toml:"chars_per_token"`  // default: 3
	PerSourceChars int `toml:"per_source_chars"` // default: 3000
}

// InferenceConfig locates the llama.cpp server used for inference.
type InferenceConfig struct {
	// ServerBin is the llama-server binary. When empty the backend attaches
	// to BaseURL instead of spawning a process.
	ServerBin string `toml:"server_bin"`

	BaseURL        string   `toml:"base_url"`        // default: "http://127.0.0.1:8081"
	Port           int      `toml:"port"`            // default: 8081
	StartupTimeout Duration `toml:"startup_timeout"` // default: 2m
	RequestTimeout Duration `toml:"request_timeout"` // default: 10m
}

// ModelConfig describes the model weights and where they live.
type ModelConfig struct {
	Dir     string `toml:"dir"`
	Name    string `toml:"name"`
	Repo    string `toml:"repo"`
	File    string `toml:"file"`
	BaseURL string `toml:"base_url"` // default: "https://huggingface.co"

	// MinSizeBytes is the smallest file accepted as complete weights.
	MinSizeBytes int64 `toml:"min_size_bytes"`

	// AutoDownload fetches missing weights before a research run.
	AutoDownload bool `toml:"auto_download"`
}

// OutputConfig controls files written by a run.
type OutputConfig struct {
	Dir       string `toml:"dir"`        // default: "./prisma-output"
	SavePages bool   `toml:"save_pages"` // default: true
	Manifest  bool   `toml:"manifest"`   // default: true

	// KeepDays removes output files older than this many days at startup.
	// 0 keeps everything.
	KeepDays int `toml:"keep_days"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"` // default: true
	Path    string `toml:"path"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `toml:"enabled"` // default: false
	APIKeys []string `toml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `toml:"requests_per_second"` // default: 5

	// Burst is the maximum burst size per API key.
	Burst int `toml:"burst"` // default: 10
}

// CacheConfig controls the scrape result cache.
type CacheConfig struct {
	MaxEntries int      `toml:"max_entries"` // default: 1000; 0 disables
	TTL        Duration `toml:"ttl"`         // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `toml:"level"`  // default: "info"
	Format string `toml:"format"` // "json", "text", or empty for terminal detection
}

// WebhookConfig controls job completion callbacks.
type WebhookConfig struct {
	// Secret signs payloads with HMAC-SHA256. Empty disables signing.
	Secret     string   `toml:"secret"`
	Timeout    Duration `toml:"timeout"`     // default: 10s
	MaxRetries int      `toml:"max_retries"` // default: 3
}
