package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Mode: "release",
		},
		Scraper:   DefaultScraper(),
		Analysis:  DefaultAnalysis(),
		Budget:    DefaultBudget(),
		Inference: DefaultInference(),
		Model:     DefaultModel(),
		Output: OutputConfig{
			Dir:       "./prisma-output",
			SavePages: true,
			Manifest:  true,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
			TTL:        Duration(time.Hour),
		},
		Log: LogConfig{
			Level: "info",
		},
		Webhook: WebhookConfig{
			Timeout:    Duration(10 * time.Second),
			MaxRetries: 3,
		},
	}
}

// DefaultScraper returns the default scraping engine configuration.
func DefaultScraper() ScraperConfig {
	return ScraperConfig{
		Headless:           true,
		Timeout:            Duration(30 * time.Second),
		WaitNetworkIdle:    true,
		NetworkIdleTimeout: Duration(10 * time.Second),
		RemoveImages:       true,
		Delay:              Duration(time.Second),
		MaxConcurrent:      3,
		ExtractMode:        ExtractSelectors,
		MinContentLength:   500,
		FetchMode:          FetchBrowser,
		HTTPTimeout:        Duration(10 * time.Second),
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		BlockedResources:   []string{"Image", "Font", "Media"},
	}
}

// DefaultAnalysis returns the default generation parameters.
func DefaultAnalysis() AnalysisConfig {
	return AnalysisConfig{
		ContextSize:    4096,
		Threads:        4,
		GPULayers:      -1,
		MaxTokens:      2048,
		Temperature:    0.7,
		TopP:           0.9,
		TopK:           40,
		RepeatPenalty:  1.1,
		ReportLanguage: "auto",
	}
}

// DefaultBudget returns the default prompt budget constants.
func DefaultBudget() BudgetConfig {
	return BudgetConfig{
		SafetyMargin:   200,
		MinInput:       1000,
		TargetInput:    2500,
		OutputReserve:  500,
		CharsPerToken:  3,
		PerSourceChars: 3000,
	}
}

// DefaultInference returns the default llama.cpp server settings.
func DefaultInference() InferenceConfig {
	return InferenceConfig{
		BaseURL:        "http://127.0.0.1:8081",
		Port:           8081,
		StartupTimeout: Duration(2 * time.Minute),
		RequestTimeout: Duration(10 * time.Minute),
	}
}

// DefaultModel returns the default model description: Qwen2.5 3B Instruct,
// Q4_K_M quantization.
func DefaultModel() ModelConfig {
	return ModelConfig{
		Dir:          defaultModelDir(),
		Name:         "Qwen2.5-3B-Instruct",
		Repo:         "Qwen/Qwen2.5-3B-Instruct-GGUF",
		File:         "qwen2.5-3b-instruct-q4_k_m.gguf",
		BaseURL:      "https://huggingface.co",
		MinSizeBytes: 1 << 30,
	}
}

func defaultModelDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "prisma", "models")
	}
	return filepath.Join(".", "models")
}
