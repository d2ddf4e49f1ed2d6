package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Scraper.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.Scraper.MaxConcurrent)
	}
	if cfg.Scraper.NetworkIdleTimeout.Std() != 10*time.Second {
		t.Errorf("NetworkIdleTimeout = %s, want 10s", cfg.Scraper.NetworkIdleTimeout)
	}
	if cfg.Budget.TargetInput != 2500 || cfg.Budget.MinInput != 1000 || cfg.Budget.SafetyMargin != 200 {
		t.Errorf("unexpected budget defaults: %+v", cfg.Budget)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prisma.toml")
	content := `
[scraper]
timeout = "45s"
max_concurrent = 5
extract_mode = "Readability"

[analysis]
context_size = 8192
max_tokens = 1024

[output]
dir = "` + filepath.ToSlash(filepath.Join(dir, "out")) + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PRISMA_MAX_CONCURRENT", "7")
	t.Setenv("PRISMA_API_KEYS", "a, b,,c")

	cfg, used, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != path {
		t.Errorf("used path = %q, want %q", used, path)
	}
	if got := cfg.Scraper.Timeout.Std(); got != 45*time.Second {
		t.Errorf("Timeout = %s, want 45s", got)
	}
	if cfg.Scraper.MaxConcurrent != 7 {
		t.Errorf("env override lost: MaxConcurrent = %d", cfg.Scraper.MaxConcurrent)
	}
	if cfg.Scraper.ExtractMode != ExtractReadability {
		t.Errorf("ExtractMode = %q, want normalized %q", cfg.Scraper.ExtractMode, ExtractReadability)
	}
	if cfg.Analysis.ContextSize != 8192 || cfg.Analysis.MaxTokens != 1024 {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	if len(cfg.Auth.APIKeys) != 3 {
		t.Errorf("APIKeys = %v, want 3 entries", cfg.Auth.APIKeys)
	}
	if want := filepath.Join(dir, "out", "history.db"); cfg.History.Path != want {
		t.Errorf("History.Path = %q, want %q", cfg.History.Path, want)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown field", "[scraper]\nbogus = 1\n", "parse config"},
		{"bad duration", "[scraper]\ntimeout = \"soon\"\n", "parse config"},
		{"max tokens over context", "[analysis]\ncontext_size = 1024\nmax_tokens = 2048\n", "max_tokens"},
		{"bad fetch mode", "[scraper]\nfetch_mode = \"carrier-pigeon\"\n", "fetch_mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	t.Run("missing explicit file", func(t *testing.T) {
		if _, _, err := Load(filepath.Join(dir, "nope.toml")); err == nil {
			t.Fatal("expected error for missing explicit config file")
		}
	})
}

func TestAnalysisValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AnalysisConfig)
		wantErr bool
	}{
		{"defaults", func(*AnalysisConfig) {}, false},
		{"max tokens equals context", func(a *AnalysisConfig) { a.MaxTokens = a.ContextSize }, true},
		{"zero threads", func(a *AnalysisConfig) { a.Threads = 0 }, true},
		{"top p above one", func(a *AnalysisConfig) { a.TopP = 1.5 }, true},
		{"cpu only", func(a *AnalysisConfig) { a.GPULayers = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DefaultAnalysis()
			tt.mutate(&a)
			if err := a.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBudgetValidate(t *testing.T) {
	b := DefaultBudget()
	if err := b.Validate(4096); err != nil {
		t.Fatalf("default budget: %v", err)
	}
	if err := b.Validate(700); err == nil {
		t.Fatal("context 700 <= margin+reserve should fail")
	}
	b.CharsPerToken = 0
	if err := b.Validate(4096); err == nil {
		t.Fatal("zero chars per token should fail")
	}
}

func TestScraperValidate(t *testing.T) {
	s := DefaultScraper()
	s.Delay = Duration(-time.Second)
	if err := s.Validate(); err == nil {
		t.Fatal("negative delay should fail")
	}
	s = DefaultScraper()
	s.ExtractMode = "magic"
	if err := s.Validate(); err == nil {
		t.Fatal("unknown extract mode should fail")
	}
}
