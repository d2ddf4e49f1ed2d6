package models

import (
	"time"
	"unicode/utf8"
)

// ScrapeResult is the outcome of one scrape attempt for one requested URL.
// It is created once by the scraper and never modified afterwards.
type ScrapeResult struct {
	// URL is the requested URL, present even on failure.
	URL string `json:"url"`

	Success bool `json:"success"`

	// Title is the page title. Empty on failure.
	Title string `json:"title"`

	// Markdown is the converted page content with its metadata header.
	// Empty on failure.
	Markdown string `json:"markdown"`

	// Error is a human-readable failure reason. Empty on success.
	Error string `json:"error,omitempty"`

	// ErrorCode classifies Error (see the ErrCode constants).
	ErrorCode string `json:"error_code,omitempty"`

	// ContentLength is the length of Markdown in characters.
	ContentLength int `json:"content_length"`

	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Timestamp      time.Time `json:"timestamp"`

	// FetchMethod records how the page was fetched: "browser" or "http".
	FetchMethod string `json:"fetch_method,omitempty"`
}

// NewScrapeSuccess builds a successful ScrapeResult.
func NewScrapeSuccess(url, title, markdown string, elapsed time.Duration) ScrapeResult {
	return ScrapeResult{
		URL:            url,
		Success:        true,
		Title:          title,
		Markdown:       markdown,
		ContentLength:  utf8.RuneCountInString(markdown),
		ElapsedSeconds: elapsed.Seconds(),
		Timestamp:      time.Now(),
	}
}

// NewScrapeFailure builds a failed ScrapeResult from err.
func NewScrapeFailure(url string, err error, elapsed time.Duration) ScrapeResult {
	return ScrapeResult{
		URL:            url,
		Success:        false,
		Error:          Describe(err),
		ErrorCode:      CodeOf(err),
		ElapsedSeconds: elapsed.Seconds(),
		Timestamp:      time.Now(),
	}
}

// AnalysisResult is the outcome of one synthesis call.
type AnalysisResult struct {
	Success bool `json:"success"`

	// Summary is the generated Markdown report. Empty on failure.
	Summary string `json:"summary"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// TokensUsed is the total token count reported by the model, 0 when
	// unavailable.
	TokensUsed int `json:"tokens_used"`
}

// NewAnalysisFailure builds a failed AnalysisResult with the given code.
func NewAnalysisFailure(code, message string) AnalysisResult {
	return AnalysisResult{
		Success:   false,
		Error:     Truncate(message, MaxErrorLength),
		ErrorCode: code,
	}
}

// CountSucceeded returns how many results succeeded.
func CountSucceeded(results []ScrapeResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}
