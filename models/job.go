package models

import "time"

// Research job statuses.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCanceled   = "canceled"
)

// RunSummary is the outcome of one pipeline run.
type RunSummary struct {
	ID        string    `json:"id" yaml:"id"`
	Topic     string    `json:"topic,omitempty" yaml:"topic,omitempty"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Duration  float64   `json:"duration_seconds" yaml:"duration_seconds"`

	Total     int      `json:"total" yaml:"total"`
	Succeeded int      `json:"succeeded" yaml:"succeeded"`
	Skipped   []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`

	Results []ScrapeResult `json:"results" yaml:"-"`

	// Analysis is nil when synthesis was not requested or had no input.
	Analysis *AnalysisResult `json:"analysis,omitempty" yaml:"-"`

	// Files lists every file the run wrote.
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`

	ReportPath string `json:"report_path,omitempty" yaml:"report_path,omitempty"`
}

// ResearchResponse is the immediate response for POST /api/v1/research.
type ResearchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// ResearchStatusResponse is the response for GET /api/v1/research/:id.
type ResearchStatusResponse struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Topic     string       `json:"topic"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Summary   *RunSummary  `json:"summary,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// ResearchJob tracks an in-progress research operation.
type ResearchJob struct {
	ID         string
	Status     string
	Topic      string
	Total      int
	Completed  int
	Summary    *RunSummary
	Err        *ErrorDetail
	WebhookURL string
	CreatedAt  int64 // unix timestamp
}
