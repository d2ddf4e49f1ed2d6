package models

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URLs is the list of target pages to scrape. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=100"`

	// Concurrent selects bounded-concurrency scraping instead of the
	// sequential, order-preserving progress mode.
	// Default: false.
	Concurrent bool `json:"concurrent,omitempty"`

	// SkipCache bypasses the result cache for this request.
	SkipCache bool `json:"skip_cache,omitempty"`
}

// ResearchRequest is the payload for POST /api/v1/research.
type ResearchRequest struct {
	// URLs is the list of source pages. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=100"`

	// Topic is the research topic used for the report header and prompt.
	Topic string `json:"topic" binding:"required,max=500"`

	// Analyze runs the report synthesizer over the scraped sources.
	// Default: true.
	Analyze *bool `json:"analyze,omitempty"`

	Concurrent bool `json:"concurrent,omitempty"`

	// WebhookURL receives a signed POST when the job finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *ResearchRequest) Defaults() {
	if r.Analyze == nil {
		t := true
		r.Analyze = &t
	}
}
