package models

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success is true when at least one URL was scraped.
	Success bool `json:"success"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`

	// Results holds one record per requested URL, in request order.
	Results []ScrapeResult `json:"results"`

	// CacheHits counts results served from the cache.
	CacheHits int `json:"cache_hits"`

	// Error is populated only when the request itself failed.
	Error *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Version string `json:"version"`

	Browser BrowserStats `json:"browser"`
	Model   ModelStats   `json:"model"`
}

// BrowserStats reports the scraping engine's session state.
type BrowserStats struct {
	State         string `json:"state"` // "closed" or "open"
	MaxConcurrent int    `json:"max_concurrent"`
}

// ModelStats reports the synthesizer's model state.
type ModelStats struct {
	State     string `json:"state"` // "unloaded", "loading" or "loaded"
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
}

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
