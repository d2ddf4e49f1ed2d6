package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for scraping and synthesis.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	ScrapeRequests *prometheus.CounterVec
	ScrapeErrors   *prometheus.CounterVec
	ScrapeDuration prometheus.Histogram

	AnalysisRequests  *prometheus.CounterVec
	AnalysisTokens    prometheus.Counter
	InferenceDuration prometheus.Histogram
	BudgetRebalanced  prometheus.Counter
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	scrapeRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prisma_scrape_requests_total",
			Help: "Scrape attempts by outcome.",
		},
		[]string{"outcome"},
	)
	scrapeErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prisma_scrape_errors_total",
			Help: "Failed scrapes by error code.",
		},
		[]string{"code"},
	)
	scrapeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prisma_scrape_duration_seconds",
			Help:    "Time spent scraping a single URL.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	analysisRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prisma_analysis_requests_total",
			Help: "Synthesis calls by outcome code.",
		},
		[]string{"outcome"},
	)
	analysisTokens := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prisma_analysis_tokens_total",
			Help: "Tokens reported by the model across synthesis calls.",
		},
	)
	inferenceDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prisma_inference_duration_seconds",
			Help:    "Model inference latency.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	rebalanced := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prisma_budget_rebalanced_total",
			Help: "Prompt budgets rebalanced to protect the input window.",
		},
	)

	registry.MustRegister(scrapeRequests, scrapeErrors, scrapeDuration,
		analysisRequests, analysisTokens, inferenceDuration, rebalanced)

	return &Metrics{
		Registry:          registry,
		ScrapeRequests:    scrapeRequests,
		ScrapeErrors:      scrapeErrors,
		ScrapeDuration:    scrapeDuration,
		AnalysisRequests:  analysisRequests,
		AnalysisTokens:    analysisTokens,
		InferenceDuration: inferenceDuration,
		BudgetRebalanced:  rebalanced,
	}
}

// ObserveScrape records one scrape attempt. code is empty on success.
func (m *Metrics) ObserveScrape(success bool, code string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
		m.ScrapeErrors.WithLabelValues(code).Inc()
	}
	m.ScrapeRequests.WithLabelValues(outcome).Inc()
	m.ScrapeDuration.Observe(d.Seconds())
}

// ObserveAnalysis records one synthesis call. outcome is "success" or an
// error code.
func (m *Metrics) ObserveAnalysis(outcome string, tokens int) {
	if m == nil {
		return
	}
	m.AnalysisRequests.WithLabelValues(outcome).Inc()
	if tokens > 0 {
		m.AnalysisTokens.Add(float64(tokens))
	}
}

// ObserveInference records a model call duration.
func (m *Metrics) ObserveInference(d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceDuration.Observe(d.Seconds())
}

// IncRebalanced counts a budget rebalance.
func (m *Metrics) IncRebalanced() {
	if m == nil {
		return
	}
	m.BudgetRebalanced.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
