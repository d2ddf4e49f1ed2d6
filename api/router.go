// Package api exposes the scraping engine and the research pipeline over
// HTTP.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/prisma/api/handler"
	"github.com/use-agent/prisma/api/middleware"
	"github.com/use-agent/prisma/cache"
	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/metrics"
	"github.com/use-agent/prisma/webhook"
)

// Services are the components the routes serve. Model, Weights, Cache,
// Metrics and Hooks may be nil.
type Services struct {
	Scraper  handler.BatchScraper
	Session  handler.SessionReporter
	Pipeline handler.Starter
	Model    handler.ModelReporter
	Weights  handler.WeightsReporter
	Cache    *cache.Cache
	Metrics  *metrics.Metrics
	Hooks    *webhook.Sender
	Logger   *slog.Logger
}

// Server is the HTTP surface. Run its background housekeeping with Run.
type Server struct {
	Engine   *gin.Engine
	jobs     *handler.JobStore
	limiters *middleware.Limiters
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so monitoring probes always work.
func NewRouter(svc Services, cfg *config.Config, startTime time.Time) *Server {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	s := &Server{
		Engine:   r,
		jobs:     handler.NewJobStore(time.Hour),
		limiters: middleware.NewLimiters(cfg.RateLimit),
	}

	r.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(svc.Session, svc.Model, svc.Weights, startTime))

	protected := v1.Group("")
	protected.Use(middleware.Auth(cfg.Auth))
	protected.Use(middleware.RateLimit(s.limiters))

	protected.POST("/scrape", handler.Scrape(svc.Scraper, svc.Cache))

	research := &handler.Research{
		Runner: svc.Pipeline,
		Jobs:   s.jobs,
		Hooks:  svc.Hooks,
		Logger: svc.Logger,
	}
	protected.POST("/research", research.Post())
	protected.GET("/research/:id", research.Get())
	protected.DELETE("/research/:id", research.Delete())

	return s
}

// Run expires finished jobs and idle rate-limit buckets until ctx is done.
func (s *Server) Run(ctx context.Context) {
	go s.limiters.Run(ctx)
	s.jobs.Run(ctx)
}
