package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/prisma/analyzer"
	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/models"
	"github.com/use-agent/prisma/scraper"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// SessionReporter exposes the scraping engine's browser session.
// *scraper.Scraper implements it.
type SessionReporter interface {
	State() scraper.SessionState
	Config() config.ScraperConfig
}

// ModelReporter exposes the synthesizer's model. *analyzer.Analyzer
// implements it.
type ModelReporter interface {
	State() analyzer.State
	ModelPath() string
}

// WeightsReporter reports whether model weights are on disk.
// *modelstore.Store implements it.
type WeightsReporter interface {
	IsAvailable() bool
	ModelPath() string
}

// Health returns a handler for GET /api/v1/health.
//
// Status is "degraded" when no model weights are available, since research
// jobs can then only scrape. am and ws may be nil.
func Health(sc SessionReporter, am ModelReporter, ws WeightsReporter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: Version,
			Browser: models.BrowserStats{
				State:         sc.State().String(),
				MaxConcurrent: sc.Config().MaxConcurrent,
			},
			Model: models.ModelStats{State: analyzer.StateUnloaded.String()},
		}

		if am != nil {
			resp.Model.State = am.State().String()
			resp.Model.Path = am.ModelPath()
		}
		if ws != nil {
			resp.Model.Available = ws.IsAvailable()
			if resp.Model.Path == "" {
				resp.Model.Path = ws.ModelPath()
			}
		}
		if am != nil && am.State() == analyzer.StateLoaded {
			resp.Model.Available = true
		}
		if !resp.Model.Available {
			resp.Status = "degraded"
		}

		c.JSON(http.StatusOK, resp)
	}
}
