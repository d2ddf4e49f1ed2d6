package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/prisma/cache"
	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/models"
)

// BatchScraper scrapes a list of URLs. *scraper.Scraper implements it.
type BatchScraper interface {
	ScrapeURLs(ctx context.Context, urls []string) []models.ScrapeResult
	ScrapeURLsConcurrent(ctx context.Context, urls []string) []models.ScrapeResult
	Config() config.ScraperConfig
}

// Scrape returns a handler for POST /api/v1/scrape.
//
// URLs already in cc are served from it; the rest are scraped in one batch
// and successful results are cached. cc may be nil.
func Scrape(sc BatchScraper, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		cfg := sc.Config()
		results := make([]models.ScrapeResult, len(req.URLs))
		keys := make([]string, len(req.URLs))
		var (
			missURLs []string
			missIdx  []int
			hits     int
		)
		for i, u := range req.URLs {
			keys[i] = cache.Key(u, cfg.ExtractMode, cfg.FetchMode)
			if !req.SkipCache {
				if r, ok := cc.Get(keys[i]); ok {
					results[i] = r
					hits++
					continue
				}
			}
			missURLs = append(missURLs, u)
			missIdx = append(missIdx, i)
		}

		if len(missURLs) > 0 {
			var fresh []models.ScrapeResult
			if req.Concurrent {
				fresh = sc.ScrapeURLsConcurrent(c.Request.Context(), missURLs)
			} else {
				fresh = sc.ScrapeURLs(c.Request.Context(), missURLs)
			}
			for j, r := range fresh {
				i := missIdx[j]
				results[i] = r
				cc.Set(keys[i], r)
			}
		}

		succeeded := 0
		for _, r := range results {
			if r.Success {
				succeeded++
			}
		}

		c.JSON(http.StatusOK, models.ScrapeResponse{
			Success:   succeeded > 0,
			Total:     len(results),
			Succeeded: succeeded,
			Results:   results,
			CacheHits: hits,
		})
	}
}
