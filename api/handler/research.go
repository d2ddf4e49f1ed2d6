package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/prisma/models"
	"github.com/use-agent/prisma/pipeline"
	"github.com/use-agent/prisma/progress"
	"github.com/use-agent/prisma/webhook"
)

// Starter launches background runs. *pipeline.Pipeline implements it.
type Starter interface {
	Start(ctx context.Context, req pipeline.Request) *pipeline.Handle
}

// Research bundles what the research endpoints need. Hooks may be nil.
type Research struct {
	Runner Starter
	Jobs   *JobStore
	Hooks  *webhook.Sender
	Logger *slog.Logger
}

// Post returns a handler for POST /api/v1/research.
// It registers a job, starts the run in the background and returns at once.
func (r *Research) Post() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ResearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		req.Defaults()

		jobID := "research-" + uuid.NewString()
		job := models.ResearchJob{
			ID:         jobID,
			Status:     models.JobProcessing,
			Topic:      req.Topic,
			Total:      len(req.URLs),
			WebhookURL: req.WebhookURL,
			CreatedAt:  time.Now().Unix(),
		}

		ctx := progress.WithObserver(context.WithoutCancel(c.Request.Context()), func(ev progress.ScrapeEvent) {
			r.Jobs.update(jobID, func(j *models.ResearchJob) {
				j.Completed = ev.Current
				j.Total = ev.Total
			})
		})
		ctx, cancel := context.WithCancel(ctx)
		r.Jobs.put(job, cancel)

		h := r.Runner.Start(ctx, pipeline.Request{
			ID:         jobID,
			URLs:       req.URLs,
			Topic:      req.Topic,
			Analyze:    *req.Analyze,
			Concurrent: req.Concurrent,
		})
		go r.finish(jobID, h, cancel)

		c.JSON(http.StatusAccepted, models.ResearchResponse{
			ID:     jobID,
			Status: models.JobProcessing,
			Total:  len(req.URLs),
		})
	}
}

// Get returns a handler for GET /api/v1/research/:id.
func (r *Research) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := r.Jobs.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewError(models.ErrCodeNotFound, "research job not found", nil))
			return
		}
		c.JSON(http.StatusOK, models.ResearchStatusResponse{
			ID:        job.ID,
			Status:    job.Status,
			Topic:     job.Topic,
			Completed: job.Completed,
			Total:     job.Total,
			Summary:   job.Summary,
			Error:     job.Err,
		})
	}
}

// Delete returns a handler for DELETE /api/v1/research/:id, which cancels
// a running job.
func (r *Research) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !r.Jobs.Cancel(id) {
			respondError(c, models.NewError(models.ErrCodeNotFound, "research job not found", nil))
			return
		}
		job, _ := r.Jobs.Get(id)
		c.JSON(http.StatusOK, models.ResearchResponse{ID: id, Status: job.Status, Total: job.Total})
	}
}

// finish waits for the run, records its outcome and fires the webhook.
func (r *Research) finish(jobID string, h *pipeline.Handle, cancel context.CancelFunc) {
	defer cancel()
	summary, err := h.Wait()

	var final models.ResearchJob
	r.Jobs.update(jobID, func(j *models.ResearchJob) {
		j.Summary = summary
		switch {
		case err == nil:
			j.Status = models.JobCompleted
		case models.CodeOf(err) == models.ErrCodeCanceled:
			j.Status = models.JobCanceled
		default:
			j.Status = models.JobFailed
		}
		if err != nil {
			j.Err = &models.ErrorDetail{Code: models.CodeOf(err), Message: models.Describe(err)}
		}
		if summary != nil {
			j.Completed = len(summary.Results)
			j.Total = summary.Total
		}
		final = *j
	})

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("research job finished", "id", jobID, "status", final.Status)

	if r.Hooks == nil || final.WebhookURL == "" {
		return
	}
	event := &webhook.Event{
		Type:      webhook.EventResearchCompleted,
		JobID:     jobID,
		Timestamp: time.Now().Unix(),
		Data: models.ResearchStatusResponse{
			ID:        final.ID,
			Status:    final.Status,
			Topic:     final.Topic,
			Completed: final.Completed,
			Total:     final.Total,
			Summary:   final.Summary,
			Error:     final.Err,
		},
	}
	if final.Status != models.JobCompleted {
		event.Type = webhook.EventResearchFailed
	}
	r.Hooks.DeliverAsync(final.WebhookURL, event)
}
