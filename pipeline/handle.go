package pipeline

import (
	"context"

	"github.com/use-agent/prisma/models"
)

// Handle is a run started in the background.
type Handle struct {
	cancel  context.CancelFunc
	done    chan struct{}
	summary *models.RunSummary
	err     error
}

// Start runs req on its own goroutine. Cancel the run with Handle.Cancel
// or by canceling ctx.
func (p *Pipeline) Start(ctx context.Context, req Request) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		h.summary, h.err = p.Run(ctx, req)
	}()
	return h
}

// Cancel asks the run to stop at its next checkpoint.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed when the run has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns its outcome.
func (h *Handle) Wait() (*models.RunSummary, error) {
	<-h.done
	return h.summary, h.err
}
