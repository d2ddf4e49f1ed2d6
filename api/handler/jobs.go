package handler

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/prisma/models"
)

// jobEntry guards one job record.
type jobEntry struct {
	mu     sync.Mutex
	job    models.ResearchJob
	cancel func()
}

// JobStore holds in-flight and finished research jobs. Finished jobs older
// than the retention window are expired by Run.
type JobStore struct {
	jobs   sync.Map // id -> *jobEntry
	retain time.Duration
	now    func() time.Time
}

// NewJobStore creates a store keeping jobs for retain.
func NewJobStore(retain time.Duration) *JobStore {
	if retain <= 0 {
		retain = time.Hour
	}
	return &JobStore{retain: retain, now: time.Now}
}

// Run expires old jobs every five minutes until ctx is done.
func (s *JobStore) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Expire()
		}
	}
}

// Expire removes jobs created before the retention window. It returns the
// number removed.
func (s *JobStore) Expire() int {
	cutoff := s.now().Add(-s.retain).Unix()
	n := 0
	s.jobs.Range(func(key, value any) bool {
		e := value.(*jobEntry)
		e.mu.Lock()
		old := e.job.CreatedAt < cutoff && finished(e.job.Status)
		e.mu.Unlock()
		if old {
			s.jobs.Delete(key)
			n++
		}
		return true
	})
	return n
}

func (s *JobStore) put(job models.ResearchJob, cancel func()) {
	s.jobs.Store(job.ID, &jobEntry{job: job, cancel: cancel})
}

// Get returns a snapshot of the job with id.
func (s *JobStore) Get(id string) (models.ResearchJob, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return models.ResearchJob{}, false
	}
	e := v.(*jobEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, true
}

// Cancel stops a running job. It reports whether the job exists.
func (s *JobStore) Cancel(id string) bool {
	v, ok := s.jobs.Load(id)
	if !ok {
		return false
	}
	e := v.(*jobEntry)
	if e.cancel != nil {
		e.cancel()
	}
	return true
}

func (s *JobStore) update(id string, fn func(*models.ResearchJob)) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return
	}
	e := v.(*jobEntry)
	e.mu.Lock()
	fn(&e.job)
	e.mu.Unlock()
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	n := 0
	s.jobs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func finished(status string) bool {
	switch status {
	case models.JobCompleted, models.JobFailed, models.JobCanceled:
		return true
	}
	return false
}
