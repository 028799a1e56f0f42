package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

// SchedulerConfig defines concurrency limits for background analytics.
type SchedulerConfig struct {
	MaxConcurrentJobs int64
	QueueSize         int
}

// JobScheduler runs event-driven analytics executions decoupled from the
// HTTP request that scheduled them. Failures are recorded on the job and
// in the execution-result store, never propagated to the caller.
type JobScheduler struct {
	logger       *slog.Logger
	pendingQueue chan domain.Job
	semaphore    *semaphore.Weighted

	mu   sync.RWMutex
	jobs map[domain.JobID]domain.Job
}

func NewJobScheduler(logger *slog.Logger, cfg SchedulerConfig) *JobScheduler {
	limit := cfg.MaxConcurrentJobs
	if limit <= 0 {
		limit = 10
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 100
	}

	return &JobScheduler{
		logger:       logger,
		pendingQueue: make(chan domain.Job, queue),
		semaphore:    semaphore.NewWeighted(limit),
		jobs:         make(map[domain.JobID]domain.Job),
	}
}

// Submit adds a job to the scheduling queue.
func (s *JobScheduler) Submit(_ context.Context, job domain.Job) error {
	job.Status = domain.JobStatusPending
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	// Track before enqueueing so a worker's later status cannot be
	// overwritten by this pending record.
	s.mu.Lock()
	prev, hadPrev := s.jobs[job.ID]
	s.mu.Unlock()
	s.track(job)

	select {
	case s.pendingQueue <- job:
		s.logger.Info("job submitted", "job_id", job.ID, "analytics_id", job.AnalyticsID)
		return nil
	default:
		s.mu.Lock()
		if hadPrev {
			s.jobs[job.ID] = prev
		} else {
			delete(s.jobs, job.ID)
		}
		s.mu.Unlock()
		return errors.New("scheduling queue full")
	}
}

// Start consumes the queue and executes jobs with the provided handler.
// The handler runs in its own goroutine; the semaphore bounds how many
// jobs execute at once.
func (s *JobScheduler) Start(ctx context.Context, handler func(context.Context, domain.Job) error) {
	s.logger.Info("starting job scheduler")

	go func() {
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("stopping job scheduler")
				return
			case job := <-s.pendingQueue:
				if err := s.semaphore.Acquire(ctx, 1); err != nil {
					s.logger.Error("failed to acquire semaphore", "error", err)
					return
				}

				go func(j domain.Job) {
					defer s.semaphore.Release(1)
					j.Status = domain.JobStatusProcessing
					s.track(j)

					if err := handler(ctx, j); err != nil {
						j.Status = domain.JobStatusFailed
						j.Error = err.Error()
						s.logger.Error("background job failed", "job_id", j.ID, "error", err)
					} else {
						j.Status = domain.JobStatusCompleted
					}
					s.track(j)
				}(job)
			}
		}
	}()
}

// Get returns the tracked state of a job.
func (s *JobScheduler) Get(id domain.JobID) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *JobScheduler) track(job domain.Job) {
	job.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
}
