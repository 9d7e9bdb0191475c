// Package api provides the HTTP handlers of the bmplot server.
package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/davidfague/bmtool/internal/reportstore"
	"github.com/davidfague/bmtool/internal/telemetry"
)

// JobManagerConfig contains configuration for the job manager.
type JobManagerConfig struct {
	MaxConcurrent int    // Max concurrent render jobs (default 1)
	SQLitePath    string // Path to SQLite database
	RetentionDays int    // Days to keep finished jobs and reports (default 30)
	CleanupPeriod time.Duration
	Metrics       *telemetry.Metrics
	Logger        *slog.Logger
}

// JobManager runs render jobs on a worker pool, persisting them in SQLite.
type JobManager struct {
	cfg      JobManagerConfig
	store    *reportstore.Store
	logger   *slog.Logger
	queue    chan string // job IDs
	running  map[string]context.CancelFunc
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	// Executor is called to run a job.
	Executor func(ctx context.Context, store *reportstore.Store, jobID string) error
}

// NewJobManager creates a new job manager with SQLite persistence.
func NewJobManager(cfg JobManagerConfig) (*JobManager, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 1 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := reportstore.NewStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	jm := &JobManager{
		cfg:     cfg,
		store:   store,
		logger:  logger.With("component", "jobs"),
		queue:   make(chan string, 100),
		running: make(map[string]context.CancelFunc),
		stopCh:  make(chan struct{}),
	}
	return jm, nil
}

// Store returns the underlying store for direct access.
func (jm *JobManager) Store() *reportstore.Store {
	return jm.store
}

// Start starts the worker goroutines and cleanup ticker.
// Also recovers from previous shutdown.
func (jm *JobManager) Start() {
	// Mark any running jobs as failed (server restart)
	if err := jm.store.MarkRunningAsFailed("server restarted"); err != nil {
		jm.logger.Error("failed to mark running jobs as failed", "error", err)
	}

	// Re-queue any queued jobs
	queued, err := jm.store.ListQueuedJobs()
	if err != nil {
		jm.logger.Error("failed to list queued jobs", "error", err)
	} else {
		for _, job := range queued {
			select {
			case jm.queue <- job.ID:
				jm.logger.Info("re-queued job", "job_id", job.ID)
			default:
				jm.logger.Warn("queue full, cannot re-queue job", "job_id", job.ID)
			}
		}
	}

	for i := 0; i < jm.cfg.MaxConcurrent; i++ {
		jm.wg.Add(1)
		go jm.worker()
	}

	go jm.cleaner()
}

// Stop stops all workers gracefully.
func (jm *JobManager) Stop() {
	jm.stopOnce.Do(func() {
		close(jm.stopCh)
		close(jm.queue)
		jm.wg.Wait()
		jm.store.Close()
	})
}

func (jm *JobManager) worker() {
	defer jm.wg.Done()
	for jobID := range jm.queue {
		jm.runJob(jobID)
	}
}

func (jm *JobManager) runJob(jobID string) {
	// Skip jobs cancelled while queued
	if job, err := jm.store.GetJob(jobID); err != nil || job == nil || job.Status != reportstore.JobStatusQueued {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jm.mu.Lock()
	jm.running[jobID] = cancel
	jm.mu.Unlock()

	defer func() {
		jm.mu.Lock()
		delete(jm.running, jobID)
		jm.mu.Unlock()
	}()

	if err := jm.store.UpdateJobStarted(jobID); err != nil {
		jm.logger.Error("failed to mark job started", "job_id", jobID, "error", err)
		return
	}

	var execErr error
	if jm.Executor != nil {
		execErr = jm.Executor(ctx, jm.store, jobID)
	}

	status, msg := reportstore.JobStatusCompleted, ""
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		status, msg = reportstore.JobStatusCancelled, "cancelled by user"
	case execErr != nil:
		status, msg = reportstore.JobStatusFailed, execErr.Error()
		jm.logger.Warn("job failed", "job_id", jobID, "error", execErr)
	}
	if err := jm.store.UpdateJobStatus(jobID, status, msg); err != nil {
		jm.logger.Error("failed to update job status", "job_id", jobID, "error", err)
	}
	jm.cfg.Metrics.JobFinished(string(status))
}

func (jm *JobManager) cleaner() {
	ticker := time.NewTicker(jm.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.cleanup()
		}
	}
}

func (jm *JobManager) cleanup() {
	deleted, err := jm.store.DeleteExpired(jm.cfg.RetentionDays)
	if err != nil {
		jm.logger.Error("cleanup failed", "error", err)
	} else if deleted > 0 {
		jm.logger.Info("cleaned up expired jobs and reports", "deleted", deleted)
	}
}

// Submit creates a new job and enqueues it for execution.
func (jm *JobManager) Submit(kind string, params map[string]string) (*reportstore.RenderJob, error) {
	job := &reportstore.RenderJob{
		Kind:   kind,
		Status: reportstore.JobStatusQueued,
		Params: params,
	}
	if err := jm.store.CreateJob(job); err != nil {
		return nil, err
	}

	select {
	case jm.queue <- job.ID:
	default:
		// Queue full; mark as failed immediately
		jm.store.UpdateJobStatus(job.ID, reportstore.JobStatusFailed, "job queue is full; try again later")
		job.Status = reportstore.JobStatusFailed
	}
	return job, nil
}

// Get returns a job by ID, or nil.
func (jm *JobManager) Get(id string) *reportstore.RenderJob {
	job, err := jm.store.GetJob(id)
	if err != nil {
		jm.logger.Error("failed to get job", "job_id", id, "error", err)
		return nil
	}
	return job
}

// Cancel attempts to cancel a running or queued job.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.Lock()
	cancel, ok := jm.running[id]
	jm.mu.Unlock()

	if ok && cancel != nil {
		cancel()
		return true
	}

	// If not running, try to mark as cancelled in DB
	job, err := jm.store.GetJob(id)
	if err != nil || job == nil {
		return false
	}
	if job.Status == reportstore.JobStatusQueued {
		jm.store.UpdateJobStatus(id, reportstore.JobStatusCancelled, "cancelled before start")
		return true
	}
	return false
}

// Delete deletes a job.
func (jm *JobManager) Delete(id string) error {
	return jm.store.DeleteJob(id)
}
