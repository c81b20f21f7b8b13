// Package scheduler implements the Job Scheduler (C4): per-workflow
// admission caps, FIFO promotion, and a startup sweep of stale jobs
// (spec.md §4.6).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ryoshumei/workflowengine/internal/ctxlog"
	"github.com/ryoshumei/workflowengine/internal/model"
	"github.com/ryoshumei/workflowengine/internal/repository"
)

// MaxRunningPerWorkflow and MaxPendingPerWorkflow are the admission caps
// from spec.md §4.6.
const (
	MaxRunningPerWorkflow = 2
	MaxPendingPerWorkflow = 20
)

// Runner executes an admitted Job to completion; the Run Coordinator (C5)
// satisfies this interface. Scheduler depends on it only through this
// narrow seam so it never imports the coordinator package directly.
type Runner interface {
	RunJob(ctx context.Context, jobID string)
}

// Scheduler owns admission and promotion for all workflows; one instance
// serves the whole process.
type Scheduler struct {
	repo   repository.Repository
	runner Runner

	promoteLocks sync.Map // workflow id -> *sync.Mutex
}

// New constructs a Scheduler over repo, dispatching admitted jobs to
// runner on background goroutines.
func New(repo repository.Repository, runner Runner) *Scheduler {
	return &Scheduler{repo: repo, runner: runner}
}

// Submit inserts a new Pending Job for workflowID, enforcing the
// per-workflow Pending-queue cap, then attempts immediate promotion.
func (s *Scheduler) Submit(ctx context.Context, workflowID string) (*model.Job, error) {
	job := &model.Job{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     model.StatusPending,
		StartedAt:  time.Now(),
	}
	if err := s.repo.SubmitJob(ctx, job, MaxRunningPerWorkflow, MaxPendingPerWorkflow); err != nil {
		return nil, err
	}

	s.promote(ctx, workflowID)
	return job, nil
}

func (s *Scheduler) promoteLockFor(workflowID string) *sync.Mutex {
	m, _ := s.promoteLocks.LoadOrStore(workflowID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// promote runs as many Pending->Running transitions as the running cap
// allows for workflowID, launching the coordinator on a background
// goroutine for each. It is serialized per workflow: Submit and
// onJobTerminated can both trigger a promotion pass for the same workflow
// concurrently, and without a lock their interleaved RunningCount/
// OldestPending/UpdateJob sequences could both observe a stale running
// count and jointly promote past MaxRunningPerWorkflow.
func (s *Scheduler) promote(ctx context.Context, workflowID string) {
	lock := s.promoteLockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	log := ctxlog.FromContext(ctx)
	for {
		running, err := s.repo.RunningCount(ctx, workflowID)
		if err != nil {
			log.Error("promote: running count failed", "workflow_id", workflowID, "error", err)
			return
		}
		if running >= MaxRunningPerWorkflow {
			return
		}

		job, err := s.repo.OldestPending(ctx, workflowID)
		if err != nil {
			log.Error("promote: oldest pending failed", "workflow_id", workflowID, "error", err)
			return
		}
		if job == nil {
			return
		}

		job.Status = model.StatusRunning
		if err := s.repo.UpdateJob(ctx, job); err != nil {
			log.Error("promote: update job failed", "job_id", job.ID, "error", err)
			return
		}

		log.Info("promoted job", "job_id", job.ID, "workflow_id", workflowID)
		go func(jobID string) {
			s.runner.RunJob(context.Background(), jobID)
			s.onJobTerminated(workflowID)
		}(job.ID)
	}
}

// onJobTerminated re-runs the promotion pass once a Running job for
// workflowID reaches a terminal state, per spec.md §4.6's "Terminate ...
// trigger promotion pass".
func (s *Scheduler) onJobTerminated(workflowID string) {
	s.promote(context.Background(), workflowID)
}

// SweepStale fails every Job left Running or Pending older than maxAge,
// called once at process startup (spec.md §4.6).
func (s *Scheduler) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	return s.repo.SweepStale(ctx, time.Now().Add(-maxAge))
}
