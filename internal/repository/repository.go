// Package repository defines the storage abstraction (C6) the core
// components consume, and provides two implementations: an in-memory
// store for tests and single-process deployments, and a Postgres-backed
// store for production.
package repository

import (
	"context"
	"time"

	"github.com/ryoshumei/workflowengine/internal/model"
)

// Repository is the interface insert/update/get/list the core consumes
// (spec.md §4.7). Implementations must provide read-your-writes within a
// single request and strong consistency for RunningCount/PendingCount.
type Repository interface {
	InsertWorkflow(ctx context.Context, w *model.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*model.Workflow, error)

	InsertNode(ctx context.Context, n *model.Node) error
	GetNode(ctx context.Context, id string) (*model.Node, error)
	ListNodes(ctx context.Context, workflowID string) ([]model.Node, error)

	InsertEdge(ctx context.Context, e *model.Edge) error
	ListEdges(ctx context.Context, workflowID string) ([]model.Edge, error)

	InsertJob(ctx context.Context, j *model.Job) error
	UpdateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, workflowID string) ([]model.Job, error)
	GetJobWithSteps(ctx context.Context, jobID string) (*model.Job, []model.JobStep, error)

	InsertJobStep(ctx context.Context, s *model.JobStep) error
	UpdateJobStep(ctx context.Context, s *model.JobStep) error

	InsertUploadedFile(ctx context.Context, f *model.UploadedFile) error
	GetUploadedFile(ctx context.Context, id string) (*model.UploadedFile, error)

	// RunningCount and PendingCount must be transactionally consistent
	// with Job state changes for a given workflow; the scheduler's
	// admission check depends on it.
	RunningCount(ctx context.Context, workflowID string) (int, error)
	PendingCount(ctx context.Context, workflowID string) (int, error)

	// OldestPending returns the oldest Pending Job for a workflow, or nil
	// if there is none, used by the FIFO promotion pass.
	OldestPending(ctx context.Context, workflowID string) (*model.Job, error)

	// SweepStale transitions every Job in Running or Pending started
	// before cutoff to Failed with error_message "interrupted"
	// (spec.md §4.6), returning the number of jobs swept.
	SweepStale(ctx context.Context, cutoff time.Time) (int, error)

	// SubmitJob atomically checks the workflow's Pending-queue cap and
	// inserts a Pending Job, returning engineerr.QueueFull once pending
	// alone reaches maxPending. maxRunning is accepted for symmetry with
	// the scheduler's promotion pass but does not gate submission.
	SubmitJob(ctx context.Context, j *model.Job, maxRunning, maxPending int) error
}
