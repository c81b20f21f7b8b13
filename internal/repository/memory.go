package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/model"
)

// MemoryRepository is a thread-safe, process-local Repository
// implementation. Workflows map to sync.Map entries keyed by entity ID;
// admission-count checks and Job inserts are serialized by a per-workflow
// mutex so SubmitJob's check-then-insert is atomic, matching spec.md
// §4.7's "workflow-scoped lock" guidance.
type MemoryRepository struct {
	workflows sync.Map // id -> *model.Workflow
	nodes     sync.Map // id -> *model.Node
	edges     sync.Map // id -> *model.Edge
	jobs      sync.Map // id -> *model.Job
	steps     sync.Map // id -> *model.JobStep
	files     sync.Map // id -> *model.UploadedFile

	workflowLocks sync.Map // workflow id -> *sync.Mutex
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) lockFor(workflowID string) *sync.Mutex {
	m, _ := r.workflowLocks.LoadOrStore(workflowID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func (r *MemoryRepository) InsertWorkflow(_ context.Context, w *model.Workflow) error {
	r.workflows.Store(w.ID, w)
	return nil
}

func (r *MemoryRepository) GetWorkflow(_ context.Context, id string) (*model.Workflow, error) {
	v, ok := r.workflows.Load(id)
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "workflow not found: "+id)
	}
	return v.(*model.Workflow), nil
}

func (r *MemoryRepository) InsertNode(_ context.Context, n *model.Node) error {
	r.nodes.Store(n.ID, n)
	return nil
}

func (r *MemoryRepository) GetNode(_ context.Context, id string) (*model.Node, error) {
	v, ok := r.nodes.Load(id)
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "node not found: "+id)
	}
	return v.(*model.Node), nil
}

func (r *MemoryRepository) ListNodes(_ context.Context, workflowID string) ([]model.Node, error) {
	var out []model.Node
	r.nodes.Range(func(_, v any) bool {
		n := v.(*model.Node)
		if n.WorkflowID == workflowID {
			out = append(out, *n)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) InsertEdge(_ context.Context, e *model.Edge) error {
	r.edges.Store(e.ID, e)
	return nil
}

func (r *MemoryRepository) ListEdges(_ context.Context, workflowID string) ([]model.Edge, error) {
	var out []model.Edge
	r.edges.Range(func(_, v any) bool {
		e := v.(*model.Edge)
		if e.WorkflowID == workflowID {
			out = append(out, *e)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) InsertJob(_ context.Context, j *model.Job) error {
	r.jobs.Store(j.ID, j)
	return nil
}

func (r *MemoryRepository) UpdateJob(_ context.Context, j *model.Job) error {
	r.jobs.Store(j.ID, j)
	return nil
}

func (r *MemoryRepository) GetJob(_ context.Context, id string) (*model.Job, error) {
	v, ok := r.jobs.Load(id)
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "job not found: "+id)
	}
	return v.(*model.Job), nil
}

func (r *MemoryRepository) ListJobs(_ context.Context, workflowID string) ([]model.Job, error) {
	var out []model.Job
	r.jobs.Range(func(_, v any) bool {
		j := v.(*model.Job)
		if j.WorkflowID == workflowID {
			out = append(out, *j)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (r *MemoryRepository) GetJobWithSteps(ctx context.Context, jobID string) (*model.Job, []model.JobStep, error) {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	var steps []model.JobStep
	r.steps.Range(func(_, v any) bool {
		s := v.(*model.JobStep)
		if s.JobID == jobID {
			steps = append(steps, *s)
		}
		return true
	})
	sort.Slice(steps, func(i, j int) bool { return steps[i].StartedAt.Before(steps[j].StartedAt) })
	return job, steps, nil
}

func (r *MemoryRepository) InsertJobStep(_ context.Context, s *model.JobStep) error {
	r.steps.Store(s.ID, s)
	return nil
}

func (r *MemoryRepository) UpdateJobStep(_ context.Context, s *model.JobStep) error {
	r.steps.Store(s.ID, s)
	return nil
}

func (r *MemoryRepository) InsertUploadedFile(_ context.Context, f *model.UploadedFile) error {
	r.files.Store(f.ID, f)
	return nil
}

func (r *MemoryRepository) GetUploadedFile(_ context.Context, id string) (*model.UploadedFile, error) {
	v, ok := r.files.Load(id)
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "file not found: "+id)
	}
	return v.(*model.UploadedFile), nil
}

func (r *MemoryRepository) RunningCount(_ context.Context, workflowID string) (int, error) {
	return r.countStatus(workflowID, model.StatusRunning), nil
}

func (r *MemoryRepository) PendingCount(_ context.Context, workflowID string) (int, error) {
	return r.countStatus(workflowID, model.StatusPending), nil
}

func (r *MemoryRepository) countStatus(workflowID string, status model.JobStatus) int {
	n := 0
	r.jobs.Range(func(_, v any) bool {
		j := v.(*model.Job)
		if j.WorkflowID == workflowID && j.Status == status {
			n++
		}
		return true
	})
	return n
}

func (r *MemoryRepository) OldestPending(_ context.Context, workflowID string) (*model.Job, error) {
	var oldest *model.Job
	r.jobs.Range(func(_, v any) bool {
		j := v.(*model.Job)
		if j.WorkflowID != workflowID || j.Status != model.StatusPending {
			return true
		}
		if oldest == nil || j.StartedAt.Before(oldest.StartedAt) {
			oldest = j
		}
		return true
	})
	return oldest, nil
}

func (r *MemoryRepository) SweepStale(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	r.jobs.Range(func(_, v any) bool {
		j := v.(*model.Job)
		if (j.Status == model.StatusRunning || j.Status == model.StatusPending) && j.StartedAt.Before(cutoff) {
			finished := time.Now()
			msg := "interrupted"
			j.Status = model.StatusFailed
			j.FinishedAt = &finished
			j.ErrorMessage = &msg
			n++
		}
		return true
	})
	return n, nil
}

// SubmitJob implements the admission check from spec.md §4.6 under the
// workflow's lock, so the read-counts-then-insert sequence is atomic with
// respect to concurrent submissions for the same workflow. A Job is always
// inserted as Pending; maxRunning governs promotion, not submission — a
// submit is rejected only once the Pending queue itself is full.
func (r *MemoryRepository) SubmitJob(ctx context.Context, j *model.Job, maxRunning, maxPending int) error {
	lock := r.lockFor(j.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	pending := r.countStatus(j.WorkflowID, model.StatusPending)
	if pending >= maxPending {
		return engineerr.New(engineerr.QueueFull, "workflow pending queue is full")
	}

	return r.InsertJob(ctx, j)
}

var _ Repository = (*MemoryRepository)(nil)
