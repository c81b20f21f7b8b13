package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/model"
)

// PostgresRepository is a Postgres-backed Repository implementation.
// Admission counts are read and the Job inserted within a single
// transaction, giving SubmitJob the strong consistency spec.md §4.7
// requires without a separate in-process lock.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository wraps an existing pgxpool.Pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertWorkflow(ctx context.Context, w *model.Workflow) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO workflows (id, name, created_at) VALUES ($1, $2, $3)`,
		w.ID, w.Name, w.CreatedAt)
	return wrapPgErr(err, "insert workflow")
}

func (r *PostgresRepository) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	var w model.Workflow
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at FROM workflows WHERE id = $1`, id).
		Scan(&w.ID, &w.Name, &w.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, engineerr.New(engineerr.NotFound, "workflow not found: "+id)
	}
	if err != nil {
		return nil, wrapPgErr(err, "get workflow")
	}
	return &w, nil
}

func (r *PostgresRepository) InsertNode(ctx context.Context, n *model.Node) error {
	cfg, err := json.Marshal(n.Config)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "marshal node config", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO nodes (id, workflow_id, type, config, order_index, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.WorkflowID, n.Type, cfg, n.OrderIndex, n.CreatedAt)
	return wrapPgErr(err, "insert node")
}

func (r *PostgresRepository) GetNode(ctx context.Context, id string) (*model.Node, error) {
	var n model.Node
	var cfg []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, workflow_id, type, config, order_index, created_at FROM nodes WHERE id = $1`, id).
		Scan(&n.ID, &n.WorkflowID, &n.Type, &cfg, &n.OrderIndex, &n.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, engineerr.New(engineerr.NotFound, "node not found: "+id)
	}
	if err != nil {
		return nil, wrapPgErr(err, "get node")
	}
	if err := json.Unmarshal(cfg, &n.Config); err != nil {
		return nil, engineerr.Wrap(engineerr.Internal, "unmarshal node config", err)
	}
	return &n, nil
}

func (r *PostgresRepository) ListNodes(ctx context.Context, workflowID string) ([]model.Node, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, workflow_id, type, config, order_index, created_at FROM nodes WHERE workflow_id = $1 ORDER BY id`,
		workflowID)
	if err != nil {
		return nil, wrapPgErr(err, "list nodes")
	}
	defer rows.Close()

	var out []model.Node
	for rows.Next() {
		var n model.Node
		var cfg []byte
		if err := rows.Scan(&n.ID, &n.WorkflowID, &n.Type, &cfg, &n.OrderIndex, &n.CreatedAt); err != nil {
			return nil, wrapPgErr(err, "scan node")
		}
		if err := json.Unmarshal(cfg, &n.Config); err != nil {
			return nil, engineerr.Wrap(engineerr.Internal, "unmarshal node config", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) InsertEdge(ctx context.Context, e *model.Edge) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO edges (id, workflow_id, from_node_id, to_node_id, from_port, to_port, condition) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.WorkflowID, e.FromNodeID, e.ToNodeID, e.FromPort, e.ToPort, e.Condition)
	return wrapPgErr(err, "insert edge")
}

func (r *PostgresRepository) ListEdges(ctx context.Context, workflowID string) ([]model.Edge, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, workflow_id, from_node_id, to_node_id, from_port, to_port, condition FROM edges WHERE workflow_id = $1 ORDER BY id`,
		workflowID)
	if err != nil {
		return nil, wrapPgErr(err, "list edges")
	}
	defer rows.Close()

	var out []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.FromNodeID, &e.ToNodeID, &e.FromPort, &e.ToPort, &e.Condition); err != nil {
			return nil, wrapPgErr(err, "scan edge")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) InsertJob(ctx context.Context, j *model.Job) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO jobs (id, workflow_id, status, started_at, finished_at, final_output, error_message) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.ID, j.WorkflowID, j.Status, j.StartedAt, j.FinishedAt, j.FinalOutput, j.ErrorMessage)
	return wrapPgErr(err, "insert job")
}

func (r *PostgresRepository) UpdateJob(ctx context.Context, j *model.Job) error {
	_, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = $1, finished_at = $2, final_output = $3, error_message = $4 WHERE id = $5`,
		j.Status, j.FinishedAt, j.FinalOutput, j.ErrorMessage, j.ID)
	return wrapPgErr(err, "update job")
}

func (r *PostgresRepository) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	err := r.db.QueryRow(ctx,
		`SELECT id, workflow_id, status, started_at, finished_at, final_output, error_message FROM jobs WHERE id = $1`, id).
		Scan(&j.ID, &j.WorkflowID, &j.Status, &j.StartedAt, &j.FinishedAt, &j.FinalOutput, &j.ErrorMessage)
	if err == pgx.ErrNoRows {
		return nil, engineerr.New(engineerr.NotFound, "job not found: "+id)
	}
	if err != nil {
		return nil, wrapPgErr(err, "get job")
	}
	return &j, nil
}

func (r *PostgresRepository) ListJobs(ctx context.Context, workflowID string) ([]model.Job, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, workflow_id, status, started_at, finished_at, final_output, error_message FROM jobs WHERE workflow_id = $1 ORDER BY started_at`,
		workflowID)
	if err != nil {
		return nil, wrapPgErr(err, "list jobs")
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.WorkflowID, &j.Status, &j.StartedAt, &j.FinishedAt, &j.FinalOutput, &j.ErrorMessage); err != nil {
			return nil, wrapPgErr(err, "scan job")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetJobWithSteps(ctx context.Context, jobID string) (*model.Job, []model.JobStep, error) {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, job_id, node_id, node_type, status, started_at, finished_at, input_text, output_text, error_message, config_snapshot, attempt
		 FROM job_steps WHERE job_id = $1 ORDER BY started_at`, jobID)
	if err != nil {
		return nil, nil, wrapPgErr(err, "list job steps")
	}
	defer rows.Close()

	var steps []model.JobStep
	for rows.Next() {
		var s model.JobStep
		var snapshot []byte
		if err := rows.Scan(&s.ID, &s.JobID, &s.NodeID, &s.NodeType, &s.Status, &s.StartedAt, &s.FinishedAt,
			&s.InputText, &s.OutputText, &s.ErrorMessage, &snapshot, &s.Attempt); err != nil {
			return nil, nil, wrapPgErr(err, "scan job step")
		}
		if err := json.Unmarshal(snapshot, &s.ConfigSnapshot); err != nil {
			return nil, nil, engineerr.Wrap(engineerr.Internal, "unmarshal config snapshot", err)
		}
		steps = append(steps, s)
	}
	return job, steps, rows.Err()
}

func (r *PostgresRepository) InsertJobStep(ctx context.Context, s *model.JobStep) error {
	snapshot, err := json.Marshal(s.ConfigSnapshot)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "marshal config snapshot", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO job_steps (id, job_id, node_id, node_type, status, started_at, finished_at, input_text, output_text, error_message, config_snapshot, attempt)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.JobID, s.NodeID, s.NodeType, s.Status, s.StartedAt, s.FinishedAt, s.InputText, s.OutputText, s.ErrorMessage, snapshot, s.Attempt)
	return wrapPgErr(err, "insert job step")
}

func (r *PostgresRepository) UpdateJobStep(ctx context.Context, s *model.JobStep) error {
	_, err := r.db.Exec(ctx,
		`UPDATE job_steps SET status = $1, finished_at = $2, input_text = $3, output_text = $4, error_message = $5, attempt = $6 WHERE id = $7`,
		s.Status, s.FinishedAt, s.InputText, s.OutputText, s.ErrorMessage, s.Attempt, s.ID)
	return wrapPgErr(err, "update job step")
}

func (r *PostgresRepository) InsertUploadedFile(ctx context.Context, f *model.UploadedFile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO uploaded_files (id, filename, mime_type, size_bytes, path, sha256, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.Filename, f.MimeType, f.SizeBytes, f.Path, f.SHA256, f.CreatedAt)
	return wrapPgErr(err, "insert uploaded file")
}

func (r *PostgresRepository) GetUploadedFile(ctx context.Context, id string) (*model.UploadedFile, error) {
	var f model.UploadedFile
	err := r.db.QueryRow(ctx,
		`SELECT id, filename, mime_type, size_bytes, path, sha256, created_at FROM uploaded_files WHERE id = $1`, id).
		Scan(&f.ID, &f.Filename, &f.MimeType, &f.SizeBytes, &f.Path, &f.SHA256, &f.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, engineerr.New(engineerr.NotFound, "file not found: "+id)
	}
	if err != nil {
		return nil, wrapPgErr(err, "get uploaded file")
	}
	return &f, nil
}

func (r *PostgresRepository) RunningCount(ctx context.Context, workflowID string) (int, error) {
	return r.countStatus(ctx, workflowID, model.StatusRunning)
}

func (r *PostgresRepository) PendingCount(ctx context.Context, workflowID string) (int, error) {
	return r.countStatus(ctx, workflowID, model.StatusPending)
}

func (r *PostgresRepository) countStatus(ctx context.Context, workflowID string, status model.JobStatus) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE workflow_id = $1 AND status = $2`, workflowID, status).Scan(&n)
	if err != nil {
		return 0, wrapPgErr(err, "count jobs")
	}
	return n, nil
}

func (r *PostgresRepository) OldestPending(ctx context.Context, workflowID string) (*model.Job, error) {
	var j model.Job
	err := r.db.QueryRow(ctx,
		`SELECT id, workflow_id, status, started_at, finished_at, final_output, error_message
		 FROM jobs WHERE workflow_id = $1 AND status = $2 ORDER BY started_at ASC LIMIT 1`,
		workflowID, model.StatusPending).
		Scan(&j.ID, &j.WorkflowID, &j.Status, &j.StartedAt, &j.FinishedAt, &j.FinalOutput, &j.ErrorMessage)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapPgErr(err, "oldest pending job")
	}
	return &j, nil
}

func (r *PostgresRepository) SweepStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = $1, finished_at = now(), error_message = $2
		 WHERE status IN ($3, $4) AND started_at < $5`,
		model.StatusFailed, "interrupted", model.StatusRunning, model.StatusPending, cutoff)
	if err != nil {
		return 0, wrapPgErr(err, "sweep stale jobs")
	}
	return int(tag.RowsAffected()), nil
}

// SubmitJob checks the Pending-queue admission cap and inserts the Job
// within a single transaction, so concurrent submissions for the same
// workflow observe a consistent count (spec.md §4.7).
func (r *PostgresRepository) SubmitJob(ctx context.Context, j *model.Job, _, maxPending int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrapPgErr(err, "begin submit job")
	}
	defer tx.Rollback(ctx)

	// Serialize submissions for this workflow within the transaction so
	// the count-then-insert below is race-free across concurrent callers.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, j.WorkflowID); err != nil {
		return wrapPgErr(err, "acquire workflow submit lock")
	}

	var pending int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE workflow_id = $1 AND status = $2`,
		j.WorkflowID, model.StatusPending).Scan(&pending)
	if err != nil {
		return wrapPgErr(err, "count pending jobs")
	}
	if pending >= maxPending {
		return engineerr.New(engineerr.QueueFull, "workflow pending queue is full")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, workflow_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		j.ID, j.WorkflowID, j.Status, j.StartedAt)
	if err != nil {
		return wrapPgErr(err, "insert job")
	}

	return tx.Commit(ctx)
}

func wrapPgErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return engineerr.Wrap(engineerr.Internal, op, err)
}

var _ Repository = (*PostgresRepository)(nil)
