// Package httpapi implements the external HTTP interfaces (C7) described
// in spec.md §6: workflow/node/edge CRUD, job submission and lookup, and
// PDF uploads.
package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/ryoshumei/workflowengine/internal/ctxlog"
	"github.com/ryoshumei/workflowengine/internal/dag"
	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/filestore"
	"github.com/ryoshumei/workflowengine/internal/model"
	"github.com/ryoshumei/workflowengine/internal/nodecfg"
	"github.com/ryoshumei/workflowengine/internal/pdftext"
	"github.com/ryoshumei/workflowengine/internal/repository"
	"github.com/ryoshumei/workflowengine/internal/scheduler"
)

// Server wires the HTTP surface to the Repository, Scheduler, the file
// content store, and an Extractor used for upload validation.
type Server struct {
	repo      repository.Repository
	sched     *scheduler.Scheduler
	extractor pdftext.Extractor
	files     *filestore.Store
}

// NewRouter constructs a *mux.Router with every route from spec.md §6
// registered.
func NewRouter(repo repository.Repository, sched *scheduler.Scheduler, extractor pdftext.Extractor, files *filestore.Store) *mux.Router {
	s := &Server{repo: repo, sched: sched, extractor: extractor, files: files}

	r := mux.NewRouter()
	r.HandleFunc("/workflows", s.handleCreateWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}", s.handleGetWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/nodes", s.handleCreateNode).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/edges", s.handleCreateEdge).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/edges", s.handleListEdges).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/run", s.handleRunWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/runs", s.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{job_id}", s.handleGetJob).Methods(http.MethodGet)
	r.HandleFunc("/files", s.handleUploadFile).Methods(http.MethodPost)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	return r
}

// requestIDMiddleware assigns a request_id (spec.md's C9 per-request
// logging scope) to every inbound request, echoing it back on the response
// and binding it into the request-scoped logger so every log line the
// handler emits carries it.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		log := ctxlog.FromContext(r.Context()).With("request_id", requestID)
		ctx := ctxlog.WithLogger(r.Context(), log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxlog.FromContext(r.Context()).Info("http request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondErr(w http.ResponseWriter, err error) {
	kind := engineerr.KindOf(err)
	code := http.StatusInternalServerError
	switch kind {
	case engineerr.NotFound:
		code = http.StatusNotFound
	case engineerr.Validation:
		code = http.StatusBadRequest
	case engineerr.QueueFull:
		code = http.StatusTooManyRequests
	case engineerr.UpstreamUnavailable, engineerr.Budget:
		code = http.StatusBadGateway
	}
	respondJSON(w, code, map[string]string{"error": err.Error()})
}

type createWorkflowRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, engineerr.Wrap(engineerr.Validation, "malformed request body", err))
		return
	}

	wf := &model.Workflow{ID: uuid.NewString(), Name: req.Name, CreatedAt: time.Now()}
	if err := s.repo.InsertWorkflow(r.Context(), wf); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": wf.ID, "name": wf.Name})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := s.repo.GetWorkflow(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	nodes, err := s.repo.ListNodes(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": wf.ID, "name": wf.Name, "nodes": nodes})
}

type createNodeRequest struct {
	NodeType model.NodeType `json:"node_type"`
	Config   map[string]any `json:"config"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if _, err := s.repo.GetWorkflow(r.Context(), workflowID); err != nil {
		respondErr(w, err)
		return
	}

	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, engineerr.Wrap(engineerr.Validation, "malformed request body", err))
		return
	}
	if err := nodecfg.Validate(req.NodeType, req.Config); err != nil {
		respondErr(w, err)
		return
	}

	existing, err := s.repo.ListNodes(r.Context(), workflowID)
	if err != nil {
		respondErr(w, err)
		return
	}

	node := &model.Node{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Type:       req.NodeType,
		Config:     req.Config,
		OrderIndex: len(existing),
		CreatedAt:  time.Now(),
	}
	if err := s.repo.InsertNode(r.Context(), node); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "node created", "node_id": node.ID})
}

type createEdgeRequest struct {
	FromNodeID string  `json:"from_node_id"`
	ToNodeID   string  `json:"to_node_id"`
	FromPort   string  `json:"from_port,omitempty"`
	ToPort     string  `json:"to_port,omitempty"`
	Condition  *string `json:"condition,omitempty"`
}

func (s *Server) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if _, err := s.repo.GetWorkflow(r.Context(), workflowID); err != nil {
		respondErr(w, err)
		return
	}

	var req createEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, engineerr.Wrap(engineerr.Validation, "malformed request body", err))
		return
	}

	nodes, err := s.repo.ListNodes(r.Context(), workflowID)
	if err != nil {
		respondErr(w, err)
		return
	}
	edges, err := s.repo.ListEdges(r.Context(), workflowID)
	if err != nil {
		respondErr(w, err)
		return
	}

	candidate := model.Edge{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		FromNodeID: req.FromNodeID,
		ToNodeID:   req.ToNodeID,
		FromPort:   req.FromPort,
		ToPort:     req.ToPort,
		Condition:  req.Condition,
	}
	if err := dag.ValidateDAG(workflowID, nodes, append(edges, candidate)); err != nil {
		respondErr(w, err)
		return
	}

	if err := s.repo.InsertEdge(r.Context(), &candidate); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "edge created", "edge_id": candidate.ID})
}

func (s *Server) handleListEdges(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if _, err := s.repo.GetWorkflow(r.Context(), workflowID); err != nil {
		respondErr(w, err)
		return
	}
	edges, err := s.repo.ListEdges(r.Context(), workflowID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"edges": edges})
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if _, err := s.repo.GetWorkflow(r.Context(), workflowID); err != nil {
		respondErr(w, err)
		return
	}

	job, err := s.sched.Submit(r.Context(), workflowID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"job_id": job.ID, "message": "job submitted"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if _, err := s.repo.GetWorkflow(r.Context(), workflowID); err != nil {
		respondErr(w, err)
		return
	}
	jobs, err := s.repo.ListJobs(r.Context(), workflowID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	job, err := s.repo.GetJob(r.Context(), jobID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// MaxUploadBytes bounds the multipart body accepted by handleUploadFile.
const MaxUploadBytes = pdftext.MaxFileBytes + (1 << 20)

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		respondErr(w, engineerr.Wrap(engineerr.Validation, "malformed multipart upload", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondErr(w, engineerr.Wrap(engineerr.Validation, "missing file field", err))
		return
	}
	defer file.Close()

	buf, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes))
	if err != nil {
		respondErr(w, engineerr.Wrap(engineerr.Internal, "read uploaded file", err))
		return
	}
	if _, err := s.extractor.ExtractText(bytes.NewReader(buf), int64(len(buf))); err != nil {
		respondErr(w, err)
		return
	}

	fileID := uuid.NewString()
	size, checksum, err := s.files.Save(fileID, bytes.NewReader(buf))
	if err != nil {
		respondErr(w, err)
		return
	}

	stored := &model.UploadedFile{
		ID:        fileID,
		Filename:  header.Filename,
		MimeType:  "application/pdf",
		SizeBytes: size,
		Path:      fileID,
		SHA256:    checksum,
		CreatedAt: time.Now(),
	}
	if err := s.repo.InsertUploadedFile(r.Context(), stored); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"file_id":  stored.ID,
		"filename": stored.Filename,
		"message":  "file uploaded",
	})
}
