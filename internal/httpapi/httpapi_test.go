package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/filestore"
	"github.com/ryoshumei/workflowengine/internal/pdftext"
	"github.com/ryoshumei/workflowengine/internal/repository"
	"github.com/ryoshumei/workflowengine/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingCoordinator struct{}

func (blockingCoordinator) RunJob(_ context.Context, _ string) {}

func newTestServer(t *testing.T) (*httptest.Server, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	sched := scheduler.New(repo, blockingCoordinator{})
	router := NewRouter(repo, sched, &pdftext.FakeExtractor{Text: "hello"}, store)
	return httptest.NewServer(router), repo
}

func createWorkflow(t *testing.T, baseURL string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": "wf"})
	resp, err := http.Post(baseURL+"/workflows", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created["id"]
}

func createNode(t *testing.T, baseURL, workflowID string, nodeType string, config map[string]any) string {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"node_type": nodeType, "config": config})
	resp, err := http.Post(baseURL+"/workflows/"+workflowID+"/nodes", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created["node_id"]
}

func TestCreateAndGetWorkflow(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	id := createWorkflow(t, srv.URL)

	getResp, err := http.Get(srv.URL + "/workflows/" + id)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestGetWorkflow_NotFoundReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/workflows/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateNode_RejectsInvalidConfig(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	workflowID := createWorkflow(t, srv.URL)

	body, _ := json.Marshal(map[string]any{"node_type": "formatter", "config": map[string]any{"rules": []string{"bogus"}}})
	resp, err := http.Post(srv.URL+"/workflows/"+workflowID+"/nodes", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateNode_AcceptsValidConfig(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	workflowID := createWorkflow(t, srv.URL)
	nodeID := createNode(t, srv.URL, workflowID, "formatter", map[string]any{"rules": []string{"uppercase"}})
	assert.NotEmpty(t, nodeID)
}

func TestCreateEdge_RejectsCycle(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	workflowID := createWorkflow(t, srv.URL)
	a := createNode(t, srv.URL, workflowID, "formatter", map[string]any{"rules": []string{"uppercase"}})
	b := createNode(t, srv.URL, workflowID, "formatter", map[string]any{"rules": []string{"lowercase"}})

	edgeBody, _ := json.Marshal(map[string]string{"from_node_id": a, "to_node_id": b})
	resp, err := http.Post(srv.URL+"/workflows/"+workflowID+"/edges", "application/json", bytes.NewReader(edgeBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cycleBody, _ := json.Marshal(map[string]string{"from_node_id": b, "to_node_id": a})
	cycleResp, err := http.Post(srv.URL+"/workflows/"+workflowID+"/edges", "application/json", bytes.NewReader(cycleBody))
	require.NoError(t, err)
	defer cycleResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, cycleResp.StatusCode)
}

func TestRunWorkflow_RejectsWhenPendingQueueFull(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	workflowID := createWorkflow(t, srv.URL)
	createNode(t, srv.URL, workflowID, "formatter", map[string]any{"rules": []string{"uppercase"}})

	var lastCode int
	for i := 0; i < scheduler.MaxPendingPerWorkflow+scheduler.MaxRunningPerWorkflow+1; i++ {
		resp, err := http.Post(srv.URL+"/workflows/"+workflowID+"/run", "application/json", nil)
		require.NoError(t, err)
		lastCode = resp.StatusCode
		resp.Body.Close()
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestGetJob_NotFoundReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/jobs/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func multipartUpload(t *testing.T, baseURL, filename string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, baseURL+"/files", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUploadFile_ValidPDFSucceeds(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := multipartUpload(t, srv.URL, "doc.pdf", []byte("%PDF-1.4 fake content"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created["file_id"])
}

func TestUploadFile_RejectsWhenExtractorErrors(t *testing.T) {
	repo := repository.NewMemoryRepository()
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	sched := scheduler.New(repo, blockingCoordinator{})
	router := NewRouter(repo, sched, &pdftext.FakeExtractor{Err: engineerr.New(engineerr.Validation, "file is not a PDF")}, store)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp := multipartUpload(t, srv.URL, "doc.txt", []byte("not a pdf"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
