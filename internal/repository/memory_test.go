package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_WorkflowRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	w := &model.Workflow{ID: "w1", Name: "test", CreatedAt: time.Now()}
	require.NoError(t, repo.InsertWorkflow(ctx, w))

	got, err := repo.GetWorkflow(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "test", got.Name)

	_, err = repo.GetWorkflow(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, engineerr.NotFound, engineerr.KindOf(err))
}

func TestMemoryRepository_ListNodesSortedByID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InsertNode(ctx, &model.Node{ID: "B", WorkflowID: "w1"}))
	require.NoError(t, repo.InsertNode(ctx, &model.Node{ID: "A", WorkflowID: "w1"}))
	require.NoError(t, repo.InsertNode(ctx, &model.Node{ID: "C", WorkflowID: "other"}))

	nodes, err := repo.ListNodes(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "A", nodes[0].ID)
	assert.Equal(t, "B", nodes[1].ID)
}

func TestMemoryRepository_SubmitJob_RejectsWhenPendingQueueFull(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		j := &model.Job{ID: string(rune('a' + i)), WorkflowID: "w1", Status: model.StatusPending, StartedAt: time.Now()}
		require.NoError(t, repo.SubmitJob(ctx, j, 2, 2))
	}

	j := &model.Job{ID: "overflow", WorkflowID: "w1", Status: model.StatusPending, StartedAt: time.Now()}
	err := repo.SubmitJob(ctx, j, 2, 2)
	require.Error(t, err)
	assert.Equal(t, engineerr.QueueFull, engineerr.KindOf(err))
}

func TestMemoryRepository_SubmitJob_ConcurrentSubmissionsRespectCap(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j := &model.Job{ID: string(rune('a' + i)), WorkflowID: "w1", Status: model.StatusPending, StartedAt: time.Now()}
			if err := repo.SubmitJob(ctx, j, 2, 20); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, accepted)
}

func TestMemoryRepository_SweepStaleFailsOldJobs(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	old := &model.Job{ID: "old", WorkflowID: "w1", Status: model.StatusRunning, StartedAt: time.Now().Add(-time.Hour)}
	fresh := &model.Job{ID: "fresh", WorkflowID: "w1", Status: model.StatusRunning, StartedAt: time.Now()}
	require.NoError(t, repo.InsertJob(ctx, old))
	require.NoError(t, repo.InsertJob(ctx, fresh))

	n, err := repo.SweepStale(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetJob(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "interrupted", *got.ErrorMessage)

	stillRunning, err := repo.GetJob(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, stillRunning.Status)
}
