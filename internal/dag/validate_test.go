package dag

import (
	"testing"
	"time"

	"github.com/ryoshumei/workflowengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeAt(id string, order int) model.Node {
	return model.Node{ID: id, WorkflowID: "w1", Type: model.NodeFormatter, OrderIndex: order, CreatedAt: time.Now()}
}

func edge(from, to string) model.Edge {
	return model.Edge{ID: from + "-" + to, WorkflowID: "w1", FromNodeID: from, ToNodeID: to}
}

func TestTopologicalBatches_Diamond(t *testing.T) {
	nodes := []model.Node{nodeAt("A", 0), nodeAt("B", 1), nodeAt("C", 2), nodeAt("D", 3)}
	edges := []model.Edge{edge("A", "B"), edge("A", "C"), edge("B", "D"), edge("C", "D")}

	batches, err := TopologicalBatches("w1", nodes, edges)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"A"}, batches[0])
	assert.Equal(t, []string{"B", "C"}, batches[1])
	assert.Equal(t, []string{"D"}, batches[2])
}

func TestTopologicalBatches_LinearFallbackWhenNoEdges(t *testing.T) {
	nodes := []model.Node{nodeAt("B", 1), nodeAt("A", 0), nodeAt("C", 2)}

	batches, err := TopologicalBatches("w1", nodes, nil)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"A"}, batches[0])
	assert.Equal(t, []string{"B"}, batches[1])
	assert.Equal(t, []string{"C"}, batches[2])
}

func TestValidateDAG_RejectsCycle(t *testing.T) {
	nodes := []model.Node{nodeAt("A", 0), nodeAt("B", 1), nodeAt("C", 2)}
	edges := []model.Edge{edge("A", "B"), edge("B", "C"), edge("C", "A")}

	err := ValidateDAG("w1", nodes, edges)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestValidateDAG_RejectsDuplicateEdge(t *testing.T) {
	nodes := []model.Node{nodeAt("A", 0), nodeAt("B", 1)}
	edges := []model.Edge{edge("A", "B"), edge("A", "B")}

	err := ValidateDAG("w1", nodes, edges)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate edge")
}

func TestValidateDAG_RejectsCrossWorkflowEdge(t *testing.T) {
	nodes := []model.Node{nodeAt("A", 0), nodeAt("B", 1)}
	badEdge := edge("A", "B")
	badEdge.WorkflowID = "other"

	err := ValidateDAG("w1", nodes, []model.Edge{badEdge})
	require.Error(t, err)
}

func TestPredecessors_SortedAlphabetically(t *testing.T) {
	nodes := []model.Node{nodeAt("A", 0), nodeAt("B", 1), nodeAt("C", 2), nodeAt("D", 3)}
	edges := []model.Edge{edge("B", "D"), edge("A", "D"), edge("C", "D")}

	preds, err := Predecessors("w1", nodes, edges, "D")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, preds)
}
