package dag

import (
	"fmt"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/model"
)

// Build constructs a Graph from a workflow's nodes and edges, validating
// that every edge's endpoints exist in the same workflow and that there are
// no duplicate edges with identical endpoints+ports. It does not check for
// cycles; call DetectCycles or Batches for that.
func Build(workflowID string, nodes []model.Node, edges []model.Edge) (*Graph, error) {
	g := New()
	for _, n := range nodes {
		if n.WorkflowID != workflowID {
			return nil, engineerr.New(engineerr.Validation,
				fmt.Sprintf("node %s does not belong to workflow %s", n.ID, workflowID))
		}
		g.AddNode(n.ID, n.OrderIndex, n.CreatedAt)
	}

	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e.WorkflowID != workflowID {
			return nil, engineerr.New(engineerr.Validation,
				fmt.Sprintf("edge %s does not belong to workflow %s", e.ID, workflowID))
		}
		key := e.FromNodeID + "|" + e.ToNodeID + "|" + e.FromPort + "|" + e.ToPort
		if seen[key] {
			return nil, engineerr.New(engineerr.Validation,
				fmt.Sprintf("duplicate edge %s -> %s (from_port=%q, to_port=%q)", e.FromNodeID, e.ToNodeID, e.FromPort, e.ToPort))
		}
		seen[key] = true

		if err := g.AddEdge(e.FromNodeID, e.ToNodeID); err != nil {
			return nil, engineerr.Wrap(engineerr.Validation, "invalid edge reference", err)
		}
	}

	return g, nil
}

// ValidateDAG verifies the node/edge set has no cycles and no malformed
// edges. It is the operation §4.1 calls validate_dag, run when an edge is
// created; at job-dispatch time the coordinator re-checks the same
// conditions through TopologicalBatches and Build.
func ValidateDAG(workflowID string, nodes []model.Node, edges []model.Edge) error {
	g, err := Build(workflowID, nodes, edges)
	if err != nil {
		return err
	}
	if err := g.DetectCycles(); err != nil {
		return engineerr.Wrap(engineerr.Validation, "cycle detected in workflow graph", err)
	}
	return nil
}

// TopologicalBatches returns the ordered list of batches for a workflow's
// nodes and edges, falling back to a linear order_index-based schedule if
// the workflow has no edges (spec.md §4.1).
func TopologicalBatches(workflowID string, nodes []model.Node, edges []model.Edge) ([][]string, error) {
	g, err := Build(workflowID, nodes, edges)
	if err != nil {
		return nil, err
	}
	batches, err := g.Batches(len(edges) > 0)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Validation, "cycle detected in workflow graph", err)
	}
	return batches, nil
}

// Predecessors returns the alphabetically sorted predecessor node IDs for
// a node, per spec.md §4.1.
func Predecessors(workflowID string, nodes []model.Node, edges []model.Edge, nodeID string) ([]string, error) {
	g, err := Build(workflowID, nodes, edges)
	if err != nil {
		return nil, err
	}
	return g.Predecessors(nodeID)
}
