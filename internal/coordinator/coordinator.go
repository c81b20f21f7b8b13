// Package coordinator implements the Run Coordinator (C5): batch-driven
// dispatch of an admitted Job's nodes, AND-join input aggregation,
// fail-fast-with-sibling-drain, and sink concatenation into final_output
// (spec.md §4.5).
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ryoshumei/workflowengine/internal/agent"
	"github.com/ryoshumei/workflowengine/internal/ctxlog"
	"github.com/ryoshumei/workflowengine/internal/dag"
	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/model"
	"github.com/ryoshumei/workflowengine/internal/nodecfg"
	"github.com/ryoshumei/workflowengine/internal/nodeexec"
	"github.com/ryoshumei/workflowengine/internal/repository"
)

// AgentModel is the LLM model the bounded agent planner uses. It is fixed
// rather than config-driven because spec.md §4.3's agent config schema
// carries no model field of its own.
const AgentModel = "gpt-4.1-mini"

// Coordinator runs admitted Jobs to completion. It satisfies
// scheduler.Runner.
type Coordinator struct {
	repo     repository.Repository
	services nodeexec.Services
}

// New constructs a Coordinator. services is the capability bundle handed
// to every node executor and to the agent runtime's LLM calls.
func New(repo repository.Repository, services nodeexec.Services) *Coordinator {
	return &Coordinator{repo: repo, services: services}
}

// RunJob executes jobID to completion, persisting JobSteps and the final
// Job status. It never returns an error to the caller. Failures after the
// Job has been loaded and marked Running are recorded on the Job/JobStep
// records themselves; a Job that cannot be loaded or marked Running is only
// logged.
func (c *Coordinator) RunJob(ctx context.Context, jobID string) {
	requestID := uuid.NewString()
	log := ctxlog.FromContext(ctx).With("request_id", requestID, "job_id", jobID)
	ctx = ctxlog.WithLogger(ctx, log)

	job, err := c.repo.GetJob(ctx, jobID)
	if err != nil {
		log.Error("coordinator: job not found", "job_id", jobID, "error", err)
		return
	}

	job.Status = model.StatusRunning
	job.StartedAt = time.Now()
	if err := c.repo.UpdateJob(ctx, job); err != nil {
		log.Error("coordinator: failed to mark job running", "job_id", jobID, "error", err)
		return
	}

	nodes, err := c.repo.ListNodes(ctx, job.WorkflowID)
	if err != nil {
		c.fail(ctx, job, "load nodes: "+err.Error())
		return
	}
	edges, err := c.repo.ListEdges(ctx, job.WorkflowID)
	if err != nil {
		c.fail(ctx, job, "load edges: "+err.Error())
		return
	}

	batches, err := dag.TopologicalBatches(job.WorkflowID, nodes, edges)
	if err != nil {
		c.fail(ctx, job, "compute batches: "+err.Error())
		return
	}

	byID := make(map[string]model.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	graph, err := dag.Build(job.WorkflowID, nodes, edges)
	if err != nil {
		c.fail(ctx, job, "build graph: "+err.Error())
		return
	}

	outputs := make(map[string]string, len(nodes))

	for _, batch := range batches {
		results, batchErr := c.runBatch(ctx, job, batch, byID, graph, outputs)
		for id, out := range results {
			outputs[id] = out
		}
		if batchErr != nil {
			c.fail(ctx, job, batchErr.Error())
			return
		}
	}

	finalOutput := sinkConcatenation(nodes, edges, outputs)
	job.Status = model.StatusSucceeded
	finished := time.Now()
	job.FinishedAt = &finished
	job.FinalOutput = &finalOutput
	if err := c.repo.UpdateJob(ctx, job); err != nil {
		log.Error("coordinator: failed to mark job succeeded", "job_id", jobID, "error", err)
		return
	}

	log.Info("job succeeded", "job_id", jobID)
}

// runBatch dispatches every node in a batch concurrently via errgroup and
// waits for all of them, matching spec.md §5's "already-dispatched
// in-batch peers run to completion" rule even when one of them fails.
func (c *Coordinator) runBatch(ctx context.Context, job *model.Job, batch []string, byID map[string]model.Node, graph *dag.Graph, outputs map[string]string) (map[string]string, error) {
	results := make(map[string]string)
	var mu resultMutex

	var g errgroup.Group
	var firstErr error

	for _, nodeID := range batch {
		nodeID := nodeID
		g.Go(func() error {
			node := byID[nodeID]
			inputText, err := resolveInput(graph, nodeID, outputs)
			if err != nil {
				return fmt.Errorf("%s: %w", nodeID, err)
			}

			out, execErr := c.executeNode(ctx, job, node, inputText)
			mu.set(&results, nodeID, out)
			if execErr != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %s", nodeID, execErr.Error())
				}
				return execErr
			}
			return nil
		})
	}

	_ = g.Wait()
	if firstErr != nil {
		return results, firstErr
	}
	return results, nil
}

// resultMutex serializes writes into the shared results map from
// concurrent batch goroutines.
type resultMutex struct {
	mu sync.Mutex
}

func (m *resultMutex) set(results *map[string]string, id, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	(*results)[id] = value
}

// resolveInput implements the AND-join described in spec.md §4.5:
// predecessors' outputs, sorted alphabetically by node id, joined with a
// blank line.
func resolveInput(graph *dag.Graph, nodeID string, outputs map[string]string) (string, error) {
	preds, err := graph.Predecessors(nodeID)
	if err != nil {
		return "", err
	}
	if len(preds) == 0 {
		return "", nil
	}
	sort.Strings(preds)
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		parts = append(parts, outputs[p])
	}
	return strings.Join(parts, "\n\n"), nil
}

// executeNode runs one node, persisting its JobStep regardless of outcome.
func (c *Coordinator) executeNode(ctx context.Context, job *model.Job, node model.Node, inputText string) (string, error) {
	stepID := uuid.NewString()
	started := time.Now()
	truncatedInput := model.TruncateForStorage(inputText)

	step := &model.JobStep{
		ID:             stepID,
		JobID:          job.ID,
		NodeID:         &node.ID,
		NodeType:       node.Type,
		Status:         model.StatusRunning,
		StartedAt:      started,
		InputText:      &truncatedInput,
		ConfigSnapshot: node.Config,
		Attempt:        1,
	}
	if err := c.repo.InsertJobStep(ctx, step); err != nil {
		return "", engineerr.Wrap(engineerr.Internal, "persist job step", err)
	}

	var output string
	var execErr error

	if node.Type == model.NodeAgent {
		var iterations int
		output, iterations, execErr = c.runAgentNode(ctx, node.Config, inputText)
		step.Attempt = iterations
	} else {
		exec, err := nodeexec.ForType(node.Type)
		if err != nil {
			execErr = err
		} else {
			output, execErr = exec.Execute(ctx, node.Config, inputText, c.services)
		}
	}

	finished := time.Now()
	step.FinishedAt = &finished
	if output != "" {
		truncatedOutput := model.TruncateForStorage(output)
		step.OutputText = &truncatedOutput
	}
	if execErr != nil {
		msg := execErr.Error()
		step.Status = model.StatusFailed
		step.ErrorMessage = &msg
	} else {
		step.Status = model.StatusSucceeded
	}
	if err := c.repo.UpdateJobStep(ctx, step); err != nil {
		ctxlog.FromContext(ctx).Error("persist job step result failed", "step_id", stepID, "error", err)
	}

	return output, execErr
}

// runAgentNode runs the bounded agent loop and returns its output alongside
// result.Iterations so executeNode can surface it as the JobStep's Attempt
// (spec.md §3's audit-trail requirement that a reviewer can see how many
// attempts an agent node took).
func (c *Coordinator) runAgentNode(ctx context.Context, configSnapshot map[string]any, inputText string) (string, int, error) {
	decoded, err := nodecfg.Decode(model.NodeAgent, configSnapshot)
	if err != nil {
		return "", 0, err
	}
	cfg := decoded.(*nodecfg.AgentConfig)

	planner := &agent.LLMPlanner{Client: c.services.LLM, Model: AgentModel}
	result := agent.Run(ctx, cfg, inputText, planner, c.services.LLM, AgentModel)

	switch result.Reason {
	case agent.ObjectiveMet:
		return result.OutputText, result.Iterations, nil
	case agent.IterationLimit, agent.TimeBudgetExhausted:
		return result.OutputText, result.Iterations, engineerr.New(engineerr.Budget, "agent terminated: "+string(result.Reason))
	default:
		return result.OutputText, result.Iterations, engineerr.New(engineerr.Internal, string(result.Reason)+": "+result.ErrorMessage)
	}
}

func (c *Coordinator) fail(ctx context.Context, job *model.Job, message string) {
	job.Status = model.StatusFailed
	finished := time.Now()
	job.FinishedAt = &finished
	job.ErrorMessage = &message
	if err := c.repo.UpdateJob(ctx, job); err != nil {
		ctxlog.FromContext(ctx).Error("coordinator: failed to mark job failed", "job_id", job.ID, "error", err)
	}
}

// sinkConcatenation implements spec.md §4.5's final_output rule: the
// alphabetical-by-id concatenation of outputs from nodes with no
// successors.
func sinkConcatenation(nodes []model.Node, edges []model.Edge, outputs map[string]string) string {
	hasSuccessor := make(map[string]bool, len(nodes))
	for _, e := range edges {
		hasSuccessor[e.FromNodeID] = true
	}

	var sinks []string
	for _, n := range nodes {
		if !hasSuccessor[n.ID] {
			sinks = append(sinks, n.ID)
		}
	}
	sort.Strings(sinks)

	parts := make([]string, 0, len(sinks))
	for _, id := range sinks {
		parts = append(parts, outputs[id])
	}
	return strings.Join(parts, "\n\n")
}
