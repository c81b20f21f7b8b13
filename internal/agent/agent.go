// Package agent implements the Agent Runtime (C3): a bounded
// plan/act/observe loop driven by an explicit state machine rather than
// recursion, with typed termination reasons (spec.md §4.4).
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/ryoshumei/workflowengine/internal/ctxlog"
	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/formatter"
	"github.com/ryoshumei/workflowengine/internal/llm"
	"github.com/ryoshumei/workflowengine/internal/nodecfg"
)

// TerminationReason is recorded in a JobStep's output or error for an
// agent node, per spec.md §4.4.
type TerminationReason string

const (
	ObjectiveMet         TerminationReason = "objective_met"
	IterationLimit       TerminationReason = "iteration_limit"
	TimeBudgetExhausted  TerminationReason = "time_budget_exhausted"
	ToolError            TerminationReason = "tool_error"
	PlannerError         TerminationReason = "planner_error"
)

// ToolCallTimeout bounds a single tool dispatch (spec.md §5).
const ToolCallTimeout = 30 * time.Second

// Action is the planner's proposed next step.
type Action struct {
	Tool   string // "llm_call", "formatter", or "finish"
	Prompt string // used when Tool == "llm_call"
	Rules  []string
}

// Planner decides the next Action given the objective, the current
// scratch text, and the tool whitelist. The default implementation calls
// an llm.Client; tests supply a scripted Planner.
type Planner interface {
	Plan(ctx context.Context, objective, scratch string, tools []string) (Action, error)
}

// LLMPlanner asks the LLM what to do next, parsing a one-line directive
// from its response.
type LLMPlanner struct {
	Client llm.Client
	Model  string
}

func (p *LLMPlanner) Plan(ctx context.Context, objective, scratch string, tools []string) (Action, error) {
	prompt := fmt.Sprintf(
		"Objective: %s\nAvailable tools: %s\nCurrent state: %s\n\nRespond with exactly one of: %s, or \"finish\" if the objective is met.",
		objective, strings.Join(tools, ", "), scratch, strings.Join(tools, ", "))

	raw, err := p.Client.Generate(ctx, p.Model, prompt, llm.GenerationParams{})
	if err != nil {
		return Action{}, engineerr.Wrap(engineerr.UpstreamUnavailable, "planner call failed", err)
	}

	directive := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(directive, "finish"):
		return Action{Tool: "finish"}, nil
	case strings.Contains(directive, "formatter"):
		return Action{Tool: "formatter", Rules: []string{"lowercase"}}, nil
	case strings.Contains(directive, "llm_call"):
		return Action{Tool: "llm_call", Prompt: "Objective: " + objective + "\n\nProcess this text:\n\n" + scratch}, nil
	default:
		return Action{}, engineerr.New(engineerr.Internal, "planner returned an unrecognized directive")
	}
}

// Result is the outcome of a bounded agent run.
type Result struct {
	OutputText string
	Reason     TerminationReason
	Iterations int
	ErrorMessage string
}

// Run executes the bounded plan/act/observe loop described in spec.md
// §4.4. planner is usually an *LLMPlanner wired to services.LLM; tests may
// substitute a scripted Planner. llmClient and llmModel are the LLM client
// and model used for the llm_call tool.
func Run(ctx context.Context, cfg *nodecfg.AgentConfig, inputText string, planner Planner, llmClient llm.Client, llmModel string) Result {
	start := time.Now()
	maxIterations := cfg.MaxIterations
	if maxIterations == 0 {
		maxIterations = nodecfg.DefaultMaxIterations
	}
	budget := time.Duration(cfg.Budgets.ExecutionTime * float64(time.Second))
	toolTimeout := ToolCallTimeout
	if cfg.TimeoutSeconds > 0 {
		toolTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	scratch := inputText
	log := ctxlog.FromContext(ctx)

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if time.Since(start) > budget {
			return Result{OutputText: scratch, Reason: TimeBudgetExhausted, Iterations: iteration - 1}
		}

		planCtx, cancel := context.WithTimeout(ctx, remaining(start, budget, toolTimeout))
		action, err := planner.Plan(planCtx, cfg.Objective, scratch, cfg.Tools)
		cancel()
		if err != nil {
			log.Warn("agent planner failed", "iteration", iteration, "error", err)
			return Result{OutputText: scratch, Reason: PlannerError, Iterations: iteration, ErrorMessage: err.Error()}
		}

		if action.Tool == "finish" {
			return Result{OutputText: scratch, Reason: ObjectiveMet, Iterations: iteration}
		}

		if !contains(cfg.Tools, action.Tool) {
			return Result{OutputText: scratch, Reason: ToolError, Iterations: iteration,
				ErrorMessage: fmt.Sprintf("tool %q is outside the node's whitelist", action.Tool)}
		}

		observed, err := actWithRetry(ctx, start, budget, toolTimeout, action, scratch, llmClient, llmModel, cfg.FormattingRules, maxRetries(cfg.MaxRetries))
		if err != nil {
			return Result{OutputText: scratch, Reason: ToolError, Iterations: iteration, ErrorMessage: err.Error()}
		}
		scratch = observed

		if time.Since(start) > budget {
			return Result{OutputText: scratch, Reason: TimeBudgetExhausted, Iterations: iteration}
		}
	}

	return Result{OutputText: scratch, Reason: IterationLimit, Iterations: maxIterations}
}

func maxRetries(configured int) int {
	if configured <= 0 {
		return 0
	}
	if configured > 3 {
		return 3
	}
	return configured
}

// actWithRetry dispatches a single tool call, retrying transient failures
// (LLM transport/rate-limit errors) with exponential backoff of
// 1s/2s/4s up to retries attempts. formatter has no transient failure mode
// and is never retried. toolTimeout bounds each individual call, taken from
// the node's configured timeout_seconds or ToolCallTimeout if unset.
func actWithRetry(ctx context.Context, start time.Time, budget, toolTimeout time.Duration, action Action, scratch string, llmClient llm.Client, llmModel string, formattingRules []string, retries int) (string, error) {
	switch action.Tool {
	case "formatter":
		rules := formattingRules
		if len(rules) == 0 {
			rules = []string{"lowercase"}
		}
		return formatter.Apply(scratch, rules)

	case "llm_call":
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 1 * time.Second
		b.Multiplier = 2
		b.RandomizationFactor = 0
		bounded := backoff.WithMaxRetries(b, uint64(retries))

		var out string
		err := backoff.Retry(func() error {
			callCtx, cancel := context.WithTimeout(ctx, remaining(start, budget, toolTimeout))
			defer cancel()
			result, err := llmClient.Generate(callCtx, llmModel, action.Prompt, llm.GenerationParams{})
			if err != nil {
				if engineerr.KindOf(err) == engineerr.Validation {
					return backoff.Permanent(err)
				}
				return err
			}
			out = result
			return nil
		}, bounded)
		if err != nil {
			return "", err
		}
		return out, nil

	default:
		return "", engineerr.New(engineerr.Internal, "unreachable tool dispatch: "+action.Tool)
	}
}

func remaining(start time.Time, budget, cap time.Duration) time.Duration {
	left := budget - time.Since(start)
	if left <= 0 {
		return time.Millisecond
	}
	if left > cap {
		return cap
	}
	return left
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
