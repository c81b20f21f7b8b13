// Package nodecfg decodes and validates the per-node-type config documents
// described in spec.md §4.3. Each node type has a typed config struct with
// go-playground/validator tags; decoding happens twice per node: once at
// node-creation time (reject early) and once at snapshot time
// (defense-in-depth against config drift between creation and dispatch).
package nodecfg

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/model"
)

var validate = validator.New()

// AllowedModels lists the generative_ai models the engine will call.
var AllowedModels = map[string]bool{
	"gpt-4.1-mini": true,
	"gpt-4o":       true,
	"gpt-5":        true,
}

// AllowedFormatterRules lists the formatter rule names recognized by the
// formatter executor.
var AllowedFormatterRules = map[string]bool{
	"lowercase":    true,
	"uppercase":    true,
	"full_to_half": true,
	"half_to_full": true,
}

// AllowedAgentTools lists the tool names an agent node may whitelist.
var AllowedAgentTools = map[string]bool{
	"llm_call":  true,
	"formatter": true,
}

// ExtractTextConfig is the config schema for extract_text nodes.
type ExtractTextConfig struct {
	FileID string `json:"file_id" validate:"required"`
}

// GenerativeAIConfig is the config schema for generative_ai nodes.
type GenerativeAIConfig struct {
	Model       string   `json:"model" validate:"required"`
	Prompt      string   `json:"prompt" validate:"required,max=4000"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	TopP        *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// FormatterConfig is the config schema for formatter nodes.
type FormatterConfig struct {
	Rules []string `json:"rules" validate:"dive,required"`
}

// AgentBudgets is the budgets sub-document of an agent node config.
type AgentBudgets struct {
	ExecutionTime float64 `json:"execution_time" validate:"required,gt=0"`
}

// AgentConfig is the config schema for agent nodes.
type AgentConfig struct {
	Objective        string       `json:"objective" validate:"required"`
	Tools            []string     `json:"tools" validate:"required,min=1,dive,required"`
	Budgets          AgentBudgets `json:"budgets" validate:"required"`
	MaxConcurrent    int          `json:"max_concurrent,omitempty" validate:"omitempty,gt=0,lte=10"`
	TimeoutSeconds   int          `json:"timeout_seconds,omitempty" validate:"omitempty,gt=0,lte=30"`
	MaxRetries       int          `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=3"`
	MaxIterations    int          `json:"max_iterations,omitempty" validate:"omitempty,gt=0"`
	FormattingRules  []string     `json:"formatting_rules,omitempty"`
}

// DefaultMaxIterations is the default agent loop bound when
// AgentConfig.MaxIterations is unset (spec.md §4.4).
const DefaultMaxIterations = 3

// DefaultMaxTokens is the default generative_ai token cap when unset.
const DefaultMaxTokens = 1000

// Decode unmarshals and validates raw into a pointer target, then runs
// type-specific semantic checks (allowed models, allowed rules, allowed
// tools) that a struct tag alone cannot express.
func Decode(nodeType model.NodeType, raw map[string]any) (any, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Validation, "config is not valid JSON", err)
	}

	switch nodeType {
	case model.NodeExtractText:
		var cfg ExtractTextConfig
		if err := decodeInto(buf, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil

	case model.NodeGenerativeAI:
		var cfg GenerativeAIConfig
		if err := decodeInto(buf, &cfg); err != nil {
			return nil, err
		}
		if !AllowedModels[cfg.Model] {
			return nil, engineerr.New(engineerr.Validation, fmt.Sprintf("unsupported model %q", cfg.Model))
		}
		return &cfg, nil

	case model.NodeFormatter:
		var cfg FormatterConfig
		if err := decodeInto(buf, &cfg); err != nil {
			return nil, err
		}
		for _, rule := range cfg.Rules {
			if !AllowedFormatterRules[rule] {
				return nil, engineerr.New(engineerr.Validation, fmt.Sprintf("unsupported formatter rule %q", rule))
			}
		}
		return &cfg, nil

	case model.NodeAgent:
		var cfg AgentConfig
		if err := decodeInto(buf, &cfg); err != nil {
			return nil, err
		}
		for _, tool := range cfg.Tools {
			if !AllowedAgentTools[tool] {
				return nil, engineerr.New(engineerr.Validation, fmt.Sprintf("unsupported agent tool %q", tool))
			}
		}
		for _, rule := range cfg.FormattingRules {
			if !AllowedFormatterRules[rule] {
				return nil, engineerr.New(engineerr.Validation, fmt.Sprintf("unsupported formatter rule %q", rule))
			}
		}
		return &cfg, nil

	default:
		return nil, engineerr.New(engineerr.Validation, fmt.Sprintf("unknown node type %q", nodeType))
	}
}

func decodeInto(buf []byte, target any) error {
	if err := json.Unmarshal(buf, target); err != nil {
		return engineerr.Wrap(engineerr.Validation, "malformed config", err)
	}
	if err := validate.Struct(target); err != nil {
		return engineerr.Wrap(engineerr.Validation, "config failed validation", err)
	}
	return nil
}

// Validate decodes and discards the result; it is the validate-config
// operation called at node-creation and snapshot time (spec.md §4.3).
func Validate(nodeType model.NodeType, raw map[string]any) error {
	_, err := Decode(nodeType, raw)
	return err
}
