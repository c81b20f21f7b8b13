// Package nodeexec implements the Node Executor Framework (C2): a
// capability interface each node type satisfies, dispatching on
// model.NodeType, plus the services bundle executors receive.
package nodeexec

import (
	"context"
	"strings"
	"time"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/formatter"
	"github.com/ryoshumei/workflowengine/internal/llm"
	"github.com/ryoshumei/workflowengine/internal/model"
	"github.com/ryoshumei/workflowengine/internal/nodecfg"
	"github.com/ryoshumei/workflowengine/internal/pdftext"
)

// Clock is the time-source capability; production code uses RealClock,
// tests supply a fixed time.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock with time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FileOpener opens an uploaded file's content by ID, returning its reader
// and size. Implemented by the directory-backed filestore.Store.
type FileOpener interface {
	OpenFile(ctx context.Context, fileID string) (r ReadCloserWithSize, err error)
}

// ReadCloserWithSize bundles a file's content reader with its size so
// extract_text can enforce the size ceiling without a second round trip.
type ReadCloserWithSize interface {
	Read(p []byte) (int, error)
	Close() error
	Size() int64
}

// Services is the capability bundle every executor receives (spec.md §4.2).
type Services struct {
	Files     FileOpener
	Extractor pdftext.Extractor
	LLM       llm.Client
	Clock     Clock
}

// Executor is the capability interface each node type implements.
type Executor interface {
	Execute(ctx context.Context, configSnapshot map[string]any, inputText string, services Services) (string, error)
}

// ForType returns the Executor for a given node type, or an
// engineerr.Validation error for an unknown type. agent nodes are handled
// by the caller via the internal/agent package (C3), not here.
func ForType(nodeType model.NodeType) (Executor, error) {
	switch nodeType {
	case model.NodeExtractText:
		return extractTextExecutor{}, nil
	case model.NodeGenerativeAI:
		return generativeAIExecutor{}, nil
	case model.NodeFormatter:
		return formatterExecutor{}, nil
	default:
		return nil, engineerr.New(engineerr.Validation, "no direct executor for node type "+string(nodeType))
	}
}

type extractTextExecutor struct{}

func (extractTextExecutor) Execute(ctx context.Context, configSnapshot map[string]any, _ string, services Services) (string, error) {
	cfg, err := nodecfg.Decode(model.NodeExtractText, configSnapshot)
	if err != nil {
		return "", err
	}
	c := cfg.(*nodecfg.ExtractTextConfig)

	f, err := services.Files.OpenFile(ctx, c.FileID)
	if err != nil {
		return "", err
	}
	defer f.Close()

	text, err := services.Extractor.ExtractText(f, f.Size())
	if err != nil {
		return "", err
	}
	return text, nil
}

type generativeAIExecutor struct{}

func (generativeAIExecutor) Execute(ctx context.Context, configSnapshot map[string]any, inputText string, services Services) (string, error) {
	cfg, err := nodecfg.Decode(model.NodeGenerativeAI, configSnapshot)
	if err != nil {
		return "", err
	}
	c := cfg.(*nodecfg.GenerativeAIConfig)

	prompt := SubstitutePrompt(c.Prompt, inputText)

	params := llm.GenerationParams{Temperature: c.Temperature, TopP: c.TopP}
	if c.MaxTokens != nil {
		params.MaxTokens = c.MaxTokens
	} else {
		def := nodecfg.DefaultMaxTokens
		params.MaxTokens = &def
	}

	return services.LLM.Generate(ctx, c.Model, prompt, params)
}

// SubstitutePrompt implements spec.md §4.2's generative_ai prompt binding:
// literal substitution of "{text}" with inputText, or, when the
// placeholder is absent, the prompt verbatim followed by a blank line and
// inputText (or the prompt alone when inputText is empty).
func SubstitutePrompt(prompt, inputText string) string {
	if strings.Contains(prompt, "{text}") {
		return strings.ReplaceAll(prompt, "{text}", inputText)
	}
	if inputText == "" {
		return prompt
	}
	return prompt + "\n\n" + inputText
}

type formatterExecutor struct{}

func (formatterExecutor) Execute(_ context.Context, configSnapshot map[string]any, inputText string, _ Services) (string, error) {
	cfg, err := nodecfg.Decode(model.NodeFormatter, configSnapshot)
	if err != nil {
		return "", err
	}
	c := cfg.(*nodecfg.FormatterConfig)
	return formatter.Apply(inputText, c.Rules)
}
