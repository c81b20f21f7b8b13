package nodeexec

import (
	"context"
	"testing"

	"github.com/ryoshumei/workflowengine/internal/llm"
	"github.com/ryoshumei/workflowengine/internal/pdftext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitutePrompt_WithPlaceholder(t *testing.T) {
	out := SubstitutePrompt("Summarize: {text}", "the quick fox")
	assert.Equal(t, "Summarize: the quick fox", out)
}

func TestSubstitutePrompt_WithoutPlaceholder(t *testing.T) {
	out := SubstitutePrompt("Say hello.", "the quick fox")
	assert.Equal(t, "Say hello.\n\nthe quick fox", out)
}

func TestSubstitutePrompt_WithoutPlaceholderEmptyInput(t *testing.T) {
	out := SubstitutePrompt("Say hello.", "")
	assert.Equal(t, "Say hello.", out)
}

func TestExtractTextExecutor_ReadsFileIgnoringInput(t *testing.T) {
	exec, err := ForType("extract_text")
	require.NoError(t, err)

	services := Services{
		Files:     &FakeFileOpener{Files: map[string][]byte{"f1": []byte("%PDF-1.4 hello world")}},
		Extractor: &pdftext.FakeExtractor{Text: "hello world"},
	}

	out, err := exec.Execute(context.Background(), map[string]any{"file_id": "f1"}, "ignored", services)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestExtractTextExecutor_MissingFileFails(t *testing.T) {
	exec, err := ForType("extract_text")
	require.NoError(t, err)

	services := Services{Files: &FakeFileOpener{Files: map[string][]byte{}}}
	_, err = exec.Execute(context.Background(), map[string]any{"file_id": "missing"}, "", services)
	require.Error(t, err)
}

func TestGenerativeAIExecutor_CallsLLMWithSubstitutedPrompt(t *testing.T) {
	exec, err := ForType("generative_ai")
	require.NoError(t, err)

	fake := &llm.FakeClient{Response: "the answer"}
	services := Services{LLM: fake}

	out, err := exec.Execute(context.Background(), map[string]any{
		"model":  "gpt-4o",
		"prompt": "Summarize: {text}",
	}, "source text", services)
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)
	assert.Equal(t, "Summarize: source text", fake.LastPrompt)
	assert.Equal(t, "gpt-4o", fake.LastModel)
}

func TestGenerativeAIExecutor_RejectsUnknownModel(t *testing.T) {
	exec, err := ForType("generative_ai")
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), map[string]any{
		"model":  "not-real",
		"prompt": "hi {text}",
	}, "", Services{LLM: &llm.FakeClient{}})
	require.Error(t, err)
}

func TestFormatterExecutor_AppliesRulesInOrder(t *testing.T) {
	exec, err := ForType("formatter")
	require.NoError(t, err)

	out, err := exec.Execute(context.Background(), map[string]any{"rules": []string{"uppercase"}}, "hello", Services{})
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)
}

func TestForType_UnknownTypeFails(t *testing.T) {
	_, err := ForType("bogus")
	require.Error(t, err)
}
