package formatter

import (
	"testing"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_EmptyRulesIsNoOp(t *testing.T) {
	out, err := Apply("Hello World", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", out)
}

func TestApply_Lowercase(t *testing.T) {
	out, err := Apply("Hello World", []string{"lowercase"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestApply_Uppercase(t *testing.T) {
	out, err := Apply("Hello World", []string{"uppercase"})
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", out)
}

func TestApply_HalfToFull(t *testing.T) {
	out, err := Apply("AB 12", []string{"half_to_full"})
	require.NoError(t, err)
	assert.Equal(t, "ＡＢ　１２", out)
}

func TestApply_FullToHalf(t *testing.T) {
	out, err := Apply("ＡＢ　１２", []string{"full_to_half"})
	require.NoError(t, err)
	assert.Equal(t, "AB 12", out)
}

func TestApply_RoundTrip(t *testing.T) {
	original := "Go 2026!"
	full, err := Apply(original, []string{"half_to_full"})
	require.NoError(t, err)
	half, err := Apply(full, []string{"full_to_half"})
	require.NoError(t, err)
	assert.Equal(t, original, half)
}

func TestApply_RulesInOrder(t *testing.T) {
	out, err := Apply("Hello", []string{"uppercase", "lowercase"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestApply_UnknownRuleFails(t *testing.T) {
	_, err := Apply("Hello", []string{"reverse"})
	require.Error(t, err)
	assert.Equal(t, engineerr.Validation, engineerr.KindOf(err))
}
