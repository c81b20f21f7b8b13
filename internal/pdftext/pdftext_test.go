package pdftext

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText_RejectsNonPDF(t *testing.T) {
	var e LedongthucExtractor
	_, err := e.ExtractText(strings.NewReader("not a pdf"), 9)
	require.Error(t, err)
	assert.Equal(t, engineerr.Validation, engineerr.KindOf(err))
}

func TestExtractText_RejectsOversizedHint(t *testing.T) {
	var e LedongthucExtractor
	_, err := e.ExtractText(bytes.NewReader(append([]byte("%PDF-1.4"), make([]byte, 100)...)), MaxFileBytes+1)
	require.Error(t, err)
	assert.Equal(t, engineerr.Validation, engineerr.KindOf(err))
}

func TestExtractText_RejectsOversizedBody(t *testing.T) {
	var e LedongthucExtractor
	body := append([]byte("%PDF-1.4"), make([]byte, MaxFileBytes+1)...)
	_, err := e.ExtractText(bytes.NewReader(body), int64(len(body)))
	require.Error(t, err)
}
