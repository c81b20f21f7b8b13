// Package pdftext provides the PDF text extraction capability used by
// extract_text nodes (spec.md §4.2) and the file-upload validation rules
// (spec.md §6).
package pdftext

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/ryoshumei/workflowengine/internal/engineerr"
)

// MaxFileBytes is the upload/extraction size ceiling (spec.md §6).
const MaxFileBytes = 10 * 1024 * 1024

var pdfMagic = []byte("%PDF-")

// Extractor is the capability interface executors and the upload handler
// depend on.
type Extractor interface {
	// ExtractText reads the full PDF content of r and returns its text.
	// It rejects non-PDF content, encrypted documents, oversized input,
	// and documents that yield no extractable text.
	ExtractText(r io.Reader, sizeHint int64) (string, error)
}

// LedongthucExtractor implements Extractor using github.com/ledongthuc/pdf.
type LedongthucExtractor struct{}

func (LedongthucExtractor) ExtractText(r io.Reader, sizeHint int64) (string, error) {
	if sizeHint > MaxFileBytes {
		return "", engineerr.New(engineerr.Validation, "file exceeds 10 MiB limit")
	}

	buf, err := io.ReadAll(io.LimitReader(r, MaxFileBytes+1))
	if err != nil {
		return "", engineerr.Wrap(engineerr.Internal, "failed to read file", err)
	}
	if len(buf) > MaxFileBytes {
		return "", engineerr.New(engineerr.Validation, "file exceeds 10 MiB limit")
	}
	if !bytes.HasPrefix(buf, pdfMagic) {
		return "", engineerr.New(engineerr.Validation, "file is not a PDF")
	}

	reader, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		if isEncryptedErr(err) {
			return "", engineerr.New(engineerr.Validation, "file is encrypted")
		}
		return "", engineerr.Wrap(engineerr.Validation, "pdf extraction failed", err)
	}

	var out bytes.Buffer
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", engineerr.Wrap(engineerr.Validation, "pdf extraction failed", err)
		}
		out.WriteString(text)
	}

	if out.Len() == 0 {
		return "", engineerr.New(engineerr.Validation, "no extractable text in document")
	}
	return out.String(), nil
}

func isEncryptedErr(err error) bool {
	msg := err.Error()
	return bytes.Contains([]byte(msg), []byte("encrypt"))
}

var _ Extractor = LedongthucExtractor{}
