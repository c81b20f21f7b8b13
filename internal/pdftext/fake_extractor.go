package pdftext

import "io"

// FakeExtractor is a deterministic Extractor for executor/agent tests.
type FakeExtractor struct {
	Text string
	Err  error
}

func (f *FakeExtractor) ExtractText(_ io.Reader, _ int64) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.Text, nil
}

var _ Extractor = (*FakeExtractor)(nil)
