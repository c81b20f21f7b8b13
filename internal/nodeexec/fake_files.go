package nodeexec

import (
	"bytes"
	"context"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
)

// FakeFileOpener serves in-memory byte slices keyed by file ID, for
// executor tests that exercise extract_text without a real repository.
type FakeFileOpener struct {
	Files map[string][]byte
}

type fakeFile struct {
	*bytes.Reader
	size int64
}

func (f *fakeFile) Close() error { return nil }
func (f *fakeFile) Size() int64  { return f.size }

func (o *FakeFileOpener) OpenFile(_ context.Context, fileID string) (ReadCloserWithSize, error) {
	buf, ok := o.Files[fileID]
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "file not found: "+fileID)
	}
	return &fakeFile{Reader: bytes.NewReader(buf), size: int64(len(buf))}, nil
}

var _ FileOpener = (*FakeFileOpener)(nil)
