// Package filestore implements the flat, content-directory file store
// spec.md §6 describes: uploaded PDF blobs are written once, keyed by
// file_id, and read back (re-read on every extract_text run, never
// cached) by the node executor framework.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
	"github.com/ryoshumei/workflowengine/internal/nodeexec"
)

// Store is a directory-backed, read-after-write file store.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, engineerr.Wrap(engineerr.Internal, "create file store directory", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(fileID string) string {
	return filepath.Join(s.dir, fileID)
}

// Save writes r's content under fileID, returning its size and SHA-256
// checksum for UploadedFile.SHA256.
func (s *Store) Save(fileID string, r io.Reader) (size int64, sha256Hex string, err error) {
	path := s.pathFor(fileID)
	f, err := os.Create(path)
	if err != nil {
		return 0, "", engineerr.Wrap(engineerr.Internal, "create file", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(f, io.TeeReader(r, h))
	if err != nil {
		return 0, "", engineerr.Wrap(engineerr.Internal, "write file", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

type storedFile struct {
	*os.File
	size int64
}

func (f *storedFile) Size() int64 { return f.size }

// OpenFile implements nodeexec.FileOpener by opening the file fresh on
// every call (spec.md §9's Open Question: no caching between reads).
func (s *Store) OpenFile(_ context.Context, fileID string) (nodeexec.ReadCloserWithSize, error) {
	path := s.pathFor(fileID)
	info, err := os.Stat(path)
	if err != nil {
		return nil, engineerr.New(engineerr.NotFound, "file not found: "+fileID)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Internal, "open file", err)
	}
	return &storedFile{File: f, size: info.Size()}, nil
}

var _ nodeexec.FileOpener = (*Store)(nil)
