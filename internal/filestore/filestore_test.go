package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndOpenFile_RoundTrips(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	content := []byte("%PDF-1.4 some content")
	size, checksum, err := store.Save("file-1", bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	want := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(want[:]), checksum)

	f, err := store.OpenFile(context.Background(), "file-1")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, size, f.Size())
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestOpenFile_MissingReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.OpenFile(context.Background(), "missing")
	assert.Error(t, err)
}

func TestOpenFile_ReadsFreshEveryCall(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Save("file-2", bytes.NewReader([]byte("first")))
	require.NoError(t, err)

	f1, err := store.OpenFile(context.Background(), "file-2")
	require.NoError(t, err)
	first, _ := io.ReadAll(f1)
	f1.Close()

	_, _, err = store.Save("file-2", bytes.NewReader([]byte("second-version")))
	require.NoError(t, err)

	f2, err := store.OpenFile(context.Background(), "file-2")
	require.NoError(t, err)
	second, _ := io.ReadAll(f2)
	f2.Close()

	assert.Equal(t, "first", string(first))
	assert.Equal(t, "second-version", string(second))
}
