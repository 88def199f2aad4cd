package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breffi/content-sync/pkg/contentsync"
	"github.com/breffi/content-sync/pkg/contentsync/storage/fs"
)

func newFSBackend(t *testing.T) (contentsync.BlobStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := fs.New(fs.Config{BaseDir: dir})
	require.NoError(t, err)
	return store, dir
}

func TestFSBackendRequiresBaseDir(t *testing.T) {
	_, err := fs.New(fs.Config{})
	assert.Error(t, err)
}

func TestFSBackendRoundTrip(t *testing.T) {
	store, _ := newFSBackend(t)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "presentations/1/blob-1", strings.NewReader("payload")))

	meta, err := store.GetObjectMeta(ctx, "presentations/1/blob-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), meta.Size)

	rc, err := store.Download(ctx, "presentations/1/blob-1")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestFSBackendMissingBlob(t *testing.T) {
	store, _ := newFSBackend(t)
	ctx := context.Background()

	_, err := store.Download(ctx, "nope")
	assert.ErrorIs(t, err, contentsync.ErrBlobNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "nope"), contentsync.ErrBlobNotFound)
}

func TestFSBackendDeleteCleansEmptyDirs(t *testing.T) {
	store, dir := newFSBackend(t)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "a/b/blob-1", strings.NewReader("x")))
	require.NoError(t, store.Delete(ctx, "a/b/blob-1"))

	// The intermediate directories are pruned once empty.
	_, err := os.Stat(filepath.Join(dir, "a"))
	assert.True(t, os.IsNotExist(err))
}
