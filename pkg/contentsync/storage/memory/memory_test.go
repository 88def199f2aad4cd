package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breffi/content-sync/pkg/contentsync"
	"github.com/breffi/content-sync/pkg/contentsync/storage/memory"
)

func TestMemoryBackendRoundTrip(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	err := store.UploadWithParams(ctx, strings.NewReader("hello"), contentsync.UploadParams{
		ObjectKey: "blob-1",
		MimeType:  "text/plain",
	})
	require.NoError(t, err)

	meta, err := store.GetObjectMeta(ctx, "blob-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, "text/plain", meta.ContentType)

	rc, err := store.Download(ctx, "blob-1")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestMemoryBackendDefaultMimeType(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "blob-1", strings.NewReader("data")))

	meta, err := store.GetObjectMeta(ctx, "blob-1")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", meta.ContentType)
}

func TestMemoryBackendMissingBlob(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := store.Download(ctx, "nope")
	assert.ErrorIs(t, err, contentsync.ErrBlobNotFound)

	_, err = store.GetObjectMeta(ctx, "nope")
	assert.ErrorIs(t, err, contentsync.ErrBlobNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "nope"), contentsync.ErrBlobNotFound)
}

func TestMemoryBackendDelete(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "blob-1", strings.NewReader("data")))
	require.NoError(t, store.Delete(ctx, "blob-1"))

	_, err := store.Download(ctx, "blob-1")
	assert.ErrorIs(t, err, contentsync.ErrBlobNotFound)
}
