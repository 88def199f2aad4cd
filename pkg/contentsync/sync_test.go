package contentsync_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breffi/content-sync/pkg/contentsync"
	memoryrepo "github.com/breffi/content-sync/pkg/contentsync/repo/memory"
	memorystorage "github.com/breffi/content-sync/pkg/contentsync/storage/memory"
)

type manifestStub struct {
	entries []contentsync.ManifestEntry
	err     error
}

func (m *manifestStub) FetchManifest(ctx context.Context, scope contentsync.ManifestScope) ([]contentsync.ManifestEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entries, nil
}

type blobStub struct {
	payloads map[string]string
	err      error
	fetches  atomic.Int32
	onFetch  func(blobID string)
}

func (b *blobStub) FetchBlob(ctx context.Context, blobID string) (*contentsync.Blob, error) {
	b.fetches.Add(1)
	if b.onFetch != nil {
		b.onFetch(blobID)
	}
	if b.err != nil {
		return nil, b.err
	}
	payload, ok := b.payloads[blobID]
	if !ok {
		return nil, contentsync.ErrBlobNotFound
	}
	return &contentsync.Blob{
		Body:     io.NopCloser(bytes.NewReader([]byte(payload))),
		MimeType: "application/octet-stream",
		Size:     int64(len(payload)),
	}, nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func newSyncService(t *testing.T, manifests *manifestStub, blobs *blobStub) (contentsync.Service, contentsync.Repository) {
	t.Helper()

	repo := memoryrepo.New()
	opts := []contentsync.Option{
		contentsync.WithRepository(repo),
		contentsync.WithBlobStore(memorystorage.New()),
		contentsync.WithManifestFetcher(manifests),
	}
	if blobs != nil {
		opts = append(opts, contentsync.WithBlobFetcher(blobs))
	}

	svc, err := contentsync.New(opts...)
	require.NoError(t, err)
	return svc, repo
}

func TestSyncCreatesPresentationWithSlides(t *testing.T) {
	manifests := &manifestStub{entries: []contentsync.ManifestEntry{
		{
			EntityType: contentsync.EntityTypePresentation,
			EntityID:   1,
			Revision:   1,
			ParentID:   10,
			Data:       []byte(`{"name":"Product Tour","order":1,"visibility":true}`),
		},
		{
			EntityType: contentsync.EntityTypeSlide,
			EntityID:   101,
			Revision:   1,
			ParentID:   1,
			Data:       []byte(`{"name":"Intro","page_source":"intro.html"}`),
		},
		{
			EntityType: contentsync.EntityTypeSlide,
			EntityID:   102,
			Revision:   1,
			ParentID:   1,
			Data:       []byte(`{"name":"Details","page_source":"details.html"}`),
		},
	}}
	svc, _ := newSyncService(t, manifests, nil)
	ctx := context.Background()

	_, err := svc.SaveClient(ctx, contentsync.SaveClientRequest{ClientID: 10, Name: "Acme"})
	require.NoError(t, err)

	result, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)
	assert.True(t, result.Ok())
	assert.Equal(t, 3, result.Created)
	assert.Zero(t, result.Updated)
	assert.Empty(t, result.Conflicts)

	p, err := svc.GetPresentation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Revision)
	assert.Equal(t, contentsync.SyncStateSynced, p.SyncState)
	assert.Equal(t, "Product Tour", p.Name)
	assert.True(t, p.Visibility)

	slides, err := svc.ListSlidesByPresentation(ctx, 1)
	require.NoError(t, err)
	require.Len(t, slides, 2)
	assert.Equal(t, "intro.html", slides[0].PageSource)

	// A clean pass stamps the client as synchronized.
	client, err := svc.GetClient(ctx, 10)
	require.NoError(t, err)
	assert.NotNil(t, client.Synchronized)
}

func TestSyncUpdatesNewerRevision(t *testing.T) {
	manifests := &manifestStub{}
	svc, _ := newSyncService(t, manifests, nil)
	ctx := context.Background()

	// Seed presentation P1 at revision 2.
	manifests.entries = []contentsync.ManifestEntry{
		{EntityType: contentsync.EntityTypePresentation, EntityID: 1, Revision: 2, ParentID: 10,
			Data: []byte(`{"name":"v2"}`)},
	}
	_, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)

	// Manifest moves to revision 3 and adds a slide.
	manifests.entries = []contentsync.ManifestEntry{
		{EntityType: contentsync.EntityTypePresentation, EntityID: 1, Revision: 3, ParentID: 10,
			Data: []byte(`{"name":"v3"}`)},
		{EntityType: contentsync.EntityTypeSlide, EntityID: 101, Revision: 1, ParentID: 1,
			Data: []byte(`{"name":"S1"}`)},
	}
	result, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Created)

	p, err := svc.GetPresentation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Revision)
	assert.Equal(t, "v3", p.Name)

	// Re-running the same manifest is a pure skip.
	result, err = svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.Updated)
}

func TestSyncConflictLeavesLocalUntouched(t *testing.T) {
	blobs := &blobStub{payloads: map[string]string{"pkg-blob": "bundle"}}
	manifests := &manifestStub{entries: []contentsync.ManifestEntry{
		{EntityType: contentsync.EntityTypePresentation, EntityID: 1, Revision: 1, ParentID: 10},
		{EntityType: contentsync.EntityTypeContentPackage, EntityID: 201, Revision: 5, ParentID: 1,
			BlobID: "pkg-blob"},
	}}
	svc, repo := newSyncService(t, manifests, blobs)
	ctx := context.Background()

	result, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)
	require.True(t, result.Ok())

	local, err := repo.GetContentPackage(ctx, 201)
	require.NoError(t, err)
	require.Equal(t, int64(5), local.Revision)

	// The manifest regresses to revision 4: local wins, nothing changes.
	manifests.entries[1].Revision = 4
	result, err = svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, int64(201), result.Conflicts[0].EntityID)

	after, err := repo.GetContentPackage(ctx, 201)
	require.NoError(t, err)
	assert.Equal(t, int64(5), after.Revision)
	assert.Equal(t, "pkg-blob", after.BlobID)
}

func TestSyncManifestFailureChangesNothing(t *testing.T) {
	fetchErr := errors.New("remote unreachable")
	manifests := &manifestStub{err: fetchErr}
	svc, _ := newSyncService(t, manifests, nil)
	ctx := context.Background()

	result, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)

	var syncErr *contentsync.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "manifest", syncErr.Op)

	presentations, err := svc.ListPresentationsByClient(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, presentations)
}

func TestSyncDownloadsArtifactBlob(t *testing.T) {
	blobs := &blobStub{payloads: map[string]string{"media-blob": "image-bytes"}}
	manifests := &manifestStub{entries: []contentsync.ManifestEntry{
		{EntityType: contentsync.EntityTypePresentation, EntityID: 1, Revision: 1, ParentID: 10},
		{EntityType: contentsync.EntityTypeMediaFile, EntityID: 301, Revision: 1, ParentID: 1,
			BlobID: "media-blob",
			Data:   []byte(`{"title":"Hero","file_name":"hero.png","is_available_for_sharing":true}`)},
	}}
	svc, _ := newSyncService(t, manifests, blobs)
	ctx := context.Background()

	result, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)
	require.True(t, result.Ok())
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, int32(1), blobs.fetches.Load())

	media, err := svc.ListMediaFilesByPresentation(ctx, 1)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "media-blob", media[0].BlobID)
	assert.Equal(t, "Hero", media[0].Title)
	assert.True(t, media[0].IsAvailableForSharing)

	// The payload landed in the local blob store.
	body, err := svc.OpenBlob(ctx, "media-blob")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	// The artifact committed last, so the owner ends up synced.
	p, err := svc.GetPresentation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, contentsync.SyncStateSynced, p.SyncState)
}

func TestSyncSkippedArtifactSettlesOwner(t *testing.T) {
	blobs := &blobStub{payloads: map[string]string{"media-blob": "image-bytes"}}
	manifests := &manifestStub{entries: []contentsync.ManifestEntry{
		{EntityType: contentsync.EntityTypePresentation, EntityID: 1, Revision: 1, ParentID: 10},
		{EntityType: contentsync.EntityTypeMediaFile, EntityID: 301, Revision: 1, ParentID: 1,
			BlobID: "media-blob"},
	}}
	svc, _ := newSyncService(t, manifests, blobs)
	ctx := context.Background()

	_, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)

	// The presentation advances a revision while its media file is unchanged.
	manifests.entries[0].Revision = 2
	result, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)
	require.True(t, result.Ok())
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)

	// No second fetch, and the owner ends the pass synced, not stale.
	assert.Equal(t, int32(1), blobs.fetches.Load())
	p, err := svc.GetPresentation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Revision)
	assert.Equal(t, contentsync.SyncStateSynced, p.SyncState)
}

func TestSyncCancellationLetsInFlightCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs := &blobStub{payloads: map[string]string{"blob-1": "one", "blob-2": "two"}}
	// Cancel the pass while the first artifact fetch is in flight.
	blobs.onFetch = func(string) { cancel() }

	manifests := &manifestStub{entries: []contentsync.ManifestEntry{
		{EntityType: contentsync.EntityTypePresentation, EntityID: 1, Revision: 1, ParentID: 10},
		{EntityType: contentsync.EntityTypeMediaFile, EntityID: 301, Revision: 1, ParentID: 1,
			BlobID: "blob-1"},
		{EntityType: contentsync.EntityTypeMediaFile, EntityID: 302, Revision: 1, ParentID: 1,
			BlobID: "blob-2"},
	}}
	svc, repo := newSyncService(t, manifests, blobs)

	result, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.ErrorIs(t, err, context.Canceled)

	// The in-flight fetch finished and its artifact committed.
	assert.Equal(t, 2, result.Created)
	mf, err := repo.GetMediaFile(context.Background(), 301)
	require.NoError(t, err)
	assert.Equal(t, "blob-1", mf.BlobID)

	body, err := svc.OpenBlob(context.Background(), "blob-1")
	require.NoError(t, err)
	body.Close()

	// The second artifact was never scheduled.
	assert.Equal(t, int32(1), blobs.fetches.Load())
	_, err = repo.GetMediaFile(context.Background(), 302)
	assert.ErrorIs(t, err, contentsync.ErrMediaFileNotFound)

	// Its payload is still missing, so the owner stays stale for the retry.
	p, err := repo.GetPresentation(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, contentsync.SyncStateStale, p.SyncState)
}

func TestSyncArtifactFetchFailureIsIsolated(t *testing.T) {
	blobs := &blobStub{payloads: map[string]string{}}
	manifests := &manifestStub{entries: []contentsync.ManifestEntry{
		{EntityType: contentsync.EntityTypePresentation, EntityID: 1, Revision: 1, ParentID: 10},
		{EntityType: contentsync.EntityTypeMediaFile, EntityID: 301, Revision: 1, ParentID: 1,
			BlobID: "missing-blob"},
		{EntityType: contentsync.EntityTypePresentation, EntityID: 2, Revision: 1, ParentID: 10},
	}}
	svc, _ := newSyncService(t, manifests, blobs)
	ctx := context.Background()

	result, err := svc.Sync(ctx, contentsync.SyncRequest{ClientID: 10})
	require.NoError(t, err)

	// Both presentations commit despite the failed artifact.
	assert.Equal(t, 2, result.Created)
	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, contentsync.ErrBlobNotFound)

	// The owner stays stale because its payload never arrived.
	p, err := svc.GetPresentation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, contentsync.SyncStateStale, p.SyncState)
}
