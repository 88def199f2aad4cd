package contentsync_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breffi/content-sync/pkg/contentsync"
	memoryrepo "github.com/breffi/content-sync/pkg/contentsync/repo/memory"
)

type uploaderStub struct {
	accept func(events []*contentsync.CustomEvent) []string
	err    error
	calls  int
}

func (u *uploaderStub) UploadEvents(ctx context.Context, events []*contentsync.CustomEvent) ([]string, error) {
	u.calls++
	if u.err != nil {
		return nil, u.err
	}
	return u.accept(events), nil
}

func acceptAll(events []*contentsync.CustomEvent) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.EventID)
	}
	return ids
}

func newEventService(t *testing.T, uploader *uploaderStub) contentsync.Service {
	t.Helper()
	opts := []contentsync.Option{contentsync.WithRepository(memoryrepo.New())}
	if uploader != nil {
		opts = append(opts, contentsync.WithEventUploader(uploader))
	}
	svc, err := contentsync.New(opts...)
	require.NoError(t, err)
	return svc
}

func TestRecordEvent(t *testing.T) {
	svc := newEventService(t, nil)
	ctx := context.Background()

	event, err := svc.RecordEvent(ctx, contentsync.RecordEventRequest{
		EventKey:   "slide_opened",
		EventValue: "42",
		SessionID:  "session-1",
		ContentID:  7,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.Sync)

	unsynced, err := svc.ListUnsyncedEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "slide_opened", unsynced[0].EventKey)
}

func TestMarkEventsSynced(t *testing.T) {
	svc := newEventService(t, nil)
	ctx := context.Background()

	event, err := svc.RecordEvent(ctx, contentsync.RecordEventRequest{EventKey: "opened"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkEventsSynced(ctx, []string{event.EventID}))

	unsynced, err := svc.ListUnsyncedEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	// The flag flips exactly once; re-marking is rejected.
	err = svc.MarkEventsSynced(ctx, []string{event.EventID})
	assert.ErrorIs(t, err, contentsync.ErrEventAlreadySynced)

	// Marking an unknown id fails without touching anything.
	err = svc.MarkEventsSynced(ctx, []string{"missing"})
	assert.ErrorIs(t, err, contentsync.ErrEventNotFound)

	// Empty input is a no-op.
	assert.NoError(t, svc.MarkEventsSynced(ctx, nil))
}

func TestUploadEvents(t *testing.T) {
	uploader := &uploaderStub{accept: acceptAll}
	svc := newEventService(t, uploader)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := svc.RecordEvent(ctx, contentsync.RecordEventRequest{EventKey: key})
		require.NoError(t, err)
	}

	n, err := svc.UploadEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, uploader.calls)

	unsynced, err := svc.ListUnsyncedEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	// Nothing left to upload: the collector is not called again.
	n, err = svc.UploadEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, uploader.calls)
}

func TestUploadEventsPartialAcceptance(t *testing.T) {
	uploader := &uploaderStub{accept: func(events []*contentsync.CustomEvent) []string {
		// The collector accepts only the first event of the batch.
		return []string{events[0].EventID}
	}}
	svc := newEventService(t, uploader)
	ctx := context.Background()

	_, err := svc.RecordEvent(ctx, contentsync.RecordEventRequest{EventKey: "first"})
	require.NoError(t, err)
	_, err = svc.RecordEvent(ctx, contentsync.RecordEventRequest{EventKey: "second"})
	require.NoError(t, err)

	n, err := svc.UploadEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The rejected event stays queued for the next pass.
	unsynced, err := svc.ListUnsyncedEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "second", unsynced[0].EventKey)
}

func TestUploadEventsFailureKeepsQueue(t *testing.T) {
	uploader := &uploaderStub{err: errors.New("collector down")}
	svc := newEventService(t, uploader)
	ctx := context.Background()

	_, err := svc.RecordEvent(ctx, contentsync.RecordEventRequest{EventKey: "kept"})
	require.NoError(t, err)

	_, err = svc.UploadEvents(ctx)
	require.Error(t, err)

	unsynced, err := svc.ListUnsyncedEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1)
}

func TestUploadEventsWithoutUploader(t *testing.T) {
	svc := newEventService(t, nil)

	_, err := svc.UploadEvents(context.Background())
	assert.Error(t, err)
}
