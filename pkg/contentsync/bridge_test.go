package contentsync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breffi/content-sync/pkg/contentsync"
	memoryrepo "github.com/breffi/content-sync/pkg/contentsync/repo/memory"
)

func newBridgeService(t *testing.T, opts ...contentsync.Option) contentsync.Service {
	t.Helper()
	opts = append([]contentsync.Option{contentsync.WithRepository(memoryrepo.New())}, opts...)
	svc, err := contentsync.New(opts...)
	require.NoError(t, err)
	return svc
}

func TestBridgeFIFOOrdering(t *testing.T) {
	svc := newBridgeService(t)
	ctx := context.Background()

	first, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{Queue: "outbound", Command: "open"})
	require.NoError(t, err)
	second, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{Queue: "outbound", Command: "navigate"})
	require.NoError(t, err)
	require.Greater(t, second.Order, first.Order)

	// Consumption follows enqueue order: answer the head, then the next.
	head, err := svc.NextMessage(ctx, "outbound")
	require.NoError(t, err)
	assert.Equal(t, first.GUID, head.GUID)
	assert.Equal(t, "open", head.Command)

	require.NoError(t, svc.AnswerMessage(ctx, head.GUID, `{"ok":true}`))

	next, err := svc.NextMessage(ctx, "outbound")
	require.NoError(t, err)
	assert.Equal(t, second.GUID, next.GUID)
}

func TestBridgeQueuesAreIndependent(t *testing.T) {
	svc := newBridgeService(t)
	ctx := context.Background()

	_, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{Queue: "a", Command: "one"})
	require.NoError(t, err)

	_, err = svc.NextMessage(ctx, "b")
	assert.ErrorIs(t, err, contentsync.ErrNoPendingMessages)
}

func TestBridgeDuplicateGUIDIsIdempotent(t *testing.T) {
	svc := newBridgeService(t)
	ctx := context.Background()

	msg, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{
		Queue:   "outbound",
		Command: "open",
		GUID:    "guid-1",
	})
	require.NoError(t, err)

	// Retrying with the same guid returns the stored row and creates nothing.
	again, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{
		Queue:   "outbound",
		Command: "open-changed",
		GUID:    "guid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, msg.GUID, again.GUID)
	assert.Equal(t, msg.Order, again.Order)
	assert.Equal(t, "open", again.Command)

	head, err := svc.NextMessage(ctx, "outbound")
	require.NoError(t, err)
	require.NoError(t, svc.AnswerMessage(ctx, head.GUID, "done"))

	_, err = svc.NextMessage(ctx, "outbound")
	assert.ErrorIs(t, err, contentsync.ErrNoPendingMessages)
}

func TestBridgeProducerSuppliedOrder(t *testing.T) {
	svc := newBridgeService(t)
	ctx := context.Background()

	order := func(n int) *int { return &n }

	_, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{
		Queue: "outbound", Command: "third", GUID: "g-third", Order: order(5),
	})
	require.NoError(t, err)

	// A non-monotonic order is accepted, it just loses its place in line.
	_, err = svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{
		Queue: "outbound", Command: "first", GUID: "g-first", Order: order(1),
	})
	require.NoError(t, err)

	// Without an explicit order the queue continues past the highest seen.
	last, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{
		Queue: "outbound", Command: "fourth", GUID: "g-fourth",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, last.Order)

	// An order tie is broken by insertion time.
	_, err = svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{
		Queue: "outbound", Command: "second", GUID: "g-second", Order: order(5),
	})
	require.NoError(t, err)

	var drained []string
	for i := 0; i < 4; i++ {
		head, err := svc.NextMessage(ctx, "outbound")
		require.NoError(t, err)
		drained = append(drained, head.Command)
		require.NoError(t, svc.AnswerMessage(ctx, head.GUID, "ok"))
	}
	assert.Equal(t, []string{"first", "third", "second", "fourth"}, drained)
}

func TestBridgeAnsweredIsTerminal(t *testing.T) {
	svc := newBridgeService(t)
	ctx := context.Background()

	msg, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{Queue: "q", Command: "ping"})
	require.NoError(t, err)

	require.NoError(t, svc.AnswerMessage(ctx, msg.GUID, "pong"))

	err = svc.AnswerMessage(ctx, msg.GUID, "pong-again")
	assert.ErrorIs(t, err, contentsync.ErrMessageAnswered)

	err = svc.AnswerMessage(ctx, "no-such-guid", "x")
	assert.ErrorIs(t, err, contentsync.ErrMessageNotFound)
}

func TestBridgePurgeAnswered(t *testing.T) {
	svc := newBridgeService(t, contentsync.WithRetention(contentsync.RetentionPolicy{
		AnsweredTTL: time.Millisecond,
	}))
	ctx := context.Background()

	answered, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{Queue: "q", Command: "a"})
	require.NoError(t, err)
	require.NoError(t, svc.AnswerMessage(ctx, answered.GUID, "ok"))

	pending, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{Queue: "q", Command: "b"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	n, err := svc.PurgeAnswered(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Pending messages survive retention regardless of age.
	head, err := svc.NextMessage(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, pending.GUID, head.GUID)
}

func TestFlushOutboundRequiresFinishedSurface(t *testing.T) {
	svc := newBridgeService(t)
	ctx := context.Background()

	_, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{Queue: "outbound", Command: "open"})
	require.NoError(t, err)

	_, err = svc.FlushOutbound(ctx, "outbound", func(*contentsync.BridgeMessage) error { return nil })
	assert.ErrorIs(t, err, contentsync.ErrSurfaceNotReady)

	require.NoError(t, svc.SurfaceNavigated(contentsync.NavProvisional))
	require.NoError(t, svc.SurfaceNavigated(contentsync.NavCommitted))

	_, err = svc.FlushOutbound(ctx, "outbound", func(*contentsync.BridgeMessage) error { return nil })
	assert.ErrorIs(t, err, contentsync.ErrSurfaceNotReady)

	require.NoError(t, svc.SurfaceNavigated(contentsync.NavFinished))

	var delivered []string
	n, err := svc.FlushOutbound(ctx, "outbound", func(m *contentsync.BridgeMessage) error {
		delivered = append(delivered, m.Command)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"open"}, delivered)
}

func TestFlushOutboundStopsAtFirstFailure(t *testing.T) {
	svc := newBridgeService(t)
	ctx := context.Background()

	for _, cmd := range []string{"one", "two", "three"} {
		_, err := svc.EnqueueMessage(ctx, contentsync.EnqueueMessageRequest{Queue: "outbound", Command: cmd})
		require.NoError(t, err)
	}

	require.NoError(t, svc.SurfaceNavigated(contentsync.NavProvisional))
	require.NoError(t, svc.SurfaceNavigated(contentsync.NavCommitted))
	require.NoError(t, svc.SurfaceNavigated(contentsync.NavFinished))

	deliverErr := errors.New("surface rejected message")
	var delivered []string
	n, err := svc.FlushOutbound(ctx, "outbound", func(m *contentsync.BridgeMessage) error {
		if m.Command == "two" {
			return deliverErr
		}
		delivered = append(delivered, m.Command)
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, deliverErr)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"one"}, delivered)

	// Undelivered messages remain queued for the next flush.
	head, err := svc.NextMessage(ctx, "outbound")
	require.NoError(t, err)
	assert.Equal(t, "one", head.Command)
}
