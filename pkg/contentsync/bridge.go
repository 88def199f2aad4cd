package contentsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EnqueueMessage creates a pending bridge message on a named queue.
//
// Re-enqueuing with an already-seen guid returns the existing row unchanged;
// producers can therefore retry safely. A supplied order lower than the
// queue's last assigned order is accepted but logged, since strict ordering
// is a best-effort contract from untrusted producers.
func (s *service) EnqueueMessage(ctx context.Context, req EnqueueMessageRequest) (*BridgeMessage, error) {
	guid := req.GUID
	if guid == "" {
		guid = uuid.NewString()
	}

	if existing, err := s.repository.GetBridgeMessageByGUID(ctx, guid); err == nil {
		slog.Debug("Duplicate enqueue treated as success", "queue", req.Queue, "guid", guid)
		return existing, nil
	} else if !errors.Is(err, ErrMessageNotFound) {
		return nil, &QueueError{Queue: req.Queue, GUID: guid, Op: "enqueue", Err: err}
	}

	lastOrder, hasLast, err := s.repository.LastBridgeMessageOrder(ctx, req.Queue)
	if err != nil {
		return nil, &QueueError{Queue: req.Queue, GUID: guid, Op: "enqueue", Err: err}
	}

	var order int
	switch {
	case req.Order == nil:
		if hasLast {
			order = lastOrder + 1
		}
	default:
		order = *req.Order
		if hasLast && order <= lastOrder {
			slog.Warn("Queue order violation",
				"queue", req.Queue,
				"guid", guid,
				"order", order,
				"last_order", lastOrder)
		}
	}

	msg := &BridgeMessage{
		GUID:      guid,
		Queue:     req.Queue,
		Order:     order,
		Command:   req.Command,
		Data:      req.Data,
		ContentID: req.ContentID,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repository.CreateBridgeMessage(ctx, msg); err != nil {
		if errors.Is(err, ErrDuplicateGUID) {
			// Lost a race with a concurrent retry; the stored row wins.
			return s.repository.GetBridgeMessageByGUID(ctx, guid)
		}
		return nil, &QueueError{Queue: req.Queue, GUID: guid, Op: "enqueue", Err: err}
	}

	return msg, nil
}

// NextMessage returns the lowest-order pending message of a queue without
// removing it; the message is consumed only once answered.
func (s *service) NextMessage(ctx context.Context, queue string) (*BridgeMessage, error) {
	msg, err := s.repository.NextPendingBridgeMessage(ctx, queue)
	if err != nil {
		if errors.Is(err, ErrNoPendingMessages) {
			return nil, err
		}
		return nil, &QueueError{Queue: queue, Op: "next", Err: err}
	}
	return msg, nil
}

// AnswerMessage sets the response on a pending message, making it terminal.
// An answered message cannot be re-opened.
func (s *service) AnswerMessage(ctx context.Context, guid string, response string) error {
	err := s.repository.AnswerBridgeMessage(ctx, guid, response, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) || errors.Is(err, ErrMessageAnswered) {
			return err
		}
		return &QueueError{GUID: guid, Op: "answer", Err: err}
	}
	return nil
}

// PurgeAnswered removes answered messages that aged past the retention
// window. Pending messages are never purged.
func (s *service) PurgeAnswered(ctx context.Context, queue string) (int, error) {
	cutoff := time.Now().UTC().Add(-s.retention.AnsweredTTL)
	n, err := s.repository.PurgeAnsweredBridgeMessages(ctx, queue, cutoff)
	if err != nil {
		return 0, &QueueError{Queue: queue, Op: "purge", Err: err}
	}
	if n > 0 {
		slog.Info("Purged answered bridge messages", "queue", queue, "count", n)
	}
	return n, nil
}

// FlushOutbound delivers the queue's pending messages, in order, to the
// embedded surface. It refuses to run unless the surface has finished its
// current navigation; delivery stops at the first failure so the remaining
// messages stay queued for the next flush.
func (s *service) FlushOutbound(ctx context.Context, queue string, deliver func(*BridgeMessage) error) (int, error) {
	if !s.surface.Ready() {
		return 0, ErrSurfaceNotReady
	}

	pending, err := s.repository.ListPendingBridgeMessages(ctx, queue)
	if err != nil {
		return 0, &QueueError{Queue: queue, Op: "flush", Err: err}
	}

	delivered := 0
	for _, msg := range pending {
		if err := deliver(msg); err != nil {
			return delivered, &QueueError{Queue: queue, GUID: msg.GUID, Op: "flush", Err: err}
		}
		delivered++
	}
	return delivered, nil
}

// SurfaceNavigated records a navigation transition reported by the embedded
// surface.
func (s *service) SurfaceNavigated(state NavState) error {
	return s.surface.Transition(state)
}

// SurfaceState returns the surface's current navigation state.
func (s *service) SurfaceState() NavState {
	return s.surface.State()
}
