package contentsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RecordEvent appends one custom analytics event. The write is local and
// always succeeds when the store does; upload happens later and flips the
// sync flag exactly once.
func (s *service) RecordEvent(ctx context.Context, req RecordEventRequest) (*CustomEvent, error) {
	event := &CustomEvent{
		EventID:    uuid.NewString(),
		EventKey:   req.EventKey,
		EventValue: req.EventValue,
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		ContentID:  req.ContentID,
		TimeZone:   req.TimeZone,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repository.CreateCustomEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("record event %q: %w", req.EventKey, err)
	}

	return event, nil
}

// MarkEventsSynced flips the sync flag for the given events. This is the
// only mutation path for the flag; events are never deleted before it is
// set, which keeps delivery at-least-once across crashes.
func (s *service) MarkEventsSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.repository.MarkCustomEventsSynced(ctx, ids)
}

// ListUnsyncedEvents returns events still awaiting upload, oldest first.
func (s *service) ListUnsyncedEvents(ctx context.Context, limit int) ([]*CustomEvent, error) {
	return s.repository.ListUnsyncedCustomEvents(ctx, limit)
}

const uploadBatchSize = 100

// UploadEvents pushes one batch of unsynced events to the remote collector
// and marks the accepted ones. It returns the number of events the collector
// acknowledged.
func (s *service) UploadEvents(ctx context.Context) (int, error) {
	if s.uploader == nil {
		return 0, fmt.Errorf("no event uploader configured")
	}

	events, err := s.repository.ListUnsyncedCustomEvents(ctx, uploadBatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	accepted, err := s.uploader.UploadEvents(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("upload events: %w", err)
	}
	if len(accepted) == 0 {
		return 0, nil
	}

	if err := s.repository.MarkCustomEventsSynced(ctx, accepted); err != nil {
		// The collector has the events; they will be re-sent next pass and
		// deduplicated there by event id.
		slog.Warn("Failed to mark uploaded events synced", "count", len(accepted), "error", err)
		return 0, err
	}

	return len(accepted), nil
}
