package contentsync

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrClientNotFound indicates a client was not found
	ErrClientNotFound = errors.New("client not found")

	// ErrPresentationNotFound indicates a presentation was not found
	ErrPresentationNotFound = errors.New("presentation not found")

	// ErrSlideNotFound indicates a slide was not found
	ErrSlideNotFound = errors.New("slide not found")

	// ErrMediaFileNotFound indicates a media file was not found
	ErrMediaFileNotFound = errors.New("media file not found")

	// ErrContentPackageNotFound indicates a content package was not found
	ErrContentPackageNotFound = errors.New("content package not found")

	// ErrMessageNotFound indicates a bridge message was not found
	ErrMessageNotFound = errors.New("bridge message not found")

	// ErrEventNotFound indicates a custom event was not found
	ErrEventNotFound = errors.New("custom event not found")

	// ErrUserNotFound indicates a user was not found
	ErrUserNotFound = errors.New("user not found")

	// ErrNoPendingMessages indicates a queue has no pending message to return
	ErrNoPendingMessages = errors.New("no pending messages")

	// ErrMessageAnswered indicates an already answered message cannot be
	// answered again
	ErrMessageAnswered = errors.New("bridge message already answered")

	// ErrDuplicateGUID indicates a bridge message guid was already seen;
	// callers treat this as idempotent success
	ErrDuplicateGUID = errors.New("duplicate bridge message guid")

	// ErrNetworkFailure indicates a transient remote failure, retried on the
	// next sync pass
	ErrNetworkFailure = errors.New("network failure")

	// ErrBlobNotFound indicates a blob or manifest entry is missing on the
	// remote side
	ErrBlobNotFound = errors.New("blob not found")

	// ErrConflictRevision indicates the local revision exceeds the manifest
	// revision; surfaced, never auto-resolved
	ErrConflictRevision = errors.New("local revision exceeds manifest revision")

	// ErrEventAlreadySynced indicates a sync flag was already set
	ErrEventAlreadySynced = errors.New("custom event already synced")

	// ErrSurfaceNotReady indicates the embedded surface has not finished
	// loading, so outbound commands cannot be flushed yet
	ErrSurfaceNotReady = errors.New("content surface not ready")
)

// SyncError represents a failure of a sync engine operation.
type SyncError struct {
	EntityType EntityType
	EntityID   int64
	Op         string
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync operation %s failed for %s %d: %v", e.Op, e.EntityType, e.EntityID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// QueueError represents a failure of a bridge queue operation.
type QueueError struct {
	Queue string
	GUID  string
	Op    string
	Err   error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue operation %s failed on queue %q (guid %s): %v", e.Op, e.Queue, e.GUID, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

// DownloadError represents a failure while fetching or storing a blob.
type DownloadError struct {
	BlobID string
	Op     string
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download operation %s failed for blob %s: %v", e.Op, e.BlobID, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable remote failure rather than a
// permanent one.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}
