package api

import (
	"errors"
	"net/http"

	"github.com/breffi/content-sync/pkg/contentsync"
)

// statusForError maps domain errors to HTTP status codes. Unknown errors are
// internal.
func statusForError(err error) int {
	switch {
	case errors.Is(err, contentsync.ErrClientNotFound),
		errors.Is(err, contentsync.ErrPresentationNotFound),
		errors.Is(err, contentsync.ErrSlideNotFound),
		errors.Is(err, contentsync.ErrMediaFileNotFound),
		errors.Is(err, contentsync.ErrContentPackageNotFound),
		errors.Is(err, contentsync.ErrMessageNotFound),
		errors.Is(err, contentsync.ErrEventNotFound),
		errors.Is(err, contentsync.ErrUserNotFound),
		errors.Is(err, contentsync.ErrBlobNotFound),
		errors.Is(err, contentsync.ErrNoPendingMessages):
		return http.StatusNotFound
	case errors.Is(err, contentsync.ErrMessageAnswered),
		errors.Is(err, contentsync.ErrSurfaceNotReady),
		errors.Is(err, contentsync.ErrEventAlreadySynced),
		errors.Is(err, contentsync.ErrConflictRevision):
		return http.StatusConflict
	case contentsync.IsTransient(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
