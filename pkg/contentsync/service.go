package contentsync

import (
	"context"
	"io"
	"time"
)

// Service defines the main interface for the content-sync library.
type Service interface {
	// Catalog operations
	SaveClient(ctx context.Context, req SaveClientRequest) (*Client, error)
	GetClient(ctx context.Context, id int64) (*Client, error)
	ListClients(ctx context.Context) ([]*Client, error)
	GetPresentation(ctx context.Context, id int64) (*Presentation, error)
	ListPresentationsByClient(ctx context.Context, clientID int64) ([]*Presentation, error)
	ListSlidesByPresentation(ctx context.Context, presentationID int64) ([]*Slide, error)
	ListMediaFilesByPresentation(ctx context.Context, presentationID int64) ([]*MediaFile, error)
	DeletePresentation(ctx context.Context, id int64) error

	// Revision synchronization
	Sync(ctx context.Context, req SyncRequest) (*SyncResult, error)

	// Blob access for downloaded artifacts
	OpenBlob(ctx context.Context, blobID string) (io.ReadCloser, error)

	// Bridge queue operations
	EnqueueMessage(ctx context.Context, req EnqueueMessageRequest) (*BridgeMessage, error)
	NextMessage(ctx context.Context, queue string) (*BridgeMessage, error)
	AnswerMessage(ctx context.Context, guid string, response string) error
	PurgeAnswered(ctx context.Context, queue string) (int, error)
	FlushOutbound(ctx context.Context, queue string, deliver func(*BridgeMessage) error) (int, error)
	SurfaceNavigated(state NavState) error
	SurfaceState() NavState

	// Event recording
	RecordEvent(ctx context.Context, req RecordEventRequest) (*CustomEvent, error)
	MarkEventsSynced(ctx context.Context, ids []string) error
	ListUnsyncedEvents(ctx context.Context, limit int) ([]*CustomEvent, error)
	UploadEvents(ctx context.Context) (int, error)

	// User operations
	SaveUser(ctx context.Context, req SaveUserRequest) (*User, error)
	GetUser(ctx context.Context, code int64) (*User, error)
}

// RetentionPolicy controls how long answered bridge messages are kept for
// audit before PurgeAnswered removes them. Pending messages are never purged.
type RetentionPolicy struct {
	AnsweredTTL time.Duration
}

// DefaultRetention keeps answered messages for seven days.
var DefaultRetention = RetentionPolicy{AnsweredTTL: 7 * 24 * time.Hour}
