package contentsync

import (
	"context"
	"io"
	"time"
)

// Repository defines the interface for entity persistence. It is the single
// source of truth all other components read and mutate.
//
// Multi-row operations (SavePresentationRevision, SaveMediaFileRevision,
// SaveContentPackageRevision, DeletePresentation, MarkCustomEventsSynced)
// commit atomically: a reader never observes a presentation at a revision
// newer than its children, and never sees a partially applied update.
type Repository interface {
	// Client operations
	SaveClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, id int64) (*Client, error)
	ListClients(ctx context.Context) ([]*Client, error)
	DeleteClient(ctx context.Context, id int64) error

	// Presentation operations
	GetPresentation(ctx context.Context, id int64) (*Presentation, error)
	ListPresentationsByClient(ctx context.Context, clientID int64) ([]*Presentation, error)
	// SavePresentationRevision upserts a presentation row together with the
	// given slide rows in a single commit.
	SavePresentationRevision(ctx context.Context, p *Presentation, slides []*Slide) error
	SetPresentationSyncState(ctx context.Context, id int64, state SyncState) error
	// DeletePresentation cascades to the presentation's slides and detaches,
	// but does not delete, its media files and content package.
	DeletePresentation(ctx context.Context, id int64) error

	// Slide operations
	GetSlide(ctx context.Context, id int64) (*Slide, error)
	ListSlidesByPresentation(ctx context.Context, presentationID int64) ([]*Slide, error)
	SaveSlide(ctx context.Context, slide *Slide) error

	// Media file operations
	GetMediaFile(ctx context.Context, id int64) (*MediaFile, error)
	ListMediaFilesByPresentation(ctx context.Context, presentationID int64) ([]*MediaFile, error)
	// SaveMediaFileRevision upserts the media file row and, when ownerState
	// is non-empty, moves the owning presentation to that state in the same
	// commit. When the owning presentation row is absent the write is a
	// no-op returning ErrPresentationNotFound.
	SaveMediaFileRevision(ctx context.Context, mf *MediaFile, ownerState SyncState) error

	// Content package operations
	GetContentPackage(ctx context.Context, id int64) (*ContentPackage, error)
	GetContentPackageByPresentation(ctx context.Context, presentationID int64) (*ContentPackage, error)
	SaveContentPackageRevision(ctx context.Context, cp *ContentPackage, ownerState SyncState) error

	// Bridge message operations
	CreateBridgeMessage(ctx context.Context, msg *BridgeMessage) error
	GetBridgeMessageByGUID(ctx context.Context, guid string) (*BridgeMessage, error)
	NextPendingBridgeMessage(ctx context.Context, queue string) (*BridgeMessage, error)
	ListPendingBridgeMessages(ctx context.Context, queue string) ([]*BridgeMessage, error)
	LastBridgeMessageOrder(ctx context.Context, queue string) (int, bool, error)
	AnswerBridgeMessage(ctx context.Context, guid string, response string, answeredAt time.Time) error
	PurgeAnsweredBridgeMessages(ctx context.Context, queue string, before time.Time) (int, error)

	// Custom event operations
	CreateCustomEvent(ctx context.Context, event *CustomEvent) error
	GetCustomEvent(ctx context.Context, id string) (*CustomEvent, error)
	ListUnsyncedCustomEvents(ctx context.Context, limit int) ([]*CustomEvent, error)
	MarkCustomEventsSynced(ctx context.Context, ids []string) error

	// User operations
	SaveUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, code int64) (*User, error)
}

// BlobStore defines the interface for storing downloaded blob payloads,
// keyed by blob identifier.
type BlobStore interface {
	// Upload stores a payload under the given key
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams stores a payload with an explicit MIME type
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download reads a stored payload back
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes a stored payload
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for a stored payload
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// ObjectMeta contains metadata about a stored blob payload.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	Metadata    map[string]string
}

// UploadParams contains parameters for storing a blob payload.
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// ManifestFetcher obtains the remote-authoritative revision manifest for a
// client or presentation scope. Entries arrive in parent-before-child order.
type ManifestFetcher interface {
	FetchManifest(ctx context.Context, scope ManifestScope) ([]ManifestEntry, error)
}

// Blob is one fetched remote payload.
type Blob struct {
	Body     io.ReadCloser
	MimeType string
	Size     int64
}

// BlobFetcher retrieves blob payloads by identifier. Errors are either
// network-kind (ErrNetworkFailure) or not-found-kind (ErrBlobNotFound).
type BlobFetcher interface {
	FetchBlob(ctx context.Context, blobID string) (*Blob, error)
}

// EventUploader delivers batches of custom events to the remote analytics
// collector and returns the ids it accepted.
type EventUploader interface {
	UploadEvents(ctx context.Context, events []*CustomEvent) ([]string, error)
}
