package contentsync

import (
	"time"
)

// SyncState is the domain type for presentation synchronization states.
type SyncState string

// Sync state constants (typed).
const (
	SyncStateNew      SyncState = "new"
	SyncStateSynced   SyncState = "synced"
	SyncStateStale    SyncState = "stale"
	SyncStateConflict SyncState = "conflict"
)

// EntityType identifies the kind of record a manifest entry refers to.
type EntityType string

// Entity type constants (typed).
const (
	EntityTypePresentation   EntityType = "presentation"
	EntityTypeSlide          EntityType = "slide"
	EntityTypeMediaFile      EntityType = "media_file"
	EntityTypeContentPackage EntityType = "content_package"
)

// SyncAction is the decision made for a single manifest entry.
type SyncAction string

// Sync action constants (typed).
const (
	SyncActionCreate   SyncAction = "create"
	SyncActionUpdate   SyncAction = "update"
	SyncActionSkip     SyncAction = "skip"
	SyncActionConflict SyncAction = "conflict"
)

// Client represents a remote content provider owning presentations.
type Client struct {
	ClientID         int64      `json:"client_id"`
	Name             string     `json:"name,omitempty"`
	URL              string     `json:"url,omitempty"`
	Email            string     `json:"email,omitempty"`
	ImgID            string     `json:"img_id,omitempty"`
	ThumbImgID       string     `json:"thumb_img_id,omitempty"`
	ShortDescription string     `json:"short_description,omitempty"`
	LongDescription  string     `json:"long_description,omitempty"`
	Synchronized     *time.Time `json:"synchronized,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Presentation is a multi-slide content item belonging to exactly one client.
//
// Revision strictly increases across updates from the remote source. SyncState
// transitions only through the sync engine.
type Presentation struct {
	PresentationID   int64     `json:"presentation_id"`
	ClientID         int64     `json:"client_id"`
	Revision         int64     `json:"revision"`
	SyncState        SyncState `json:"sync_state"`
	Name             string    `json:"name,omitempty"`
	Order            int       `json:"order"`
	Visibility       bool      `json:"visibility"`
	PreviewMode      bool      `json:"preview_mode"`
	ImgID            string    `json:"img_id,omitempty"`
	ShortDescription string    `json:"short_description,omitempty"`
	LongDescription  string    `json:"long_description,omitempty"`
	NeedConfirmation bool      `json:"need_confirmation"`
	Skip             bool      `json:"skip"`
	Opened           bool      `json:"opened"`
	DebugModeEnabled bool      `json:"debug_mode_enabled"`
	RawData          []byte    `json:"raw_data,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Slide is one page of a presentation. LinkedSlides, SwipeNext and
// SwipePrevious hold identifier references resolved at render time; they are
// not enforced as foreign keys and may dangle.
type Slide struct {
	SlideID        int64     `json:"slide_id"`
	PresentationID int64     `json:"presentation_id"`
	Revision       int64     `json:"revision"`
	Name           string    `json:"name,omitempty"`
	PageSource     string    `json:"page_source,omitempty"`
	LinkedSlides   string    `json:"linked_slides,omitempty"`
	SwipeNext      string    `json:"swipe_next,omitempty"`
	SwipePrevious  string    `json:"swipe_previous,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MediaFile is a downloadable media asset of a presentation. BlobID is the
// content-addressed identifier used as the download dedup key.
type MediaFile struct {
	MediaFileID           int64     `json:"media_file_id"`
	PresentationID        int64     `json:"presentation_id"`
	BlobID                string    `json:"blob_id"`
	Revision              int64     `json:"revision"`
	IsAvailableForSharing bool      `json:"is_available_for_sharing"`
	Title                 string    `json:"title,omitempty"`
	FileName              string    `json:"file_name,omitempty"`
	FileSize              int64     `json:"file_size,omitempty"`
	MimeType              string    `json:"mime_type,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// ContentPackage is the packaged slide bundle of a presentation, at most one
// per presentation. BlobID is the download dedup key.
type ContentPackage struct {
	ContentPackageID int64     `json:"content_package_id"`
	PresentationID   int64     `json:"presentation_id"`
	BlobID           string    `json:"blob_id"`
	Revision         int64     `json:"revision"`
	FileSize         int64     `json:"file_size,omitempty"`
	MimeType         string    `json:"mime_type,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BridgeMessage is one persisted command or response on a named queue
// between native code and the embedded content surface.
//
// A message is pending while Response is nil and answered once it is set.
// Answered messages are never mutated again; they remain for audit until
// purged by retention cleanup.
type BridgeMessage struct {
	GUID       string     `json:"guid"`
	Queue      string     `json:"queue"`
	Order      int        `json:"order"`
	Command    string     `json:"command"`
	Data       []byte     `json:"data,omitempty"`
	ContentID  *int64     `json:"content_id,omitempty"`
	Response   *string    `json:"response,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// Pending reports whether the message still awaits an answer.
func (m *BridgeMessage) Pending() bool { return m.Response == nil }

// CustomEvent is one append-only analytics record. Sync flips false to true
// exactly once, when the remote collector has accepted the event.
type CustomEvent struct {
	EventID    string    `json:"event_id"`
	EventKey   string    `json:"event_key"`
	EventValue string    `json:"event_value,omitempty"`
	Sync       bool      `json:"sync"`
	TimeZone   int       `json:"time_zone"`
	SessionID  string    `json:"session_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	ContentID  int64     `json:"content_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// User is the locally known account holder. It is independent of the sync
// graph.
type User struct {
	Code        int64      `json:"code"`
	Email       string     `json:"email,omitempty"`
	Name        string     `json:"name,omitempty"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	Gender      int        `json:"gender,omitempty"`
	Location    string     `json:"location,omitempty"`
}

// ManifestEntry is one record of the remote-authoritative revision manifest.
//
// For presentation and slide entries Data carries the inline entity fields as
// JSON; for media file and content package entries BlobID names the payload
// to fetch.
type ManifestEntry struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Revision   int64      `json:"revision"`
	ParentID   int64      `json:"parent_id,omitempty"`
	BlobID     string     `json:"blob_id,omitempty"`
	Data       []byte     `json:"data,omitempty"`
}

// ManifestScope narrows a manifest fetch to a client or a single
// presentation.
type ManifestScope struct {
	ClientID       int64
	PresentationID int64
}

// PlannedAction pairs a manifest entry with the action the sync engine
// decided for it.
type PlannedAction struct {
	Entry  ManifestEntry
	Action SyncAction
}

// SyncFailure records a per-entity failure inside a sync pass. Failures are
// isolated; they never abort the pass.
type SyncFailure struct {
	Entry ManifestEntry
	Err   error
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Created   int
	Updated   int
	Skipped   int
	Conflicts []ManifestEntry
	Failures  []SyncFailure
}

// Ok reports whether the pass completed without per-entity failures.
func (r *SyncResult) Ok() bool { return len(r.Failures) == 0 }
