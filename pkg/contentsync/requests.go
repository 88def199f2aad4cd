package contentsync

// SyncRequest scopes one sync pass. PresentationID narrows the pass to a
// single presentation; zero means the whole client.
type SyncRequest struct {
	ClientID       int64
	PresentationID int64
}

// SaveClientRequest carries the fields of a client record to upsert.
type SaveClientRequest struct {
	ClientID         int64
	Name             string
	URL              string
	Email            string
	ImgID            string
	ThumbImgID       string
	ShortDescription string
	LongDescription  string
}

// EnqueueMessageRequest creates one pending bridge message.
//
// GUID may be supplied by the producer for idempotent retries; when empty a
// new one is generated. Order may be nil to let the queue assign the next
// monotonic value.
type EnqueueMessageRequest struct {
	Queue     string
	Command   string
	Data      []byte
	ContentID *int64
	GUID      string
	Order     *int
}

// RecordEventRequest appends one custom analytics event.
type RecordEventRequest struct {
	EventKey   string
	EventValue string
	SessionID  string
	UserID     string
	ContentID  int64
	TimeZone   int
}

// SaveUserRequest carries the fields of the local user record.
type SaveUserRequest struct {
	Code        int64
	Email       string
	Name        string
	PhoneNumber string
	Gender      int
	Location    string
}
