package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/breffi/content-sync/pkg/contentsync"
)

// Repository implements contentsync.Repository using in-memory storage.
// Every method holds the store-wide mutex for its duration, which is what
// makes the multi-row commits atomic here.
type Repository struct {
	mu              sync.RWMutex
	clients         map[int64]*contentsync.Client
	presentations   map[int64]*contentsync.Presentation
	slides          map[int64]*contentsync.Slide
	mediaFiles      map[int64]*contentsync.MediaFile
	contentPackages map[int64]*contentsync.ContentPackage
	messages        map[string]*contentsync.BridgeMessage
	events          map[string]*contentsync.CustomEvent
	users           map[int64]*contentsync.User
}

// New creates a new in-memory repository
func New() contentsync.Repository {
	return &Repository{
		clients:         make(map[int64]*contentsync.Client),
		presentations:   make(map[int64]*contentsync.Presentation),
		slides:          make(map[int64]*contentsync.Slide),
		mediaFiles:      make(map[int64]*contentsync.MediaFile),
		contentPackages: make(map[int64]*contentsync.ContentPackage),
		messages:        make(map[string]*contentsync.BridgeMessage),
		events:          make(map[string]*contentsync.CustomEvent),
		users:           make(map[int64]*contentsync.User),
	}
}

// Client operations

func (r *Repository) SaveClient(ctx context.Context, client *contentsync.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clientCopy := *client
	r.clients[client.ClientID] = &clientCopy

	return nil
}

func (r *Repository) GetClient(ctx context.Context, id int64) (*contentsync.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[id]
	if !exists {
		return nil, contentsync.ErrClientNotFound
	}

	clientCopy := *client
	return &clientCopy, nil
}

func (r *Repository) ListClients(ctx context.Context) ([]*contentsync.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*contentsync.Client, 0, len(r.clients))
	for _, client := range r.clients {
		clientCopy := *client
		result = append(result, &clientCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ClientID < result[j].ClientID
	})

	return result, nil
}

func (r *Repository) DeleteClient(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; !exists {
		return contentsync.ErrClientNotFound
	}

	for _, p := range r.presentations {
		if p.ClientID == id {
			r.deletePresentationLocked(p.PresentationID)
		}
	}
	delete(r.clients, id)

	return nil
}

// Presentation operations

func (r *Repository) GetPresentation(ctx context.Context, id int64) (*contentsync.Presentation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.presentations[id]
	if !exists {
		return nil, contentsync.ErrPresentationNotFound
	}

	pCopy := *p
	return &pCopy, nil
}

func (r *Repository) ListPresentationsByClient(ctx context.Context, clientID int64) ([]*contentsync.Presentation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentsync.Presentation
	for _, p := range r.presentations {
		if p.ClientID == clientID {
			pCopy := *p
			result = append(result, &pCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].PresentationID < result[j].PresentationID
	})

	return result, nil
}

func (r *Repository) SavePresentationRevision(ctx context.Context, p *contentsync.Presentation, slides []*contentsync.Slide) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Revisions only move forward; a regression is a conflict the caller must
	// resolve, never an overwrite.
	if existing, ok := r.presentations[p.PresentationID]; ok && existing.Revision > p.Revision {
		return contentsync.ErrConflictRevision
	}

	pCopy := *p
	r.presentations[p.PresentationID] = &pCopy

	for _, slide := range slides {
		slideCopy := *slide
		slideCopy.PresentationID = p.PresentationID
		r.slides[slide.SlideID] = &slideCopy
	}

	return nil
}

func (r *Repository) SetPresentationSyncState(ctx context.Context, id int64, state contentsync.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.presentations[id]
	if !exists {
		return contentsync.ErrPresentationNotFound
	}

	p.SyncState = state
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) DeletePresentation(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.presentations[id]; !exists {
		return contentsync.ErrPresentationNotFound
	}

	r.deletePresentationLocked(id)
	return nil
}

// deletePresentationLocked cascades to slides and detaches media files and
// the content package, which may be shared across revisions.
func (r *Repository) deletePresentationLocked(id int64) {
	for slideID, slide := range r.slides {
		if slide.PresentationID == id {
			delete(r.slides, slideID)
		}
	}
	for _, mf := range r.mediaFiles {
		if mf.PresentationID == id {
			mf.PresentationID = 0
		}
	}
	for _, cp := range r.contentPackages {
		if cp.PresentationID == id {
			cp.PresentationID = 0
		}
	}
	delete(r.presentations, id)
}

// Slide operations

func (r *Repository) GetSlide(ctx context.Context, id int64) (*contentsync.Slide, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slide, exists := r.slides[id]
	if !exists {
		return nil, contentsync.ErrSlideNotFound
	}

	slideCopy := *slide
	return &slideCopy, nil
}

func (r *Repository) ListSlidesByPresentation(ctx context.Context, presentationID int64) ([]*contentsync.Slide, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentsync.Slide
	for _, slide := range r.slides {
		if slide.PresentationID == presentationID {
			slideCopy := *slide
			result = append(result, &slideCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SlideID < result[j].SlideID
	})

	return result, nil
}

func (r *Repository) SaveSlide(ctx context.Context, slide *contentsync.Slide) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.presentations[slide.PresentationID]; !exists {
		return contentsync.ErrPresentationNotFound
	}

	slideCopy := *slide
	r.slides[slide.SlideID] = &slideCopy

	return nil
}

// Media file operations

func (r *Repository) GetMediaFile(ctx context.Context, id int64) (*contentsync.MediaFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mf, exists := r.mediaFiles[id]
	if !exists {
		return nil, contentsync.ErrMediaFileNotFound
	}

	mfCopy := *mf
	return &mfCopy, nil
}

func (r *Repository) ListMediaFilesByPresentation(ctx context.Context, presentationID int64) ([]*contentsync.MediaFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentsync.MediaFile
	for _, mf := range r.mediaFiles {
		if mf.PresentationID == presentationID {
			mfCopy := *mf
			result = append(result, &mfCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].MediaFileID < result[j].MediaFileID
	})

	return result, nil
}

func (r *Repository) SaveMediaFileRevision(ctx context.Context, mf *contentsync.MediaFile, ownerState contentsync.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, exists := r.presentations[mf.PresentationID]
	if !exists {
		return contentsync.ErrPresentationNotFound
	}

	mfCopy := *mf
	r.mediaFiles[mf.MediaFileID] = &mfCopy

	if ownerState != "" {
		owner.SyncState = ownerState
		owner.UpdatedAt = time.Now().UTC()
	}

	return nil
}

// Content package operations

func (r *Repository) GetContentPackage(ctx context.Context, id int64) (*contentsync.ContentPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp, exists := r.contentPackages[id]
	if !exists {
		return nil, contentsync.ErrContentPackageNotFound
	}

	cpCopy := *cp
	return &cpCopy, nil
}

func (r *Repository) GetContentPackageByPresentation(ctx context.Context, presentationID int64) (*contentsync.ContentPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cp := range r.contentPackages {
		if cp.PresentationID == presentationID {
			cpCopy := *cp
			return &cpCopy, nil
		}
	}

	return nil, contentsync.ErrContentPackageNotFound
}

func (r *Repository) SaveContentPackageRevision(ctx context.Context, cp *contentsync.ContentPackage, ownerState contentsync.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, exists := r.presentations[cp.PresentationID]
	if !exists {
		return contentsync.ErrPresentationNotFound
	}

	cpCopy := *cp
	r.contentPackages[cp.ContentPackageID] = &cpCopy

	if ownerState != "" {
		owner.SyncState = ownerState
		owner.UpdatedAt = time.Now().UTC()
	}

	return nil
}

// Bridge message operations

func (r *Repository) CreateBridgeMessage(ctx context.Context, msg *contentsync.BridgeMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.messages[msg.GUID]; exists {
		return contentsync.ErrDuplicateGUID
	}

	msgCopy := *msg
	r.messages[msg.GUID] = &msgCopy

	return nil
}

func (r *Repository) GetBridgeMessageByGUID(ctx context.Context, guid string) (*contentsync.BridgeMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, exists := r.messages[guid]
	if !exists {
		return nil, contentsync.ErrMessageNotFound
	}

	msgCopy := *msg
	return &msgCopy, nil
}

func (r *Repository) NextPendingBridgeMessage(ctx context.Context, queue string) (*contentsync.BridgeMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var next *contentsync.BridgeMessage
	for _, msg := range r.messages {
		if msg.Queue != queue || !msg.Pending() {
			continue
		}
		if next == nil || messageBefore(msg, next) {
			next = msg
		}
	}

	if next == nil {
		return nil, contentsync.ErrNoPendingMessages
	}

	nextCopy := *next
	return &nextCopy, nil
}

func (r *Repository) ListPendingBridgeMessages(ctx context.Context, queue string) ([]*contentsync.BridgeMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentsync.BridgeMessage
	for _, msg := range r.messages {
		if msg.Queue == queue && msg.Pending() {
			msgCopy := *msg
			result = append(result, &msgCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return messageBefore(result[i], result[j])
	})

	return result, nil
}

// messageBefore orders messages by order, ties broken by insertion time.
func messageBefore(a, b *contentsync.BridgeMessage) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (r *Repository) LastBridgeMessageOrder(ctx context.Context, queue string) (int, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	last, found := 0, false
	for _, msg := range r.messages {
		if msg.Queue != queue {
			continue
		}
		if !found || msg.Order > last {
			last = msg.Order
			found = true
		}
	}

	return last, found, nil
}

func (r *Repository) AnswerBridgeMessage(ctx context.Context, guid string, response string, answeredAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, exists := r.messages[guid]
	if !exists {
		return contentsync.ErrMessageNotFound
	}
	if !msg.Pending() {
		return contentsync.ErrMessageAnswered
	}

	msg.Response = &response
	msg.AnsweredAt = &answeredAt
	return nil
}

func (r *Repository) PurgeAnsweredBridgeMessages(ctx context.Context, queue string, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for guid, msg := range r.messages {
		if msg.Queue != queue || msg.Pending() {
			continue
		}
		if msg.AnsweredAt != nil && msg.AnsweredAt.Before(before) {
			delete(r.messages, guid)
			purged++
		}
	}

	return purged, nil
}

// Custom event operations

func (r *Repository) CreateCustomEvent(ctx context.Context, event *contentsync.CustomEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	eventCopy := *event
	r.events[event.EventID] = &eventCopy

	return nil
}

func (r *Repository) GetCustomEvent(ctx context.Context, id string) (*contentsync.CustomEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, exists := r.events[id]
	if !exists {
		return nil, contentsync.ErrEventNotFound
	}

	eventCopy := *event
	return &eventCopy, nil
}

func (r *Repository) ListUnsyncedCustomEvents(ctx context.Context, limit int) ([]*contentsync.CustomEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentsync.CustomEvent
	for _, event := range r.events {
		if !event.Sync {
			eventCopy := *event
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}

	return result, nil
}

func (r *Repository) MarkCustomEventsSynced(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		event, exists := r.events[id]
		if !exists {
			return contentsync.ErrEventNotFound
		}
		if event.Sync {
			return contentsync.ErrEventAlreadySynced
		}
	}
	for _, id := range ids {
		r.events[id].Sync = true
	}

	return nil
}

// User operations

func (r *Repository) SaveUser(ctx context.Context, user *contentsync.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userCopy := *user
	r.users[user.Code] = &userCopy

	return nil
}

func (r *Repository) GetUser(ctx context.Context, code int64) (*contentsync.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[code]
	if !exists {
		return nil, contentsync.ErrUserNotFound
	}

	userCopy := *user
	return &userCopy, nil
}
