package contentsync

import (
	"context"
	"fmt"
	"io"
	"time"
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	manifests  ManifestFetcher
	blobs      BlobFetcher
	uploader   EventUploader
	downloader *Downloader
	surface    *SurfaceTracker
	retention  RetentionPolicy
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the entity repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the local store for downloaded blob payloads
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithManifestFetcher sets the remote manifest collaborator
func WithManifestFetcher(f ManifestFetcher) Option {
	return func(s *service) {
		s.manifests = f
	}
}

// WithBlobFetcher sets the remote blob collaborator
func WithBlobFetcher(f BlobFetcher) Option {
	return func(s *service) {
		s.blobs = f
	}
}

// WithEventUploader sets the analytics upload collaborator
func WithEventUploader(u EventUploader) Option {
	return func(s *service) {
		s.uploader = u
	}
}

// WithDownloader sets the download coordinator instance
func WithDownloader(d *Downloader) Option {
	return func(s *service) {
		s.downloader = d
	}
}

// WithRetention sets the bridge message retention policy
func WithRetention(p RetentionPolicy) Option {
	return func(s *service) {
		s.retention = p
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		surface:   NewSurfaceTracker(),
		retention: DefaultRetention,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.downloader == nil {
		s.downloader = NewDownloader()
	}

	return s, nil
}

// Catalog operations

func (s *service) SaveClient(ctx context.Context, req SaveClientRequest) (*Client, error) {
	now := time.Now().UTC()
	client := &Client{
		ClientID:         req.ClientID,
		Name:             req.Name,
		URL:              req.URL,
		Email:            req.Email,
		ImgID:            req.ImgID,
		ThumbImgID:       req.ThumbImgID,
		ShortDescription: req.ShortDescription,
		LongDescription:  req.LongDescription,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if existing, err := s.repository.GetClient(ctx, req.ClientID); err == nil {
		client.CreatedAt = existing.CreatedAt
		client.Synchronized = existing.Synchronized
	}

	if err := s.repository.SaveClient(ctx, client); err != nil {
		return nil, fmt.Errorf("save client %d: %w", req.ClientID, err)
	}

	return client, nil
}

func (s *service) GetClient(ctx context.Context, id int64) (*Client, error) {
	return s.repository.GetClient(ctx, id)
}

func (s *service) ListClients(ctx context.Context) ([]*Client, error) {
	return s.repository.ListClients(ctx)
}

func (s *service) GetPresentation(ctx context.Context, id int64) (*Presentation, error) {
	return s.repository.GetPresentation(ctx, id)
}

func (s *service) ListPresentationsByClient(ctx context.Context, clientID int64) ([]*Presentation, error) {
	return s.repository.ListPresentationsByClient(ctx, clientID)
}

func (s *service) ListSlidesByPresentation(ctx context.Context, presentationID int64) ([]*Slide, error) {
	return s.repository.ListSlidesByPresentation(ctx, presentationID)
}

func (s *service) ListMediaFilesByPresentation(ctx context.Context, presentationID int64) ([]*MediaFile, error) {
	return s.repository.ListMediaFilesByPresentation(ctx, presentationID)
}

func (s *service) DeletePresentation(ctx context.Context, id int64) error {
	if err := s.repository.DeletePresentation(ctx, id); err != nil {
		return &SyncError{EntityType: EntityTypePresentation, EntityID: id, Op: "delete", Err: err}
	}
	return nil
}

// OpenBlob reads a previously downloaded blob payload back from the local
// blob store.
func (s *service) OpenBlob(ctx context.Context, blobID string) (io.ReadCloser, error) {
	if s.blobStore == nil {
		return nil, fmt.Errorf("no blob store configured")
	}
	return s.blobStore.Download(ctx, blobID)
}

// User operations

func (s *service) SaveUser(ctx context.Context, req SaveUserRequest) (*User, error) {
	user := &User{
		Code:        req.Code,
		Email:       req.Email,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Gender:      req.Gender,
		Location:    req.Location,
	}

	if existing, err := s.repository.GetUser(ctx, req.Code); err == nil {
		user.BirthDate = existing.BirthDate
	}

	if err := s.repository.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user %d: %w", req.Code, err)
	}

	return user, nil
}

func (s *service) GetUser(ctx context.Context, code int64) (*User, error) {
	return s.repository.GetUser(ctx, code)
}
