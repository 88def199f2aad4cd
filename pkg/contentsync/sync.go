package contentsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// presentationPayload mirrors the inline fields of a presentation manifest
// entry.
type presentationPayload struct {
	Name             string `json:"name"`
	Order            int    `json:"order"`
	Visibility       bool   `json:"visibility"`
	PreviewMode      bool   `json:"preview_mode"`
	ImgID            string `json:"img_id"`
	ShortDescription string `json:"short_description"`
	LongDescription  string `json:"long_description"`
	NeedConfirmation bool   `json:"need_confirmation"`
	Skip             bool   `json:"skip"`
	DebugModeEnabled bool   `json:"debug_mode_enabled"`
	RawData          []byte `json:"raw_data"`
}

// slidePayload mirrors the inline fields of a slide manifest entry.
type slidePayload struct {
	Name          string `json:"name"`
	PageSource    string `json:"page_source"`
	LinkedSlides  string `json:"linked_slides"`
	SwipeNext     string `json:"swipe_next"`
	SwipePrevious string `json:"swipe_previous"`
}

// artifactPayload mirrors the descriptive fields of media file and content
// package manifest entries. The payload itself comes from the blob fetch.
type artifactPayload struct {
	Title                 string `json:"title"`
	FileName              string `json:"file_name"`
	MimeType              string `json:"mime_type"`
	FileSize              int64  `json:"file_size"`
	IsAvailableForSharing bool   `json:"is_available_for_sharing"`
}

// decideAction applies the revision comparison rules to one manifest entry.
func decideAction(localRevision int64, found bool, manifestRevision int64) SyncAction {
	switch {
	case !found:
		return SyncActionCreate
	case manifestRevision > localRevision:
		return SyncActionUpdate
	case manifestRevision == localRevision:
		return SyncActionSkip
	default:
		return SyncActionConflict
	}
}

// Sync runs one revision reconciliation pass over the given scope.
//
// A failed manifest fetch performs no state change and surfaces a transient
// error. Per-entity failures are collected into the result and never abort
// the pass. Cancelling ctx stops the scheduling of further entries; a blob
// fetch already in flight finishes and commits normally.
func (s *service) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	if s.manifests == nil {
		return nil, fmt.Errorf("no manifest fetcher configured")
	}

	scope := ManifestScope{ClientID: req.ClientID, PresentationID: req.PresentationID}
	entries, err := s.manifests.FetchManifest(ctx, scope)
	if err != nil {
		return nil, &SyncError{Op: "manifest", Err: err}
	}

	result := &SyncResult{}
	consumed := make([]bool, len(entries))

	// Pending blob artifacts per presentation, so the owner only flips to
	// synced when its last artifact of this pass commits.
	pendingArtifacts := make(map[int64]int)
	for _, e := range entries {
		if e.EntityType == EntityTypeMediaFile || e.EntityType == EntityTypeContentPackage {
			pendingArtifacts[e.ParentID]++
		}
	}

	// Presentations commit first, each together with its inline slides from
	// the same manifest.
	for i, entry := range entries {
		if entry.EntityType != EntityTypePresentation {
			continue
		}
		consumed[i] = true

		if err := ctx.Err(); err != nil {
			return result, err
		}

		slides := s.consumeSlides(ctx, entries, consumed, entry.EntityID, result)
		s.applyPresentation(ctx, entry, slides, pendingArtifacts[entry.EntityID] > 0, result)
	}

	// Remaining children in manifest order.
	for i, entry := range entries {
		if consumed[i] {
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		switch entry.EntityType {
		case EntityTypeSlide:
			s.applySlide(ctx, entry, result)
		case EntityTypeMediaFile, EntityTypeContentPackage:
			pendingArtifacts[entry.ParentID]--
			s.applyArtifact(ctx, entry, pendingArtifacts[entry.ParentID] == 0, result)
		default:
			result.Failures = append(result.Failures, SyncFailure{
				Entry: entry,
				Err:   fmt.Errorf("unknown entity type %q", entry.EntityType),
			})
		}
	}

	if req.ClientID != 0 && result.Ok() {
		s.markClientSynchronized(ctx, req.ClientID)
	}

	return result, nil
}

// consumeSlides collects the slide entries belonging to a presentation entry
// of the same manifest, so parent and children commit together. Conflicting
// slides are recorded and withheld from the commit.
func (s *service) consumeSlides(ctx context.Context, entries []ManifestEntry, consumed []bool, presentationID int64, result *SyncResult) []*Slide {
	var slides []*Slide
	for i, entry := range entries {
		if consumed[i] || entry.EntityType != EntityTypeSlide || entry.ParentID != presentationID {
			continue
		}
		consumed[i] = true

		local, err := s.repository.GetSlide(ctx, entry.EntityID)
		found := err == nil
		if err != nil && !errors.Is(err, ErrSlideNotFound) {
			result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
			continue
		}

		switch decideAction(localRevision(local), found, entry.Revision) {
		case SyncActionSkip:
			result.Skipped++
		case SyncActionConflict:
			result.Conflicts = append(result.Conflicts, entry)
		case SyncActionCreate:
			result.Created++
			slides = append(slides, s.buildSlide(entry, nil))
		case SyncActionUpdate:
			result.Updated++
			slides = append(slides, s.buildSlide(entry, local))
		}
	}
	return slides
}

func localRevision(s *Slide) int64 {
	if s == nil {
		return 0
	}
	return s.Revision
}

func (s *service) buildSlide(entry ManifestEntry, local *Slide) *Slide {
	now := time.Now().UTC()
	slide := &Slide{
		SlideID:        entry.EntityID,
		PresentationID: entry.ParentID,
		Revision:       entry.Revision,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if local != nil {
		slide.CreatedAt = local.CreatedAt
	}

	var payload slidePayload
	if len(entry.Data) > 0 {
		if err := json.Unmarshal(entry.Data, &payload); err != nil {
			slog.Warn("Malformed slide payload", "slide_id", entry.EntityID, "error", err)
		}
	}
	slide.Name = payload.Name
	slide.PageSource = payload.PageSource
	slide.LinkedSlides = payload.LinkedSlides
	slide.SwipeNext = payload.SwipeNext
	slide.SwipePrevious = payload.SwipePrevious

	return slide
}

func (s *service) applyPresentation(ctx context.Context, entry ManifestEntry, slides []*Slide, hasPendingArtifacts bool, result *SyncResult) {
	local, err := s.repository.GetPresentation(ctx, entry.EntityID)
	found := err == nil
	if err != nil && !errors.Is(err, ErrPresentationNotFound) {
		result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
		return
	}

	action := decideAction(revisionOf(local), found, entry.Revision)
	switch action {
	case SyncActionSkip:
		if len(slides) == 0 {
			if err := s.repository.SetPresentationSyncState(ctx, entry.EntityID, SyncStateSynced); err != nil {
				result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
				return
			}
			result.Skipped++
			return
		}
		// Same presentation revision but new slide revisions: commit the
		// slides under the unchanged parent row.
		result.Skipped++
	case SyncActionConflict:
		if err := s.repository.SetPresentationSyncState(ctx, entry.EntityID, SyncStateConflict); err != nil {
			result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
			return
		}
		result.Conflicts = append(result.Conflicts, entry)
		slog.Warn("Revision conflict",
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"local_revision", local.Revision,
			"manifest_revision", entry.Revision,
			"error", ErrConflictRevision)
		return
	case SyncActionCreate:
		result.Created++
	case SyncActionUpdate:
		result.Updated++
	}

	now := time.Now().UTC()
	p := &Presentation{
		PresentationID: entry.EntityID,
		ClientID:       entry.ParentID,
		Revision:       entry.Revision,
		SyncState:      SyncStateSynced,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if local != nil {
		*p = *local
		p.Revision = entry.Revision
		p.SyncState = SyncStateSynced
		p.UpdatedAt = now
	}
	if hasPendingArtifacts {
		p.SyncState = SyncStateStale
	}

	if action != SyncActionSkip {
		var payload presentationPayload
		if len(entry.Data) > 0 {
			if err := json.Unmarshal(entry.Data, &payload); err != nil {
				slog.Warn("Malformed presentation payload", "presentation_id", entry.EntityID, "error", err)
			}
		}
		p.Name = payload.Name
		p.Order = payload.Order
		p.Visibility = payload.Visibility
		p.PreviewMode = payload.PreviewMode
		p.ImgID = payload.ImgID
		p.ShortDescription = payload.ShortDescription
		p.LongDescription = payload.LongDescription
		p.NeedConfirmation = payload.NeedConfirmation
		p.Skip = payload.Skip
		p.DebugModeEnabled = payload.DebugModeEnabled
		p.RawData = payload.RawData
	}

	if err := s.repository.SavePresentationRevision(ctx, p, slides); err != nil {
		result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
	}
}

func revisionOf(p *Presentation) int64 {
	if p == nil {
		return 0
	}
	return p.Revision
}

// applySlide handles a slide entry whose presentation was not part of this
// manifest batch.
func (s *service) applySlide(ctx context.Context, entry ManifestEntry, result *SyncResult) {
	local, err := s.repository.GetSlide(ctx, entry.EntityID)
	found := err == nil
	if err != nil && !errors.Is(err, ErrSlideNotFound) {
		result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
		return
	}

	switch decideAction(localRevision(local), found, entry.Revision) {
	case SyncActionSkip:
		result.Skipped++
		return
	case SyncActionConflict:
		result.Conflicts = append(result.Conflicts, entry)
		return
	case SyncActionCreate:
		result.Created++
	case SyncActionUpdate:
		result.Updated++
	}

	if err := s.repository.SaveSlide(ctx, s.buildSlide(entry, local)); err != nil {
		result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
	}
}

// applyArtifact handles a media file or content package entry: the payload
// is fetched through the download coordinator, stored under its blob id and
// committed atomically with the revision update.
func (s *service) applyArtifact(ctx context.Context, entry ManifestEntry, lastForOwner bool, result *SyncResult) {
	action, local, err := s.planArtifact(ctx, entry)
	if err != nil {
		result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
		return
	}

	switch action {
	case SyncActionSkip:
		result.Skipped++
		// The payload is already local; a skipped last artifact must still
		// settle an owner the presentation pass left stale.
		if lastForOwner {
			s.settleOwner(ctx, entry, result)
		}
		return
	case SyncActionConflict:
		result.Conflicts = append(result.Conflicts, entry)
		slog.Warn("Revision conflict",
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"manifest_revision", entry.Revision,
			"error", ErrConflictRevision)
		return
	}

	// Payload not local yet: owner goes stale until it lands.
	if err := s.repository.SetPresentationSyncState(ctx, entry.ParentID, SyncStateStale); err != nil && !errors.Is(err, ErrPresentationNotFound) {
		result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
		return
	}

	if err := s.ensureBlob(ctx, entry.BlobID); err != nil {
		result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
		return
	}

	ownerState := SyncState("")
	if lastForOwner && !ownerFailed(result, entry.ParentID) {
		ownerState = SyncStateSynced
	}

	if err := s.commitArtifact(ctx, entry, local, ownerState); err != nil {
		if errors.Is(err, ErrPresentationNotFound) {
			// Owner was deleted while the download ran; the write-back is a
			// deliberate no-op.
			slog.Info("Skipping write-back for deleted owner",
				"entity_type", entry.EntityType,
				"entity_id", entry.EntityID,
				"presentation_id", entry.ParentID)
			result.Skipped++
			return
		}
		result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
		return
	}

	if action == SyncActionCreate {
		result.Created++
	} else {
		result.Updated++
	}
}

// settleOwner flips a stale owner to synced once its last artifact of the
// pass needed no new payload. Owners in conflict, or with a failed sibling
// artifact this pass, keep their state.
func (s *service) settleOwner(ctx context.Context, entry ManifestEntry, result *SyncResult) {
	if ownerFailed(result, entry.ParentID) {
		return
	}

	owner, err := s.repository.GetPresentation(ctx, entry.ParentID)
	if err != nil {
		if !errors.Is(err, ErrPresentationNotFound) {
			result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
		}
		return
	}
	if owner.SyncState != SyncStateStale {
		return
	}

	if err := s.repository.SetPresentationSyncState(ctx, entry.ParentID, SyncStateSynced); err != nil && !errors.Is(err, ErrPresentationNotFound) {
		result.Failures = append(result.Failures, SyncFailure{Entry: entry, Err: err})
	}
}

// ownerFailed reports whether an artifact of the given presentation already
// failed during this pass.
func ownerFailed(result *SyncResult, presentationID int64) bool {
	for _, f := range result.Failures {
		if f.Entry.ParentID != presentationID {
			continue
		}
		if f.Entry.EntityType == EntityTypeMediaFile || f.Entry.EntityType == EntityTypeContentPackage {
			return true
		}
	}
	return false
}

// planArtifact looks up the local artifact row and decides the action. The
// second return value is non-nil for updates.
func (s *service) planArtifact(ctx context.Context, entry ManifestEntry) (SyncAction, any, error) {
	switch entry.EntityType {
	case EntityTypeMediaFile:
		local, err := s.repository.GetMediaFile(ctx, entry.EntityID)
		if err != nil {
			if errors.Is(err, ErrMediaFileNotFound) {
				return SyncActionCreate, nil, nil
			}
			return "", nil, err
		}
		return decideAction(local.Revision, true, entry.Revision), local, nil
	case EntityTypeContentPackage:
		local, err := s.repository.GetContentPackage(ctx, entry.EntityID)
		if err != nil {
			if errors.Is(err, ErrContentPackageNotFound) {
				return SyncActionCreate, nil, nil
			}
			return "", nil, err
		}
		return decideAction(local.Revision, true, entry.Revision), local, nil
	default:
		return "", nil, fmt.Errorf("entity type %q is not a blob artifact", entry.EntityType)
	}
}

func (s *service) commitArtifact(ctx context.Context, entry ManifestEntry, local any, ownerState SyncState) error {
	var payload artifactPayload
	if len(entry.Data) > 0 {
		if err := json.Unmarshal(entry.Data, &payload); err != nil {
			slog.Warn("Malformed artifact payload", "entity_id", entry.EntityID, "error", err)
		}
	}

	mimeType, fileSize := payload.MimeType, payload.FileSize
	if meta, err := s.blobStore.GetObjectMeta(ctx, entry.BlobID); err == nil {
		mimeType = meta.ContentType
		fileSize = meta.Size
	}

	now := time.Now().UTC()
	switch entry.EntityType {
	case EntityTypeMediaFile:
		mf := &MediaFile{
			MediaFileID:           entry.EntityID,
			PresentationID:        entry.ParentID,
			BlobID:                entry.BlobID,
			Revision:              entry.Revision,
			IsAvailableForSharing: payload.IsAvailableForSharing,
			Title:                 payload.Title,
			FileName:              payload.FileName,
			FileSize:              fileSize,
			MimeType:              mimeType,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if prev, ok := local.(*MediaFile); ok && prev != nil {
			mf.CreatedAt = prev.CreatedAt
		}
		return s.repository.SaveMediaFileRevision(ctx, mf, ownerState)
	default:
		cp := &ContentPackage{
			ContentPackageID: entry.EntityID,
			PresentationID:   entry.ParentID,
			BlobID:           entry.BlobID,
			Revision:         entry.Revision,
			FileSize:         fileSize,
			MimeType:         mimeType,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if prev, ok := local.(*ContentPackage); ok && prev != nil {
			cp.CreatedAt = prev.CreatedAt
		}
		return s.repository.SaveContentPackageRevision(ctx, cp, ownerState)
	}
}

// ensureBlob makes the payload for blobID present in the local blob store,
// deduplicating concurrent fetches through the coordinator.
func (s *service) ensureBlob(ctx context.Context, blobID string) error {
	if blobID == "" {
		return &DownloadError{BlobID: blobID, Op: "fetch", Err: fmt.Errorf("manifest entry carries no blob id")}
	}
	if s.blobs == nil || s.blobStore == nil {
		return fmt.Errorf("no blob fetcher or blob store configured")
	}

	ticket, admission := s.downloader.Acquire(blobID)
	if admission == AdmissionAlreadyInFlight {
		return ticket.Wait(ctx)
	}

	// The fetch outlives a cancelled pass on purpose: transfers are never
	// aborted midway, only bounded by the coordinator's timeout.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.downloader.FetchTimeout())
	defer cancel()

	err := s.downloadBlob(fetchCtx, blobID)
	ticket.Complete(err)
	return err
}

func (s *service) downloadBlob(ctx context.Context, blobID string) error {
	blob, err := s.blobs.FetchBlob(ctx, blobID)
	if err != nil {
		return &DownloadError{BlobID: blobID, Op: "fetch", Err: err}
	}
	defer blob.Body.Close()

	params := UploadParams{ObjectKey: blobID, MimeType: blob.MimeType}
	if err := s.blobStore.UploadWithParams(ctx, blob.Body, params); err != nil {
		return &DownloadError{BlobID: blobID, Op: "store", Err: err}
	}
	return nil
}

func (s *service) markClientSynchronized(ctx context.Context, clientID int64) {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	client.Synchronized = &now
	client.UpdatedAt = now
	if err := s.repository.SaveClient(ctx, client); err != nil {
		slog.Warn("Failed to stamp client synchronized", "client_id", clientID, "error", err)
	}
}
