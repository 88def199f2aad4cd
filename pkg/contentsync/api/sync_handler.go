package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/breffi/content-sync/pkg/contentsync"
)

// SyncHandler handles HTTP requests for the catalog and the sync engine
type SyncHandler struct {
	service contentsync.Service
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service contentsync.Service) *SyncHandler {
	return &SyncHandler{service: service}
}

// Routes returns the routes for the catalog and sync operations
func (h *SyncHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/sync", h.TriggerSync)

	r.Post("/clients", h.SaveClient)
	r.Get("/clients", h.ListClients)
	r.Get("/clients/{id}", h.GetClient)
	r.Get("/clients/{id}/presentations", h.ListPresentations)

	r.Get("/presentations/{id}", h.GetPresentation)
	r.Delete("/presentations/{id}", h.DeletePresentation)
	r.Get("/presentations/{id}/slides", h.ListSlides)
	r.Get("/presentations/{id}/media", h.ListMediaFiles)

	r.Get("/blobs/{blobId}", h.OpenBlob)

	r.Post("/users", h.SaveUser)
	r.Get("/users/{code}", h.GetUser)

	return r
}

// SyncResponse is the response body for a completed sync pass
type SyncResponse struct {
	Created   int                         `json:"created"`
	Updated   int                         `json:"updated"`
	Skipped   int                         `json:"skipped"`
	Conflicts []contentsync.ManifestEntry `json:"conflicts,omitempty"`
	Failures  []SyncFailureResponse       `json:"failures,omitempty"`
}

// SyncFailureResponse is one per-entity failure inside a sync pass
type SyncFailureResponse struct {
	Entry contentsync.ManifestEntry `json:"entry"`
	Error string                    `json:"error"`
}

// TriggerSync runs one sync pass against the remote manifest
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req contentsync.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Sync(r.Context(), req)
	if err != nil {
		slog.Error("Sync pass failed", "client_id", req.ClientID, "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	resp := SyncResponse{
		Created:   result.Created,
		Updated:   result.Updated,
		Skipped:   result.Skipped,
		Conflicts: result.Conflicts,
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, SyncFailureResponse{Entry: f.Entry, Error: f.Err.Error()})
	}

	slog.Info("Sync pass finished",
		"client_id", req.ClientID,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"conflicts", len(result.Conflicts),
		"failures", len(result.Failures))
	render.JSON(w, r, resp)
}

// SaveClient creates or updates a client
func (h *SyncHandler) SaveClient(w http.ResponseWriter, r *http.Request) {
	var req contentsync.SaveClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientID == 0 {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}

	client, err := h.service.SaveClient(r.Context(), req)
	if err != nil {
		slog.Error("Failed to save client", "client_id", req.ClientID, "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, client)
}

// ListClients lists all known clients
func (h *SyncHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context())
	if err != nil {
		slog.Error("Failed to list clients", "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, clients)
}

// GetClient retrieves a client by ID
func (h *SyncHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	client, err := h.service.GetClient(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, client)
}

// ListPresentations lists a client's presentations
func (h *SyncHandler) ListPresentations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	presentations, err := h.service.ListPresentationsByClient(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, presentations)
}

// GetPresentation retrieves a presentation by ID
func (h *SyncHandler) GetPresentation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.service.GetPresentation(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, p)
}

// DeletePresentation removes a presentation, its slides and its artifact links
func (h *SyncHandler) DeletePresentation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeletePresentation(r.Context(), id); err != nil {
		slog.Error("Failed to delete presentation", "presentation_id", id, "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	slog.Info("Presentation deleted", "presentation_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ListSlides lists a presentation's slides
func (h *SyncHandler) ListSlides(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	slides, err := h.service.ListSlidesByPresentation(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, slides)
}

// ListMediaFiles lists a presentation's media files
func (h *SyncHandler) ListMediaFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	media, err := h.service.ListMediaFilesByPresentation(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, media)
}

// OpenBlob streams a downloaded blob payload from the local store
func (h *SyncHandler) OpenBlob(w http.ResponseWriter, r *http.Request) {
	blobID := chi.URLParam(r, "blobId")
	if blobID == "" {
		http.Error(w, "blob id is required", http.StatusBadRequest)
		return
	}

	body, err := h.service.OpenBlob(r.Context(), blobID)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, body); err != nil {
		slog.Error("Failed to stream blob", "blob_id", blobID, "error", err)
	}
}

// SaveUser creates or updates the local account holder
func (h *SyncHandler) SaveUser(w http.ResponseWriter, r *http.Request) {
	var req contentsync.SaveUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == 0 {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	user, err := h.service.SaveUser(r.Context(), req)
	if err != nil {
		slog.Error("Failed to save user", "code", req.Code, "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, user)
}

// GetUser retrieves a user by code
func (h *SyncHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	code, ok := pathID(w, r, "code")
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, user)
}

// pathID parses a numeric chi URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
