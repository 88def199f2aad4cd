package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/breffi/content-sync/pkg/contentsync"
)

// EventHandler handles HTTP requests for analytics events
type EventHandler struct {
	service contentsync.Service
}

// NewEventHandler creates a new event handler
func NewEventHandler(service contentsync.Service) *EventHandler {
	return &EventHandler{service: service}
}

// Routes returns the routes for events
func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Record)
	r.Get("/unsynced", h.ListUnsynced)
	r.Post("/upload", h.Upload)

	return r
}

// RecordEventRequest is the request body for recording an event
type RecordEventRequest struct {
	EventKey   string `json:"event_key"`
	EventValue string `json:"event_value,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	ContentID  int64  `json:"content_id,omitempty"`
	TimeZone   int    `json:"time_zone,omitempty"`
}

// Record appends one analytics event
func (h *EventHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.EventKey == "" {
		http.Error(w, "event_key is required", http.StatusBadRequest)
		return
	}

	event, err := h.service.RecordEvent(r.Context(), contentsync.RecordEventRequest{
		EventKey:   req.EventKey,
		EventValue: req.EventValue,
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		ContentID:  req.ContentID,
		TimeZone:   req.TimeZone,
	})
	if err != nil {
		slog.Error("Failed to record event", "event_key", req.EventKey, "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, event)
}

// ListUnsynced lists events still awaiting upload, oldest first
func (h *EventHandler) ListUnsynced(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := h.service.ListUnsyncedEvents(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, events)
}

// UploadResponse reports how many events the collector accepted
type UploadResponse struct {
	Uploaded int `json:"uploaded"`
}

// Upload pushes one batch of unsynced events to the remote collector
func (h *EventHandler) Upload(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.UploadEvents(r.Context())
	if err != nil {
		slog.Error("Failed to upload events", "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, UploadResponse{Uploaded: n})
}
