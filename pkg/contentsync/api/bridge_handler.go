package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/breffi/content-sync/pkg/contentsync"
)

// BridgeHandler handles HTTP requests for the bridge message queues and the
// content surface navigation state
type BridgeHandler struct {
	service contentsync.Service
}

// NewBridgeHandler creates a new bridge handler
func NewBridgeHandler(service contentsync.Service) *BridgeHandler {
	return &BridgeHandler{service: service}
}

// Routes returns the routes for bridge queues
func (h *BridgeHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/queues/{queue}/messages", h.Enqueue)
	r.Get("/queues/{queue}/messages/next", h.Next)
	r.Delete("/queues/{queue}/answered", h.Purge)
	r.Post("/messages/{guid}/answer", h.Answer)

	r.Post("/surface/navigation", h.Navigated)
	r.Get("/surface", h.SurfaceState)

	return r
}

// EnqueueRequest is the request body for enqueuing a bridge message
type EnqueueRequest struct {
	Command   string `json:"command"`
	Data      []byte `json:"data,omitempty"`
	ContentID *int64 `json:"content_id,omitempty"`
	GUID      string `json:"guid,omitempty"`
	Order     *int   `json:"order,omitempty"`
}

// Enqueue appends a message to a named queue
func (h *BridgeHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if queue == "" {
		http.Error(w, "queue is required", http.StatusBadRequest)
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	msg, err := h.service.EnqueueMessage(r.Context(), contentsync.EnqueueMessageRequest{
		Queue:     queue,
		Command:   req.Command,
		Data:      req.Data,
		ContentID: req.ContentID,
		GUID:      req.GUID,
		Order:     req.Order,
	})
	if err != nil {
		slog.Error("Failed to enqueue message", "queue", queue, "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, msg)
}

// Next returns the lowest-order pending message of a queue
func (h *BridgeHandler) Next(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")

	msg, err := h.service.NextMessage(r.Context(), queue)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, msg)
}

// AnswerRequest is the request body for answering a bridge message
type AnswerRequest struct {
	Response string `json:"response"`
}

// Answer sets the response on a pending message
func (h *BridgeHandler) Answer(w http.ResponseWriter, r *http.Request) {
	guid := chi.URLParam(r, "guid")

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.AnswerMessage(r.Context(), guid, req.Response); err != nil {
		slog.Error("Failed to answer message", "guid", guid, "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PurgeResponse reports how many answered messages were removed
type PurgeResponse struct {
	Purged int `json:"purged"`
}

// Purge removes answered messages past the retention window
func (h *BridgeHandler) Purge(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")

	n, err := h.service.PurgeAnswered(r.Context(), queue)
	if err != nil {
		slog.Error("Failed to purge queue", "queue", queue, "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	render.JSON(w, r, PurgeResponse{Purged: n})
}

// NavigationRequest is the request body for reporting a surface navigation
// transition
type NavigationRequest struct {
	State contentsync.NavState `json:"state"`
}

// Navigated records a navigation transition reported by the content surface
func (h *BridgeHandler) Navigated(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.SurfaceNavigated(req.State); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SurfaceStateResponse is the response body for the surface state
type SurfaceStateResponse struct {
	State contentsync.NavState `json:"state"`
}

// SurfaceState returns the surface's current navigation state
func (h *BridgeHandler) SurfaceState(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SurfaceStateResponse{State: h.service.SurfaceState()})
}
