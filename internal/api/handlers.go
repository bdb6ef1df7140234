package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/halotuses/ai-passport-app-sub000/internal/store"
	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

const defaultHistoryLimit = 50

// Handler implements the inspection API handlers
type Handler struct {
	store   store.Store
	version string
	// userID is this installation's minted learner identity, used when a
	// request does not name one explicitly.
	userID string
}

// NewHandler creates a new Handler with store.Store interface. userID is
// the installation's learner identity and backs bookmark requests that
// omit an explicit user_id.
func NewHandler(s store.Store, version, userID string) *Handler {
	return &Handler{
		store:   s,
		version: version,
		userID:  userID,
	}
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	RecordCount int64  `json:"record_count"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats(r.Context())

	resp := HealthResponse{
		Status:      "healthy",
		Version:     h.version,
		RecordCount: stats.TotalRecords,
	}

	writeJSON(w, http.StatusOK, resp)
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats(r.Context()))
}

// History handles GET /api/v1/history?limit=N
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records := h.store.FetchHistory(r.Context(), limit)
	if records == nil {
		records = []types.ProgressRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ChapterProgress handles GET /api/v1/chapters/{id}/progress
func (h *Handler) ChapterProgress(w http.ResponseWriter, r *http.Request) {
	numericID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "chapter id must be numeric")
		return
	}

	records := h.store.QuestionProgresses(r.Context(), numericID)
	if records == nil {
		records = []types.ProgressRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Progress handles GET /api/v1/progress?key=<quiz key>
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		WriteProblem(w, r, http.StatusBadRequest, "key query parameter is required")
		return
	}

	record, err := h.store.Get(r.Context(), key)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// Bookmarks handles GET /api/v1/bookmarks?user_id=<id>. Without an
// explicit user_id the installation's own learner identity is used.
func (h *Handler) Bookmarks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = h.userID
	}
	if userID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	records := h.store.Bookmarks(r.Context(), userID)
	if records == nil {
		records = []types.BookmarkRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
