package api

import (
	"net/http"

	"github.com/ayusman/paperbeat/internal/store"
)

// NotesHandler serves the note history at /api/notes.
type NotesHandler struct {
	store *store.Store
}

// NewNotesHandler creates a NotesHandler.
func NewNotesHandler(s *store.Store) *NotesHandler {
	return &NotesHandler{store: s}
}

type listNotesResponse struct {
	Notes []store.Note `json:"notes"`
	Total int          `json:"total"`
}

// ServeHTTP implements the http.Handler interface.
func (h *NotesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, ok := queryLimit(r, 50, 1000)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	notes, err := h.store.Notes().Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list notes")
		return
	}
	total, err := h.store.Notes().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count notes")
		return
	}

	writeJSON(w, http.StatusOK, listNotesResponse{Notes: notes, Total: total})
}
