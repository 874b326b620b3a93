package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"video-reducer/internal/database"
	"video-reducer/internal/logging"
)

// defaultPageSize is used when no limit is given.
const defaultPageSize = 50

// ListReductions returns the reduction history, newest first. Query
// parameters limit and offset page through it.
func (h *Handlers) ListReductions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSONError(w, "history is not available", http.StatusServiceUnavailable)
		return
	}

	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	page, err := h.history.ListReductions(r.Context(), limit, offset)
	if err != nil {
		logging.Error("failed to list reductions: %v", err)
		writeJSONError(w, "failed to list reductions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, page)
}

// GetReduction returns one history row by ID.
func (h *Handlers) GetReduction(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSONError(w, "history is not available", http.StatusServiceUnavailable)
		return
	}

	id := mux.Vars(r)["id"]
	row, err := h.history.GetReduction(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "reduction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("failed to get reduction %s: %v", id, err)
		writeJSONError(w, "failed to get reduction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, row)
}
