package handlers

import (
	"net/http"
)

// Browse returns the indexed listing for a directory: subdirectories with
// aggregate counts plus files with sizes and thumbnail flags.
func (h *Handlers) Browse(w http.ResponseWriter, r *http.Request) {
	dirPath := r.URL.Query().Get("path")
	if dirPath == "" {
		writeJSONError(w, "path parameter is required", http.StatusBadRequest)
		return
	}

	listing, err := h.lib.ListDirectory(r.Context(), dirPath)
	if err != nil {
		writeJSONError(w, "Failed to list directory", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, listing)
}

// ListFiles returns the live filesystem contents of a directory, bypassing
// the index but memoized with freshness validation.
func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	dirPath := r.URL.Query().Get("path")
	if dirPath == "" {
		writeJSONError(w, "path parameter is required", http.StatusBadRequest)
		return
	}

	listing, err := h.lib.ReadDirectory(dirPath)
	if err != nil {
		writeJSONError(w, "Failed to read directory", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, listing)
}
