package handlers

import (
	"net/http"
	"strconv"

	"github.com/bpepple/clu-comics-sub000/internal/index"
)

const defaultSearchLimit = 50

// SearchResult is the envelope around a name search.
type SearchResult struct {
	Query string        `json:"query"`
	Items []index.Entry `json:"items"`
	Total int           `json:"total"`
}

// Search performs a case-insensitive substring name search against the
// index.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := defaultSearchLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	items, err := h.lib.SearchIndex(r.Context(), query, limit)
	if err != nil {
		writeJSONError(w, "Search failed", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []index.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, SearchResult{
		Query: query,
		Items: items,
		Total: len(items),
	})
}
