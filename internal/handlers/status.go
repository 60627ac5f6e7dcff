package handlers

import (
	"net/http"
)

// GetStatus reports the operational snapshot: cache occupancy and hit
// rate, index totals, and rebuild/invalidation recency.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.lib.Status(r.Context()))
}
