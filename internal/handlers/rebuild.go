package handlers

import (
	"errors"
	"net/http"

	"github.com/bpepple/clu-comics-sub000/internal/reconcile"
)

// TriggerRebuild runs a synchronous reconciliation pass against the
// library roots and reports the pass summary. A pass that is already
// running is reported as a conflict rather than an empty summary.
func (h *Handlers) TriggerRebuild(w http.ResponseWriter, r *http.Request) {
	summary, err := h.lib.Rebuild(r.Context())
	if err != nil {
		if errors.Is(err, reconcile.ErrRebuildInProgress) {
			writeJSONError(w, "Rebuild already in progress", http.StatusConflict)
			return
		}
		writeJSONError(w, "Rebuild failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, summary)
}
