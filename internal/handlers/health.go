package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/bpepple/clu-comics-sub000/internal/config"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
)

var startTime = time.Now()

// HealthResponse contains the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	Rebuilding  bool   `json:"rebuilding"`
	LastRebuild string `json:"lastRebuild,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service. The service is
// considered ready once the first reconciliation pass has completed.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	lastRebuild := h.lib.LastRebuild()
	ready := !lastRebuild.IsZero()

	response := HealthResponse{
		Ready:        ready,
		Version:      config.Version,
		Uptime:       time.Since(startTime).Round(time.Second).String(),
		Rebuilding:   h.lib.Rebuilding(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ready {
		response.Status = statusHealthy
		response.LastRebuild = lastRebuild.Format(time.RFC3339)
	} else {
		response.Status = statusStarting
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if the
// server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only after the first reconciliation pass
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.lib.LastRebuild().IsZero() {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{"status": "ready"})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "not_ready"})
	}
}
