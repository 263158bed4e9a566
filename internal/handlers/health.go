package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-conversions/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Conversion pipeline
	QueueDepth   int  `json:"queueDepth"`
	MemoryPaused bool `json:"memoryPaused"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	TotalMedia   int `json:"totalMedia,omitempty"`
	TrashedMedia int `json:"trashedMedia,omitempty"`
}

// HealthCheck reports the state of the service. Memory pressure degrades
// the status but keeps it at 200.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	ready := h.ready.Load()
	response := HealthResponse{
		Ready:        ready,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if h.queue != nil {
		response.QueueDepth = h.queue.Depth()
	}
	if h.memory != nil {
		response.MemoryPaused = h.memory.Paused()
	}
	if h.stats != nil {
		stats := h.stats.GetStats()
		response.TotalMedia = stats.TotalMedia
		response.TrashedMedia = stats.TrashedMedia
	}

	status := http.StatusOK
	switch {
	case !ready:
		response.Status = statusStarting
		status = http.StatusServiceUnavailable
	case response.MemoryPaused:
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}
	writeJSONStatus(w, status, response)
}

// LivenessCheck returns 200 while the process serves requests.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only after SetReady(true).
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready.Load() {
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}
