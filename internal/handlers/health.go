package handlers

import (
	"net/http"
	"runtime"
	"time"

	"video-reducer/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Error   string `json:"error,omitempty"`

	// Reduction info
	CeilingBytes         uint64 `json:"ceilingBytes"`
	ReductionsInProgress int64  `json:"reductionsInProgress"`
	UploadsEnabled       bool   `json:"uploadsEnabled"`
	HistoryEnabled       bool   `json:"historyEnabled"`
	EventSubscribers     int    `json:"eventSubscribers"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:               statusHealthy,
		Ready:                true,
		Version:              startup.Version,
		Uptime:               time.Since(h.startTime).Round(time.Second).String(),
		CeilingBytes:         h.reducer.Ceiling(),
		ReductionsInProgress: h.inProgress.Load(),
		UploadsEnabled:       h.uploader != nil && h.uploader.Configured(),
		HistoryEnabled:       h.history != nil,
		GoVersion:            runtime.Version(),
		NumCPU:               runtime.NumCPU(),
		NumGoroutine:         runtime.NumGoroutine(),
	}
	if h.hub != nil {
		response.EventSubscribers = h.hub.Subscribers()
	}
	if err := h.ready(); err != nil {
		response.Status = statusDegraded
		response.Ready = false
		response.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if !response.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the service can encode
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.ready(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{
		"status": "ready",
	})
}
