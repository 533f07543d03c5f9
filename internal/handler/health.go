package handler

import (
	"net/http"
	"time"
)

// HealthHandler reports liveness.
type HealthHandler struct {
	started time.Time
}

// NewHealthHandler records now as the process start time.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now()}
}

// HealthResponse is the body of GET /api/health. Uptime is in seconds.
type HealthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

// HandleHealth answers GET /api/health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Seconds(),
	})
}
