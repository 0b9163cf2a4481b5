package api

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	media     MediaTool
	version   string
	startTime time.Time
}

func NewHealthHandler(media MediaTool, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		media:     media,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Transcription needs ffmpeg; the service is up but degraded without it.
	if h.media != nil {
		checks["ffmpeg"] = "ok"
	} else {
		checks["ffmpeg"] = "not_found"
		status = "degraded"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
