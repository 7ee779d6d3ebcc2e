package routes

import (
	"net/http"
	"time"

	"safemigrator/logger"
)

var started = time.Now()

// HealthResponse is served on /health. Store is "ok" when the record
// store answered a statistics read.
type HealthResponse struct {
	Status        string `json:"status"`
	Store         string `json:"store"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Converted     int64  `json:"converted"`
	Failed        int64  `json:"failed"`
}

// HealthHandler answers 503 when the record store cannot be read.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	res := HealthResponse{
		Status:        "healthy",
		Store:         "ok",
		Version:       Version(),
		UptimeSeconds: int64(time.Since(started).Seconds()),
	}
	stats, err := s.engine.Statistics(r.Context())
	if err != nil {
		logger.Warnw("health check: record store unreadable", "error", err)
		res.Status, res.Store = "degraded", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, res)
		return
	}
	res.Converted, res.Failed = stats.Converted, stats.Failed
	writeJSON(w, http.StatusOK, res)
}
