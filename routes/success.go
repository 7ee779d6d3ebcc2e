package routes

import (
	"net/http"

	"safemigrator/logger"
)

// ReportHandler returns the conversion report of an asset
func (s *Server) ReportHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	report, err := s.engine.Report(r.Context(), id)
	if err != nil {
		logger.Errorf("Failed to query report of asset %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "no report for this asset")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// StatisticsHandler returns the aggregate migration counters
func (s *Server) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Statistics(r.Context())
	if err != nil {
		logger.Errorf("Failed to read statistics: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
