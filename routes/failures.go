package routes

import (
	"net/http"

	"safemigrator/logger"
)

// ErrorHandler returns the persisted error record of an asset
func (s *Server) ErrorHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	record, err := s.engine.Error(r.Context(), id)
	if err != nil {
		logger.Errorf("Failed to query error record of asset %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"asset_id": id,
			"status":   "ok",
			"message":  "No error recorded for this asset",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset_id": id,
		"status":   "failed",
		"error":    record,
	})
}

// DimensionsHandler lists the filename dimension mismatches found so far
func (s *Server) DimensionsHandler(w http.ResponseWriter, r *http.Request) {
	issues, err := s.engine.DimensionIssues(r.Context())
	if err != nil {
		logger.Errorf("Failed to list dimension issues: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issues": issues,
		"count":  len(issues),
	})
}
