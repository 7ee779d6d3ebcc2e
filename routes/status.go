package routes

import (
	"net/http"

	"safemigrator/logger"
	"safemigrator/models"
)

// AssetStatusResponse represents the lifecycle state of an asset
type AssetStatusResponse struct {
	AssetID models.AssetID   `json:"asset_id"`
	State   string           `json:"state"`
	Failed  bool             `json:"failed"`
}

// StatusHandler returns the lifecycle state of an asset
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	state, err := s.engine.Lifecycle(r.Context(), id)
	if err != nil {
		logger.Errorf("Failed to read state of asset %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, AssetStatusResponse{AssetID: id, State: state.String(), Failed: state.IsFailure()})
}
