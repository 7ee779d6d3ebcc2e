package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"safemigrator/job"
	"safemigrator/logger"
	"safemigrator/models"
	"safemigrator/settings"
)

// BatchHandler runs one coordinator batch synchronously. The body, if
// any, holds per-run overrides.
func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
	var o *settings.Overrides
	if r.ContentLength != 0 {
		o = &settings.Overrides{}
		if err := json.NewDecoder(r.Body).Decode(o); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	logger.Infof("Batch requested by %q", subject(r))
	report, err := s.engine.Run(r.Context(), o)
	if err != nil {
		logger.Errorf("Batch failed: %v", err)
		writeJSON(w, statusOf(err), job.ErrorResult(err))
		return
	}
	writeJSON(w, http.StatusOK, job.BatchResult(report))
}

type reprocessRequest struct {
	AssetIDs []models.AssetID `json:"asset_ids"`
}

// ReprocessHandler retries the listed failed assets.
func (s *Server) ReprocessHandler(w http.ResponseWriter, r *http.Request) {
	var req reprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.AssetIDs) == 0 {
		writeError(w, http.StatusBadRequest, "asset_ids required")
		return
	}

	items, err := s.engine.Reprocess(r.Context(), req.AssetIDs)
	if err != nil {
		logger.Errorf("Reprocess failed: %v", err)
		writeJSON(w, statusOf(err), job.ErrorResult(err))
		return
	}
	writeJSON(w, http.StatusOK, job.ItemsResult("reprocess", items))
}

func (s *Server) CommitHandler(w http.ResponseWriter, r *http.Request) {
	s.single(w, r, "commit", s.engine.Commit)
}

func (s *Server) RollbackHandler(w http.ResponseWriter, r *http.Request) {
	s.single(w, r, "rollback", s.engine.Rollback)
}

// single runs a one-asset operation. Per-asset failures come back as a
// result item with the status of their kind.
func (s *Server) single(w http.ResponseWriter, r *http.Request, verb string,
	op func(ctx context.Context, id models.AssetID) (models.Outcome, error)) {
	id, ok := assetID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	logger.Infof("%s of asset %d requested by %q", verb, id, subject(r))
	o, err := op(r.Context(), id)
	if err != nil {
		logger.Warnf("%s of asset %d failed: %v", verb, id, err)
		if o.Kind == "" {
			writeJSON(w, statusOf(err), job.ErrorResult(err))
			return
		}
		writeJSON(w, statusOf(err), job.ItemsResult(verb, []models.Outcome{o}))
		return
	}
	writeJSON(w, http.StatusOK, job.ItemsResult(verb, []models.Outcome{o}))
}

// CommitAllHandler commits every asset that still holds a backup.
func (s *Server) CommitAllHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.engine.CommitAll(r.Context())
	if err != nil {
		logger.Errorf("Commit all failed: %v", err)
		writeJSON(w, statusOf(err), job.ErrorResult(err))
		return
	}
	writeJSON(w, http.StatusOK, job.ItemsResult("commit", items))
}
