package routes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"safemigrator/logger"
	taskqueue "safemigrator/taskQueue"
)

// EnqueueHandler queues an operation for the background driver and
// returns immediately.
func (s *Server) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "request queue not configured")
		return
	}

	var req taskqueue.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	queued, err := s.queue.Enqueue(req)
	if err != nil {
		logger.Warnf("Failed to enqueue %s: %v", req.Op, err)
		writeError(w, statusOf(err), err.Error())
		return
	}

	logger.Infof("Queued %s request %s for %q", queued.Op, queued.ID, subject(r))
	writeJSON(w, http.StatusAccepted, queued)
}

// QueueListHandler lists the requests still waiting for the driver
func (s *Server) QueueListHandler(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "request queue not configured")
		return
	}
	reqs, err := s.queue.Pending()
	if err != nil {
		logger.Errorf("Failed to list queue: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": reqs,
		"count":    len(reqs),
	})
}

// CancelHandler drops a queued request that has not run yet
func (s *Server) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "request queue not configured")
		return
	}
	id := chi.URLParam(r, "id")
	ok, err := s.queue.Cancel(id)
	if err != nil {
		logger.Errorf("Failed to cancel request %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "request not queued")
		return
	}
	logger.Infof("Request cancelled: %s", id)
	w.WriteHeader(http.StatusNoContent)
}
