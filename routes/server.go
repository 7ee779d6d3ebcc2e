// Package routes exposes the migration operations over HTTP.
package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"safemigrator/failures"
	"safemigrator/lock"
	"safemigrator/logger"
	"safemigrator/models"
	taskqueue "safemigrator/taskQueue"
	"safemigrator/utils"
)

// Engine is the part of the job engine the handlers call.
type Engine interface {
	taskqueue.Engine
	Report(ctx context.Context, id models.AssetID) (*models.Report, error)
	Statistics(ctx context.Context) (models.Statistics, error)
	DimensionIssues(ctx context.Context) ([]models.DimensionIssue, error)
	Error(ctx context.Context, id models.AssetID) (*failures.Record, error)
	Lifecycle(ctx context.Context, id models.AssetID) (models.Lifecycle, error)
}

// Queue accepts requests for the background driver.
type Queue interface {
	Enqueue(r taskqueue.Request) (taskqueue.Request, error)
	Pending() ([]taskqueue.Request, error)
	Cancel(id string) (bool, error)
}

type Server struct {
	engine Engine
	queue  Queue
	auth   utils.VerifyConfig
}

// NewServer builds the handlers. queue may be nil, in which case the
// queue endpoints answer 503.
func NewServer(engine Engine, queue Queue, auth utils.VerifyConfig) *Server {
	return &Server{engine: engine, queue: queue, auth: auth}
}

// Router wires every endpoint. Health and version are public; the rest
// need a bearer token, with the write scope for anything that changes
// state.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer, requestLogger)

	r.Get("/health", s.HealthHandler)
	r.Get("/version", VersionHandler)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireScope(utils.ScopeRead))
			r.Get("/statistics", s.StatisticsHandler)
			r.Get("/dimensions", s.DimensionsHandler)
			r.Get("/queue", s.QueueListHandler)
			r.Get("/assets/{id}/status", s.StatusHandler)
			r.Get("/assets/{id}/report", s.ReportHandler)
			r.Get("/assets/{id}/error", s.ErrorHandler)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.requireScope(utils.ScopeWrite))
			r.Post("/batch", s.BatchHandler)
			r.Post("/reprocess", s.ReprocessHandler)
			r.Post("/commit-all", s.CommitAllHandler)
			r.Post("/assets/{id}/commit", s.CommitHandler)
			r.Post("/assets/{id}/rollback", s.RollbackHandler)
			r.Post("/queue", s.EnqueueHandler)
			r.Delete("/queue/{id}", s.CancelHandler)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps an operation error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, lock.ErrHeld):
		return http.StatusConflict
	case errors.Is(err, taskqueue.ErrBadRequest):
		return http.StatusBadRequest
	}
	switch failures.KindOf(err) {
	case failures.KindCodecCapabilityMissing:
		return http.StatusServiceUnavailable
	case failures.KindInvalidState, failures.KindRollbackUnavailable, failures.KindRollbackConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func assetID(r *http.Request) (models.AssetID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return models.AssetID(n), true
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorf("Panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debugw("http request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start), "remote", r.RemoteAddr)
	})
}
