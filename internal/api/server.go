// Package api exposes the read-only HTTP interface over run history,
// manifests, and metrics.
package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/checkpoint"
	"github.com/roamline/trip-cli/internal/metrics"
	"github.com/roamline/trip-cli/internal/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
	requestTimeout  = 10 * time.Second
)

// Server wires HTTP handlers to the run store and checkpoint store.
type Server struct {
	router      chi.Router
	runs        store.RunStore
	checkpoints *checkpoint.Store
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runs store.RunStore, checkpoints *checkpoint.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runs:        runs,
		checkpoints: checkpoints,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.recoverMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/stages", s.listStages)
				r.Get("/manifest", s.getManifest)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listRuns handles GET /api/runs?session=&limit=. The session filter is
// required because runs are keyed by session.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}
	limit := defaultRunLimit
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if val > maxRunLimit {
			val = maxRunLimit
		}
		limit = val
	}

	runs, err := s.runs.ListRuns(r.Context(), sessionID, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) listStages(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if _, err := s.runs.GetRun(r.Context(), runID); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	stages, err := s.runs.ListStages(r.Context(), runID)
	if err != nil {
		s.logger.Error("list stages failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list stages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

// getManifest handles GET /api/runs/{run_id}/manifest?verify=true. With
// verify set, each stage file's hash is recomputed and compared against the
// manifest.
func (s *Server) getManifest(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	var manifest checkpoint.RunManifest
	if err := s.checkpoints.Read(s.checkpoints.ManifestPath(run.SessionID, runID), &manifest); err != nil {
		if eris.Is(err, checkpoint.ErrNotFound) {
			writeError(w, http.StatusNotFound, "manifest not found")
			return
		}
		s.logger.Error("read manifest failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read manifest")
		return
	}

	payload := map[string]any{"manifest": manifest}
	if r.URL.Query().Get("verify") == "true" {
		dir := filepath.Join(s.checkpoints.RunDir(run.SessionID, runID), "checkpoints")
		payload["verification"] = checkpoint.VerifyManifest(&manifest, dir)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(ww, r)
		metrics.ObserveHTTPRequest(r.Method, ww.status)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
