// Package api exposes the HTTP interface for the bundler service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/landingzip/bundler/internal/bundle"
	"github.com/landingzip/bundler/internal/config"
	"github.com/landingzip/bundler/internal/dispatcher"
	"github.com/landingzip/bundler/internal/metrics"
	"github.com/landingzip/bundler/internal/queue"
	"github.com/landingzip/bundler/internal/taskstore"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// IDGenerator mints task identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Server wires HTTP handlers to the pipeline, dispatcher, and task store.
type Server struct {
	router     chi.Router
	tasks      taskstore.Store
	pipeline   *bundle.Pipeline
	dispatcher *dispatcher.Dispatcher
	idGen      IDGenerator
	clock      bundle.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	tasks taskstore.Store,
	pipeline *bundle.Pipeline,
	dispatch *dispatcher.Dispatcher,
	idGen IDGenerator,
	clock bundle.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tasks:      tasks,
		pipeline:   pipeline,
		dispatcher: dispatch,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/bundles", func(r chi.Router) {
			// No timeout handler here: archives stream while the
			// pipeline is still in flight.
			r.Post("/", s.createBundle)
			r.Post("/async", s.createBundleAsync)
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Use(timeoutMiddleware(30 * time.Second))
			r.Get("/", s.listTasks)
			r.Get("/{task_id}", s.getTask)
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

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The task store is the only hard dependency at startup; probe it.
	if _, err := s.tasks.ListTasks(r.Context(), nil, 1, 0); err != nil {
		writeError(w, http.StatusServiceUnavailable, "task store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type bundleRequest struct {
	URL string `json:"url"`
}

// createBundle runs the pipeline synchronously and streams the archive
// back. Errors before the first response byte become JSON errors;
// errors after that can only be logged, the status line is gone.
func (s *Server) createBundle(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}

	taskID, err := s.idGen.NewRawID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate task id")
		return
	}

	run, err := s.pipeline.Prepare(r.Context(), taskID, req.URL)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, bundle.ErrInvalidPageURL) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.pipeline.ArchiveName()))
	w.Header().Set("X-Task-ID", taskID.String())

	if err := s.pipeline.Deliver(r.Context(), run, w); err != nil {
		s.logger.Error("archive stream failed",
			zap.Stringer("task_id", taskID),
			zap.String("url", req.URL),
			zap.Error(err),
		)
	}
}

// createBundleAsync accepts the task and hands it to the worker pool.
// The task record appears once a worker picks the item up.
func (s *Server) createBundleAsync(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	if err := bundle.ValidatePageURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "async bundling is not enabled")
		return
	}

	taskID, err := s.idGen.NewRawID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate task id")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := queue.Item{
		TaskID:    taskID,
		URL:       req.URL,
		Submitted: s.clock.Now().Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, queue.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID.String()})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var statusFilter *taskstore.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := taskstore.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		statusFilter = &status
	}

	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := s.tasks.ListTasks(r.Context(), statusFilter, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toTaskResponse(task))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := s.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

type taskResponse struct {
	TaskID     string  `json:"task_id"`
	URL        string  `json:"url"`
	Status     string  `json:"status"`
	AssetCount int     `json:"asset_count"`
	Error      *string `json:"error,omitempty"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

func toTaskResponse(task taskstore.Task) taskResponse {
	resp := taskResponse{
		TaskID:     task.ID.String(),
		URL:        task.URL,
		Status:     string(task.Status),
		AssetCount: task.AssetCount,
		Error:      task.ErrorMessage,
		StartedAt:  task.StartedAt.Format(time.RFC3339),
	}
	if task.FinishedAt != nil {
		finished := task.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &finished
	}
	return resp
}

func parseLimitOffset(r *http.Request) (int, int, error) {
	limit := defaultListLimit
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
		offset = parsed
	}
	return limit, offset, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

// requestIDFrom extracts the request ID set by requestIDMiddleware.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
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
