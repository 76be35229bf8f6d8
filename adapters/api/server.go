// Package api exposes bootstrap runs over HTTP.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"bootfit/adapters/excel"
	"bootfit/app"
	"bootfit/internal"
	"bootfit/internal/errors"
	"bootfit/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds POST /api/runs bodies.
const maxBodyBytes = 32 << 20

// Server routes HTTP requests to the bootstrap service
type Server struct {
	router   *chi.Mux
	service  *app.BootstrapService
	gatherer prometheus.Gatherer
	events   *SSEHub
	logger   *internal.Logger
}

// NewServer creates the router. A nil gatherer disables /metrics.
func NewServer(service *app.BootstrapService, gatherer prometheus.Gatherer, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router:   chi.NewRouter(),
		service:  service,
		gatherer: gatherer,
		events:   NewSSEHub(logger),
		logger:   logger.With("API"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Events returns the hub that streams run progress
func (s *Server) Events() *SSEHub {
	return s.events
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Get("/api/events", s.events.HandleSSE)
	s.router.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/report", s.handleRunReport)
		r.Get("/{id}/export", s.handleRunExport)
		r.Delete("/{id}", s.handleDeleteRun)
	})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	req, err := body.ServiceRequest()
	if err != nil {
		s.writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}

	if body.StreamID != "" {
		req.Progress = func(completed, total int) {
			s.events.Broadcast(RunEvent{StreamID: body.StreamID, EventType: EventProgress, Completed: completed, Total: total})
		}
	}

	out, err := s.service.Run(r.Context(), req)
	if err != nil {
		if body.StreamID != "" {
			s.events.Broadcast(RunEvent{StreamID: body.StreamID, EventType: EventFailed, Error: err.Error()})
		}
		s.writeError(w, err)
		return
	}
	if body.StreamID != "" {
		s.events.Broadcast(RunEvent{StreamID: body.StreamID, EventType: EventFinished, RunID: out.ID,
			Completed: out.Result.NumIteration, Total: body.NumIteration})
	}
	result, stored, err := s.service.Get(r.Context(), out.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	view := NewRunView(result, stored, false)
	view.BaseChisq = finite(out.BaseChisq)
	view.RuntimeMs = out.RuntimeMs
	w.Header().Set("Location", "/api/runs/"+out.ID)
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	runs, err := s.service.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, summaryView(run))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	result, stored, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	withSamples := r.URL.Query().Get("samples") == "true"
	s.writeJSON(w, http.StatusOK, NewRunView(result, stored, withSamples))
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	result, stored, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	meta := report.Meta{ModelName: stored.ModelName, CreatedAt: stored.CreatedAt}
	switch format := r.URL.Query().Get("format"); format {
	case "", "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(report.HTML(result, meta))
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(report.Markdown(result, meta))
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(result.String()))
	default:
		s.writeError(w, errors.InvalidInput(fmt.Sprintf("unknown report format %q", format)))
	}
}

func (s *Server) handleRunExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, _, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"bootstrap_%s.xlsx\"", id))
	if err := excel.ExportResult(w, result); err != nil {
		s.logger.Error("export of %s failed: %v", id, err)
	}
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response: %v", err)
	}
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case stderrors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "CANCELED"
	}
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError, errors.CodeInternalError
	}
	switch appErr.Code {
	case errors.CodeNotFound:
		return http.StatusNotFound, appErr.Code
	case errors.CodeInvalidInput, errors.CodeValidationError, errors.CodeSchemaMismatch, errors.CodeInvalidBaseFit:
		return http.StatusBadRequest, appErr.Code
	case errors.CodeInitialFitFailure, errors.CodeBootstrapExhausted:
		return http.StatusUnprocessableEntity, appErr.Code
	default:
		return http.StatusInternalServerError, appErr.Code
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s: %v", code, err)
	} else {
		s.logger.Debug("%s: %v", code, err)
	}
	s.writeJSON(w, status, ErrorResponse{Code: code, Message: err.Error()})
}
