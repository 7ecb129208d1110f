// Package api serves the recovery service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/template"
	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
	"github.com/boucer/prospek360-recovery-engine/internal/recovery"
)

// maxBodyBytes bounds request payloads.
const maxBodyBytes = 1 << 20

// HealthCheck reports whether a backing component is usable.
type HealthCheck func(ctx context.Context) error

// Server provides the HTTP API.
type Server struct {
	svc    *recovery.Service
	checks map[string]HealthCheck
	server *http.Server
	log    *slog.Logger
}

// NewServer creates a new API server.
func NewServer(svc *recovery.Service, port int, checks map[string]HealthCheck) *Server {
	mux := http.NewServeMux()
	s := &Server{
		svc:    svc,
		checks: checks,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: slog.Default().With("component", "api"),
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/lever", s.handleLever)
	mux.HandleFunc("POST /v1/findings", s.handleImport)
	mux.HandleFunc("GET /v1/findings/pending", s.handlePending)
	mux.HandleFunc("GET /v1/findings/confirmed", s.handleConfirmed)
	mux.HandleFunc("GET /v1/findings/{id}", s.handleGet)
	mux.HandleFunc("POST /v1/findings/enqueue", s.handleEnqueue)
	mux.HandleFunc("POST /v1/findings/dequeue", s.handleDequeue)
	mux.HandleFunc("POST /v1/findings/execute", s.handleExecute)
	mux.HandleFunc("POST /v1/findings/undo", s.handleUndo)
	mux.HandleFunc("POST /v1/findings/{id}/undo", s.handleUndoOne)
	mux.HandleFunc("POST /v1/autopilot/run", s.handleRun)
	mux.HandleFunc("GET /v1/autopilot/log/{key}", s.handleLog)
	mux.HandleFunc("GET /v1/autopilot/templates", s.handleTemplates)

	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type leverRequest struct {
	Limit    int    `json:"limit"`
	Strategy string `json:"strategy"`
}

type leverResponse struct {
	Lever *recovery.Lever `json:"lever"`
}

type importRequest struct {
	Findings []*domain.Finding `json:"findings"`
}

type runRequest struct {
	FindingID string                   `json:"finding_id"`
	Contact   domain.Contact           `json:"contact"`
	Extras    recovery.Extras          `json:"extras"`
	Context   *domain.AutoPilotContext `json:"context,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := map[string]string{"status": "healthy"}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			report["status"] = "critical"
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	writeJSON(w, status, report)
}

func (s *Server) handleLever(w http.ResponseWriter, r *http.Request) {
	var req leverRequest
	if !decode(w, r, &req) {
		return
	}
	strategy, err := recovery.ParseStrategy(req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_strategy", err.Error())
		return
	}
	lever, err := s.svc.SelectLever(r.Context(), req.Limit, strategy)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leverResponse{Lever: lever})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decode(w, r, &req) {
		return
	}
	saved, err := s.svc.Import(r.Context(), req.Findings)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, importRequest{Findings: saved})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	f, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.Enqueue(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.Dequeue(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.Execute(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.Undo(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUndoOne(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.UndoOne(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recovery.UndoResult{RestoredCount: 1, IDs: []string{id}})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.ListPending(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": items})
}

func (s *Server) handleConfirmed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	items, err := s.svc.ListConfirmed(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": items})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Context != nil {
		if req.Context.Key() == "" {
			writeError(w, http.StatusBadRequest, "missing_key", "context needs finding_id or opportunity_id")
			return
		}
		writeJSON(w, http.StatusOK, s.svc.RunOrchestrator(r.Context(), req.Context))
		return
	}

	if req.FindingID == "" {
		writeError(w, http.StatusBadRequest, "missing_finding_id", "finding_id or context is required")
		return
	}
	res, err := s.svc.RunForFinding(r.Context(), req.FindingID, req.Contact, req.Extras)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ActionLog(r.Context(), r.PathValue("key"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": template.Keys()})
}

// fail maps service errors to HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrFindingNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, storage.ErrNotHandled):
		writeError(w, http.StatusConflict, "not_handled", err.Error())
	case errors.Is(err, storage.ErrAlreadyHandled):
		writeError(w, http.StatusConflict, "already_handled", err.Error())
	case errors.Is(err, storage.ErrUndoExpired):
		writeError(w, http.StatusGone, "undo_expired", err.Error())
	case errors.Is(err, domain.ErrInvalidFinding):
		writeError(w, http.StatusBadRequest, "invalid_finding", err.Error())
	default:
		s.log.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
