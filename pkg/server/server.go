// Package server exposes the HTTP facade: ingestion, event intake, the
// query API under /api/v1, and service metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AgentToolkit/agent-mentor/internal/adapters/otlp"
	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
	"github.com/AgentToolkit/agent-mentor/internal/runtime"
)

// Server routes the HTTP surface. It is a thin facade: request decoding,
// tenant resolution and error mapping; everything else lives in the core.
type Server struct {
	logger    *slog.Logger
	tenants   *runtime.TenantRegistry
	scheduler *services.JobScheduler
	receiver  *otlp.Receiver
	metrics   *Metrics
}

func NewServer(logger *slog.Logger, tenants *runtime.TenantRegistry, scheduler *services.JobScheduler, receiver *otlp.Receiver, metrics *Metrics) *Server {
	return &Server{
		logger:    logger,
		tenants:   tenants,
		scheduler: scheduler,
		receiver:  receiver,
		metrics:   metrics,
	}
}

// Handler mounts all routes on a shared mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// OTLP HTTP ingest.
	mux.Handle("/v1/traces", s.receiver.HTTPHandler())

	// Event intake.
	mux.HandleFunc("POST /api/events", s.handleEvent)
	mux.HandleFunc("GET /api/events/{id}/status", s.handleEventStatus)

	// Query API.
	mux.HandleFunc("GET /api/v1/traces", s.handleSearchTraces)
	mux.HandleFunc("GET /api/v1/traces/{id}/spans", s.handleGetSpans)
	mux.HandleFunc("GET /api/v1/traces/{id}/tasks", s.handleGetTasks)
	mux.HandleFunc("POST /api/v1/traces/import", s.handleImportTraceLog)
	mux.HandleFunc("POST /api/v1/trace-groups", s.handleCreateTraceGroup)
	mux.HandleFunc("GET /api/v1/trace-groups", s.handleListTraceGroups)
	mux.HandleFunc("GET /api/v1/trace-groups/{id}/traces", s.handleTraceGroupTraces)
	mux.HandleFunc("POST /api/v1/trace-groups/{id}/workflow", s.handleTraceGroupWorkflow)

	// Analytics management and direct execution.
	mux.HandleFunc("POST /api/v1/analytics", s.handleRegisterAnalytics)
	mux.HandleFunc("GET /api/v1/analytics", s.handleListAnalytics)
	mux.HandleFunc("DELETE /api/v1/analytics/{id}", s.handleDeleteAnalytics)
	mux.HandleFunc("POST /api/v1/analytics/{id}/execute", s.handleExecuteAnalytics)

	// Service health and metrics.
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

// tenantID extracts the tenant from the request header.
func tenantID(r *http.Request) string {
	return r.Header.Get(otlp.TenantHeader)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps core errors onto HTTP statuses: input, validation and
// tenant-config failures are client errors; everything else is a 5xx.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var validationErr *analytics.ValidationError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrTenantConfigNotFound):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrTenantUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case isInputError(err):
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// inputError marks request-shaped failures (malformed cursor, inverted
// ranges, bad payloads).
type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func inputErrorf(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

func isInputError(err error) bool {
	var ie *inputError
	return errors.As(err, &ie)
}

// components resolves the tenant component set for a request.
func (s *Server) components(ctx context.Context, r *http.Request) (*runtime.TenantComponents, error) {
	return s.tenants.Components(ctx, tenantID(r))
}
