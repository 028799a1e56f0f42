package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
)

// handleRegisterAnalytics registers new plugin metadata after full
// validation.
func (s *Server) handleRegisterAnalytics(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var metadata analytics.Metadata
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		s.writeError(w, inputErrorf("invalid analytics metadata: %v", err))
		return
	}

	id, err := components.Registry.Register(r.Context(), &metadata)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListAnalytics(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	all, err := components.Registry.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analytics": all})
}

func (s *Server) handleDeleteAnalytics(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := components.Registry.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleExecuteAnalytics runs a plugin pipeline synchronously and returns
// the final execution result of the requested plugin.
func (s *Server) handleExecuteAnalytics(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var input map[string]any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, inputErrorf("invalid input payload: %v", err))
		return
	}

	analyticsID := r.PathValue("id")
	start := time.Now()
	result, err := components.Engine.Execute(r.Context(), analyticsID, input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.PluginDuration.WithLabelValues(analyticsID, string(result.Status)).
		Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, result)
}
