package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/extensions/plugins"
)

// createTraceGroupRequest is the body of POST /api/v1/trace-groups.
type createTraceGroupRequest struct {
	Name        string   `json:"name"`
	ServiceName string   `json:"service_name"`
	TraceIDs    []string `json:"trace_ids"`
}

// handleCreateTraceGroup creates a trace group and stamps its aggregate
// stats from the member traces.
func (s *Server) handleCreateTraceGroup(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req createTraceGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, inputErrorf("invalid trace group payload: %v", err))
		return
	}
	if req.Name == "" || len(req.TraceIDs) == 0 {
		s.writeError(w, inputErrorf("name and trace_ids are required"))
		return
	}

	group := domain.NewTraceGroup(req.Name, req.ServiceName, req.TraceIDs)
	s.computeGroupStats(r, group)

	if _, err := components.DataManager.Store(r.Context(), group); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// computeGroupStats recomputes the on-demand aggregates: average
// duration, success rate and failure count over member traces. Missing
// members are skipped.
func (s *Server) computeGroupStats(r *http.Request, group *domain.TraceGroup) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		return
	}

	var totalDuration float64
	resolved, failures := 0, 0
	for _, traceID := range group.TracesIDs {
		trace, err := components.DataManager.GetTrace(r.Context(), traceID)
		if err != nil || trace == nil {
			continue
		}
		resolved++
		totalDuration += float64(trace.Duration().Milliseconds())
		if len(trace.Failures) > 0 {
			failures++
		}
	}
	if resolved == 0 {
		return
	}
	group.AvgDurationMillis = totalDuration / float64(resolved)
	group.SuccessRate = float64(resolved-failures) / float64(resolved)
	group.FailureCount = failures
}

func (s *Server) handleListTraceGroups(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	service := r.URL.Query().Get("service")
	if service == "" {
		s.writeError(w, inputErrorf("service query parameter is required"))
		return
	}
	groups, err := components.DataManager.GetTraceGroups(r.Context(), service)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trace_groups": groups})
}

func (s *Server) handleTraceGroupTraces(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	groupID := r.PathValue("id")
	traces, err := components.DataManager.GetTracesForTraceGroup(r.Context(), groupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trace_group_id": groupID, "traces": traces})
}

// handleTraceGroupWorkflow materializes the discovered process model for
// a trace group by running the causal discovery pipeline synchronously.
func (s *Server) handleTraceGroupWorkflow(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	groupID := r.PathValue("id")

	result, err := components.Engine.Execute(r.Context(), plugins.IDCausalDiscovery,
		map[string]any{"trace_group_id": groupID})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if result.Error != nil {
		s.writeError(w, fmt.Errorf("%s: %s", result.Error.ErrorType, result.Error.Message))
		return
	}
	writeJSON(w, http.StatusOK, result.OutputResult)
}
