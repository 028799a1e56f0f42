package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
	"github.com/AgentToolkit/agent-mentor/internal/extensions/plugins"
)

// eventResponse is the immediate acknowledgment of an event notification.
type eventResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id"`
	Message string `json:"message"`
}

// handleEvent accepts a data-availability notification, schedules the
// matching analytics as a background job, and returns immediately.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.EventNotification
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeError(w, inputErrorf("invalid event payload: %v", err))
		return
	}

	if event.EventType != string(services.EventTypeDataAvailable) || event.DataItemType != "span" {
		s.writeError(w, inputErrorf("unsupported event type: %s/%s", event.EventType, event.DataItemType))
		return
	}

	analyticsID := plugins.IDTaskAnalytics
	eventID, err := domain.EncodeEventID(analyticsID, event.Content.TraceID, event.Content.TraceGroupID)
	if err != nil {
		s.writeError(w, inputErrorf("%v", err))
		return
	}

	job := domain.Job{
		ID:           domain.JobID(eventID),
		TenantID:     tenantID(r),
		AnalyticsID:  analyticsID,
		TraceID:      event.Content.TraceID,
		TraceGroupID: event.Content.TraceGroupID,
		Metadata:     map[string]string{"creating_plugin_id": event.Content.CreatingPluginID},
	}
	if err := s.scheduler.Submit(r.Context(), job); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.EventsAccepted.Inc()

	writeJSON(w, http.StatusOK, eventResponse{
		Success: true,
		EventID: eventID,
		Message: "Event accepted for processing",
	})
}

// handleEventStatus reports the processing state of a scheduled event by
// looking up the most recent execution result for its trace or group.
func (s *Server) handleEventStatus(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	analyticsID, traceOrGroupID, err := domain.DecodeEventID(eventID)
	if err != nil {
		s.writeError(w, inputErrorf("%v", err))
		return
	}

	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	grouped, err := components.Results.GetResultsByTraceOrGroupID(r.Context(), analyticsID, []string{traceOrGroupID})
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := string(domain.JobStatusPending)
	var executionResult map[string]any
	if results := grouped[traceOrGroupID]; len(results) > 0 {
		latest := results[0]
		for _, result := range results[1:] {
			if result.StartTime.After(latest.StartTime) {
				latest = result
			}
		}

		switch latest.Status {
		case analytics.StatusSuccess:
			status = string(domain.JobStatusCompleted)
		case analytics.StatusFailure:
			status = string(domain.JobStatusFailed)
		case analytics.StatusInProgress:
			status = string(domain.JobStatusProcessing)
		default:
			status = string(latest.Status)
		}

		executionResult = map[string]any{
			"status":         string(latest.Status),
			"start_time":     latest.StartTime.Format(time.RFC3339Nano),
			"execution_time": latest.ExecutionTime,
		}
		if latest.EndTime != nil {
			executionResult["end_time"] = latest.EndTime.Format(time.RFC3339Nano)
		}
		if latest.Error != nil {
			executionResult["error"] = latest.Error
		}
	} else if job, err := s.scheduler.Get(domain.JobID(eventID)); err == nil {
		status = string(job.Status)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":         eventID,
		"status":           status,
		"execution_result": executionResult,
	})
}
