package server

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

const defaultPageSize = 50

// handleSearchTraces serves trace search with time range, span-count
// filters and cursor pagination. Sort keys are start_time or end_time,
// direction asc or desc.
func (s *Server) handleSearchTraces(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	query := r.URL.Query()
	service := query.Get("service")
	if service == "" {
		s.writeError(w, inputErrorf("service query parameter is required"))
		return
	}

	from, to, err := parseTimeRange(query.Get("from"), query.Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	minSpans, maxSpans, err := parseSpanRange(query.Get("min_spans"), query.Get("max_spans"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	cursor, err := decodeCursor(query.Get("cursor"))
	if err != nil {
		s.writeError(w, inputErrorf("%v", err))
		return
	}
	if cursor.SortField == "" {
		cursor.SortField = query.Get("sort")
		if cursor.SortField == "" {
			cursor.SortField = "start_time"
		}
		cursor.Direction = domain.SortDirection(query.Get("direction"))
		if cursor.Direction == "" {
			cursor.Direction = domain.SortDesc
		}
	}
	if cursor.SortField != "start_time" && cursor.SortField != "end_time" {
		s.writeError(w, inputErrorf("unsupported sort key %q", cursor.SortField))
		return
	}

	limit := defaultPageSize
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, inputErrorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	traces, err := components.DataManager.GetTraces(r.Context(), service, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}

	filtered := traces[:0]
	for _, trace := range traces {
		if minSpans > 0 && trace.NumOfSpans < minSpans {
			continue
		}
		if maxSpans > 0 && trace.NumOfSpans > maxSpans {
			continue
		}
		filtered = append(filtered, trace)
	}

	sortTraces(filtered, cursor.SortField, cursor.Direction)

	start := cursor.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	var nextCursor string
	if end < len(filtered) {
		nextCursor = encodeCursor(pageCursor{
			Offset:    end,
			SortField: cursor.SortField,
			Direction: cursor.Direction,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"traces":      filtered[start:end],
		"next_cursor": nextCursor,
		"total":       len(filtered),
	})
}

func (s *Server) handleGetSpans(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	traceID := r.PathValue("id")
	spans, err := components.DataManager.GetSpans(r.Context(), traceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trace_id": traceID, "spans": spans})
}

func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	traceID := r.PathValue("id")
	tasks, err := components.DataManager.GetTasksForTrace(r.Context(), traceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trace_id": traceID, "tasks": tasks})
}

// handleImportTraceLog ingests a raw trace log dump (concatenated JSON
// span objects) for the tenant.
func (s *Server) handleImportTraceLog(w http.ResponseWriter, r *http.Request) {
	components, err := s.components(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	traces, err := components.DataManager.StoreTraceLogs(r.Context(), r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.SpansIngested.Add(float64(countSpans(traces)))

	traceIDs := make([]string, len(traces))
	for i, trace := range traces {
		traceIDs[i] = trace.ElementID
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported_traces": traceIDs})
}

func countSpans(traces []*domain.Trace) int {
	total := 0
	for _, trace := range traces {
		total += trace.NumOfSpans
	}
	return total
}

func sortTraces(traces []*domain.Trace, field string, direction domain.SortDirection) {
	key := func(t *domain.Trace) time.Time {
		if field == "end_time" {
			return t.EndTime
		}
		return t.StartTime
	}
	sort.SliceStable(traces, func(i, j int) bool {
		if direction == domain.SortDesc {
			return key(traces[i]).After(key(traces[j]))
		}
		return key(traces[i]).Before(key(traces[j]))
	})
}

// parseTimeRange validates the from/to query pair; an inverted range is
// an input error.
func parseTimeRange(fromRaw, toRaw string) (time.Time, *time.Time, error) {
	from := time.Time{}
	if fromRaw != "" {
		parsed, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, nil, inputErrorf("invalid from time %q", fromRaw)
		}
		from = parsed
	}
	if toRaw == "" {
		return from, nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		return time.Time{}, nil, inputErrorf("invalid to time %q", toRaw)
	}
	if !from.IsZero() && parsed.Before(from) {
		return time.Time{}, nil, inputErrorf("time range is inverted: to precedes from")
	}
	return from, &parsed, nil
}

// parseSpanRange validates the span-count filter pair; an inverted range
// is an input error.
func parseSpanRange(minRaw, maxRaw string) (int, int, error) {
	minSpans, maxSpans := 0, 0
	if minRaw != "" {
		parsed, err := strconv.Atoi(minRaw)
		if err != nil || parsed < 0 {
			return 0, 0, inputErrorf("invalid min_spans %q", minRaw)
		}
		minSpans = parsed
	}
	if maxRaw != "" {
		parsed, err := strconv.Atoi(maxRaw)
		if err != nil || parsed < 0 {
			return 0, 0, inputErrorf("invalid max_spans %q", maxRaw)
		}
		maxSpans = parsed
	}
	if minSpans > 0 && maxSpans > 0 && maxSpans < minSpans {
		return 0, 0, inputErrorf("span count range is inverted")
	}
	return minSpans, maxSpans, nil
}
