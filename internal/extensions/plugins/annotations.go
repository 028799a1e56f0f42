package plugins

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// annotationSpanIDsAttr mirrors the task attribute recorded by the
// visitors for spans carrying annotation events.
const annotationSpanIDsAttr = "annotation_span_ids"

// annotationIDMarker identifies annotation events by their id prefix.
const annotationIDMarker = "DataAnnotation"

// AnnotationAnalytics extracts DataAnnotation events from span events and
// persists Annotation elements.
type AnnotationAnalytics struct{}

func NewAnnotationAnalytics() *AnnotationAnalytics { return &AnnotationAnalytics{} }

func (p *AnnotationAnalytics) InputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace to run this analytic on"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group to run this analytic on"},
	}}
}

func (p *AnnotationAnalytics) OutputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace this analytic was run on"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group this analytic was run on"},
		{Name: "annotations", Type: analytics.FieldArray, Required: true, Description: "List of extracted annotations", ArrayType: fieldTypePtr(analytics.FieldAny)},
	}}
}

func (p *AnnotationAnalytics) Execute(ctx context.Context, analyticsID string, dm ports.DataManager, input map[string]any, config map[string]any) (*analytics.ExecutionResult, error) {
	traceID, _ := input["trace_id"].(string)
	traceGroupID, _ := input["trace_group_id"].(string)

	if traceID == "" && traceGroupID == "" {
		return inputFailure(analyticsID, "No relevant input provided for the analytics (neither trace_id nor trace_group_id is given)"), nil
	}

	traceIDs := []string{traceID}
	if traceGroupID != "" {
		group, err := dm.GetByID(ctx, traceGroupID, domain.KindTraceGroup, "")
		if err != nil {
			return nil, err
		}
		if group == nil {
			return dataFailure(analyticsID, fmt.Sprintf("No trace group found with id %s", traceGroupID)), nil
		}
		traceIDs = group.(*domain.TraceGroup).TracesIDs
	}

	var allAnnotations []*domain.Annotation
	for _, id := range traceIDs {
		spans, err := dm.GetSpans(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(spans) == 0 {
			continue
		}
		tasks, err := dm.GetTasksForTrace(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, span := range spans {
			allAnnotations = append(allAnnotations, annotationsFromSpan(span, tasks, analyticsID)...)
		}
	}

	if len(allAnnotations) > 0 {
		elems := make([]domain.Element, len(allAnnotations))
		for i, a := range allAnnotations {
			elems[i] = a
		}
		if _, err := dm.BulkStore(ctx, elems, true); err != nil {
			return nil, fmt.Errorf("store annotations: %w", err)
		}
	}

	annotationMaps := make([]any, len(allAnnotations))
	for i, a := range allAnnotations {
		annotationMaps[i] = elementToMap(a)
	}
	output := map[string]any{"annotations": annotationMaps}
	if traceGroupID != "" {
		output["trace_group_id"] = traceGroupID
	} else {
		output["trace_id"] = traceID
	}
	return successResult(analyticsID, output), nil
}

// annotationsFromSpan builds Annotation elements from the span's
// DataAnnotation events. Segment-addressed and content-carrying formats
// are both recognized; events in neither format are skipped.
func annotationsFromSpan(span *domain.Span, tasks []*domain.Task, analyticsID string) []*domain.Annotation {
	var annotations []*domain.Annotation
	for _, event := range span.Events {
		attrs := event.Attributes
		if attrs == nil {
			continue
		}
		eventID, _ := attrs["id"].(string)
		if !strings.Contains(eventID, annotationIDMarker) {
			continue
		}

		timestamp := parseEventTime(attrs["timestamp"], event.Timestamp)

		annotationType := domain.AnnotationRawText
		if t, ok := attrs["annotation_type"].(string); ok {
			switch domain.AnnotationType(strings.ToUpper(t)) {
			case domain.AnnotationSegment:
				annotationType = domain.AnnotationSegment
			}
		}

		pathToString, _ := attrs["path_to_string"].(string)
		title, _ := attrs["annotation_title"].(string)
		content, _ := attrs["annotation_content"].(string)
		hasSegment := pathToString != "" || attrs["segment_start"] != nil || attrs["segment_end"] != nil
		hasContent := title != "" || content != ""
		if !hasSegment && !hasContent {
			continue
		}

		annotation := &domain.Annotation{
			ElementHeader: domain.ElementHeader{
				ElementID:        eventID,
				Type:             domain.KindAnnotation,
				RootID:           span.Context.TraceID,
				Name:             title,
				PluginMetadataID: analyticsID,
			},
			AnnotationType: annotationType,
			Timestamp:      timestamp,
		}
		annotation.EnsureID()

		if hasSegment {
			annotation.PathToString = pathToString
			annotation.SegmentStart = parseSegment(attrs["segment_start"], timestamp.Unix())
			annotation.SegmentEnd = parseSegment(attrs["segment_end"], 0)
		} else {
			annotation.SegmentStart = timestamp.Unix()
			annotation.AnnotationTitle = title
			annotation.AnnotationContent = content
		}

		annotation.AddRelatedTo(span.Context.SpanID, domain.KindSpan)
		for _, task := range tasks {
			if taskRecordsSpan(task, annotationSpanIDsAttr, span.Context.SpanID) {
				annotation.AddRelatedTo(task.ElementID, domain.KindTask)
			}
		}
		annotations = append(annotations, annotation)
	}
	return annotations
}

func parseEventTime(v any, fallback time.Time) time.Time {
	if s, ok := v.(string); ok && s != "" {
		if strings.Contains(s, "T") {
			if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return parsed
			}
		}
		if epoch, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Unix(int64(epoch), 0).UTC()
		}
	}
	if !fallback.IsZero() {
		return fallback
	}
	return time.Now().UTC()
}

func parseSegment(v any, fallback int64) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
