package plugins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// issueSpanIDsAttr mirrors the task attribute recorded by the visitors
// for spans carrying issue events.
const issueSpanIDsAttr = "issue_span_ids"

// IssueAnalytics scans span events for issue markers and persists one
// Issue element per marker, related to the span and to the tasks whose
// extraction recorded the span.
type IssueAnalytics struct{}

func NewIssueAnalytics() *IssueAnalytics { return &IssueAnalytics{} }

func (p *IssueAnalytics) InputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace to run this analytic on"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group to run this analytic on"},
		{Name: "spans", Type: analytics.FieldArray, Required: false, Description: "Raw spans to run this analytic on", ArrayType: fieldTypePtr(analytics.FieldAny)},
	}}
}

func (p *IssueAnalytics) OutputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace this analytic was run on"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group this analytic was run on"},
		{Name: "issues", Type: analytics.FieldArray, Required: true, Description: "List of extracted issues", ArrayType: fieldTypePtr(analytics.FieldAny)},
	}}
}

func (p *IssueAnalytics) Execute(ctx context.Context, analyticsID string, dm ports.DataManager, input map[string]any, config map[string]any) (*analytics.ExecutionResult, error) {
	traceID, _ := input["trace_id"].(string)
	traceGroupID, _ := input["trace_group_id"].(string)
	rawSpans, _ := input["spans"].([]any)

	if traceID == "" && traceGroupID == "" && len(rawSpans) == 0 {
		return inputFailure(analyticsID,
			"No relevant input provided for the analytics (neither trace_id, trace_group_id nor span list is given)"), nil
	}

	var allIssues []*domain.Issue

	if traceGroupID != "" {
		group, err := dm.GetByID(ctx, traceGroupID, domain.KindTraceGroup, "")
		if err != nil {
			return nil, err
		}
		if group == nil {
			return dataFailure(analyticsID, fmt.Sprintf("No trace group found with id %s", traceGroupID)), nil
		}
		for _, id := range group.(*domain.TraceGroup).TracesIDs {
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
			allIssues = append(allIssues, issuesFromSpans(spans, tasks, analyticsID)...)
		}
	} else {
		var spans []*domain.Span
		if len(rawSpans) > 0 {
			decoded, err := decodeSpans(rawSpans)
			if err != nil {
				return inputFailure(analyticsID, err.Error()), nil
			}
			spans = decoded
			if len(spans) > 0 {
				traceID = spans[0].Context.TraceID
			}
		} else {
			loaded, err := dm.GetSpans(ctx, traceID)
			if err != nil {
				return nil, err
			}
			spans = loaded
		}
		if len(spans) == 0 {
			return dataFailure(analyticsID, fmt.Sprintf("No spans found for trace %s", traceID)), nil
		}
		tasks, err := dm.GetTasksForTrace(ctx, traceID)
		if err != nil {
			return nil, err
		}
		allIssues = issuesFromSpans(spans, tasks, analyticsID)
	}

	if len(allIssues) > 0 {
		elems := make([]domain.Element, len(allIssues))
		for i, issue := range allIssues {
			elems[i] = issue
		}
		if _, err := dm.BulkStore(ctx, elems, true); err != nil {
			return nil, fmt.Errorf("store issues: %w", err)
		}
	}

	output := map[string]any{"issues": issuesToMaps(allIssues)}
	if traceGroupID != "" {
		output["trace_group_id"] = traceGroupID
	} else {
		output["trace_id"] = traceID
	}
	return successResult(analyticsID, output), nil
}

// issuesFromSpans builds Issue elements from the issue events of every
// span in the trace.
func issuesFromSpans(spans []*domain.Span, tasks []*domain.Task, analyticsID string) []*domain.Issue {
	var issues []*domain.Issue
	for _, span := range spans {
		for _, event := range span.Events {
			issue := issueFromEvent(span, event, analyticsID)
			if issue == nil {
				continue
			}
			issue.AddRelatedTo(span.Context.SpanID, domain.KindSpan)
			for _, task := range tasks {
				if taskRecordsSpan(task, issueSpanIDsAttr, span.Context.SpanID) {
					issue.AddRelatedTo(task.ElementID, domain.KindTask)
				}
			}
			issues = append(issues, issue)
		}
	}
	return issues
}

// issueFromEvent extracts an Issue from one span event, or nil when the
// event carries no issue marker.
func issueFromEvent(span *domain.Span, event domain.SpanEvent, analyticsID string) *domain.Issue {
	attrs := event.Attributes
	if attrs == nil || attrs["issue_type"] != "Issue" {
		return nil
	}

	timestamp := event.Timestamp
	if ts, ok := attrs["timestamp"].(string); ok && ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			timestamp = parsed
		}
	}
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	levelStr, _ := attrs["level"].(string)
	level := domain.ParseIssueLevel(levelStr)

	title, _ := attrs["name"].(string)
	if title == "" {
		title, _ = attrs["title"].(string)
	}
	if title == "" {
		title = event.Name
	}
	if title == "" {
		title = fmt.Sprintf("%s issue at %s", level, timestamp.Format(time.RFC3339))
	}

	description, _ := attrs["description"].(string)
	if description == "" {
		description = "No description available"
	}

	elementID, _ := attrs["id"].(string)
	if elementID == "" {
		elementID = fmt.Sprintf("issue_%s_%s_%s", span.ElementID, timestamp.Format(time.RFC3339Nano), title)
	}

	issue := domain.NewIssue(span.Context.TraceID, title, level)
	issue.ElementID = elementID
	issue.Description = description
	issue.Timestamp = timestamp
	issue.PluginMetadataID = analyticsID
	issue.Effect = effectList(attrs["effect"])
	return issue
}

// effectList tolerates both list and comma-separated string encodings.
func effectList(v any) []string {
	switch e := v.(type) {
	case []string:
		return e
	case []any:
		out := make([]string, 0, len(e))
		for _, item := range e {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if e == "" {
			return nil
		}
		parts := strings.Split(e, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			out = append(out, strings.TrimSpace(part))
		}
		return out
	}
	return nil
}

// taskRecordsSpan reports whether the task's attributes record the span id
// under the given key.
func taskRecordsSpan(task *domain.Task, key, spanID string) bool {
	v, ok := task.Attributes[key]
	if !ok {
		return false
	}
	switch ids := v.(type) {
	case []string:
		for _, id := range ids {
			if id == spanID {
				return true
			}
		}
	case []any:
		for _, id := range ids {
			if s, ok := id.(string); ok && s == spanID {
				return true
			}
		}
	}
	return false
}
