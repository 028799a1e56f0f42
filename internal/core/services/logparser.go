package services

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

// ParseTraceLog extracts a sequence of span JSON objects from a text
// stream, tolerating concatenated JSON with arbitrary whitespace between
// objects. Objects that fail to decode, and spans without span and trace
// ids, are skipped; a stream with nothing decodable yields no spans and no
// error. Only a failure to read the stream is returned as an error.
func ParseTraceLog(source io.Reader) ([]*domain.Span, error) {
	raw, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("read trace log: %w", err)
	}
	content := string(raw)

	var spans []*domain.Span
	for len(content) > 0 {
		content = strings.TrimLeft(content, " \t\r\n")
		if content == "" {
			break
		}
		dec := json.NewDecoder(strings.NewReader(content))
		var span domain.Span
		if err := dec.Decode(&span); err != nil {
			// Skip to the next opening brace and try again.
			next := strings.IndexByte(content[1:], '{')
			if next < 0 {
				break
			}
			content = content[next+1:]
			continue
		}
		content = content[dec.InputOffset():]
		if span.Context.SpanID == "" || span.Context.TraceID == "" {
			continue
		}
		normalizeSpan(&span)
		spans = append(spans, &span)
	}
	return spans, nil
}

func normalizeSpan(span *domain.Span) {
	span.Type = domain.KindSpan
	if span.ElementID == "" {
		span.ElementID = span.Context.SpanID
	}
	if span.RootID == "" {
		span.RootID = span.Context.TraceID
	}
	span.Resource.ServiceName = SanitizeServiceName(span.Resource.ServiceName)
}

// SanitizeServiceName restricts service names to [A-Za-z0-9-], replacing
// every other character with an underscore.
func SanitizeServiceName(name string) string {
	if name == "" {
		return name
	}
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

// TracesFromSpans synthesizes one Trace element per distinct trace id:
// time bounds, span count, collected agent ids, and the per-severity
// failure histogram derived from issue events.
func TracesFromSpans(spans []*domain.Span) []*domain.Trace {
	grouped := make(map[string][]*domain.Span)
	var order []string
	for _, span := range spans {
		id := span.Context.TraceID
		if _, seen := grouped[id]; !seen {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], span)
	}

	traces := make([]*domain.Trace, 0, len(order))
	for _, traceID := range order {
		members := grouped[traceID]
		trace := domain.NewTrace(traceID)
		trace.NumOfSpans = len(members)

		agentIDs := make(map[string]bool)
		failures := make(map[string]int)
		for _, span := range members {
			if trace.StartTime.IsZero() || span.StartTime.Before(trace.StartTime) {
				trace.StartTime = span.StartTime
			}
			if span.EndTime.After(trace.EndTime) {
				trace.EndTime = span.EndTime
			}
			if trace.ServiceName == "" && span.ServiceName() != "" {
				trace.ServiceName = span.ServiceName()
			}
			if agent, ok := span.StringAttribute("agent.id"); ok {
				agentIDs[agent] = true
			}
			if level, ok := detectIssueLevel(span); ok {
				failures[string(level)]++
			}
		}
		for agent := range agentIDs {
			trace.AgentIDs = append(trace.AgentIDs, agent)
		}
		sort.Strings(trace.AgentIDs)
		if len(failures) > 0 {
			trace.Failures = failures
		}
		traces = append(traces, trace)
	}
	return traces
}

// detectIssueLevel reports the severity of the first issue event carried
// by the span, if any.
func detectIssueLevel(span *domain.Span) (domain.IssueLevel, bool) {
	for _, event := range span.Events {
		if event.Attributes == nil {
			continue
		}
		if event.Attributes["issue_type"] != "Issue" {
			continue
		}
		level, _ := event.Attributes["level"].(string)
		return domain.ParseIssueLevel(level), true
	}
	return "", false
}
