package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

func TestParseTraceLog_ConcatenatedJSON(t *testing.T) {
	log := `
{"context":{"trace_id":"t1","span_id":"s1"},"name":"agent.task","start_time":"2025-06-01T10:00:00Z","end_time":"2025-06-01T10:00:01Z"}
   {"context":{"trace_id":"t1","span_id":"s2"},"parent_id":"s1","name":"tool.search.tool","start_time":"2025-06-01T10:00:00.2Z","end_time":"2025-06-01T10:00:00.5Z"}
garbage that is not json
{"context":{"trace_id":"t2","span_id":"s3"},"name":"openai.chat","start_time":"2025-06-01T11:00:00Z","end_time":"2025-06-01T11:00:02Z","resource":{"service_name":"my svc/β"}}
`
	spans, err := ParseTraceLog(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, spans, 3)

	assert.Equal(t, "s1", spans[0].ElementID)
	assert.Equal(t, "t1", spans[0].RootID)
	assert.Equal(t, "s1", spans[1].ParentID)

	// Service names are sanitized to [A-Za-z0-9-].
	assert.Equal(t, "my_svc___", spans[2].Resource.ServiceName)
}

func TestParseTraceLog_SkipsSpansWithoutIdentity(t *testing.T) {
	log := `{"name":"orphan"}{"context":{"trace_id":"t1","span_id":"s1"},"name":"kept"}`
	spans, err := ParseTraceLog(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "kept", spans[0].Name)
}

func TestSanitizeServiceName(t *testing.T) {
	assert.Equal(t, "checkout-v2", SanitizeServiceName("checkout-v2"))
	assert.Equal(t, "my_service_1", SanitizeServiceName("my service.1"))
	assert.Equal(t, "", SanitizeServiceName(""))
}

func TestTracesFromSpans(t *testing.T) {
	log := `
{"context":{"trace_id":"t1","span_id":"s1"},"name":"root","start_time":"2025-06-01T10:00:00Z","end_time":"2025-06-01T10:00:05Z","raw_attributes":{"agent.id":"agent-7"}}
{"context":{"trace_id":"t1","span_id":"s2"},"parent_id":"s1","name":"child","start_time":"2025-06-01T10:00:01Z","end_time":"2025-06-01T10:00:02Z","events":[{"name":"problem","timestamp":"2025-06-01T10:00:01.5Z","attributes":{"issue_type":"Issue","level":"ERROR"}}]}
`
	spans, err := ParseTraceLog(strings.NewReader(log))
	require.NoError(t, err)
	traces := TracesFromSpans(spans)
	require.Len(t, traces, 1)

	trace := traces[0]
	assert.Equal(t, "t1", trace.ElementID)
	assert.Equal(t, 2, trace.NumOfSpans)
	assert.Equal(t, []string{"agent-7"}, trace.AgentIDs)
	assert.Equal(t, map[string]int{string(domain.IssueLevelError): 1}, trace.Failures)
	assert.Equal(t, "2025-06-01T10:00:00Z", trace.StartTime.Format("2006-01-02T15:04:05Z"))
	assert.Equal(t, "2025-06-01T10:00:05Z", trace.EndTime.Format("2006-01-02T15:04:05Z"))
}
