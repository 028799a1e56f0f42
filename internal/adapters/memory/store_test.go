package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

func TestStore_StoreRetrieveRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	info := ports.TypeInfo{Kind: domain.KindIssue}

	issue := domain.NewIssue("trace-1", "loop detected", domain.IssueLevelWarning)
	issue.Description = "tasks repeat"
	issue.Effect = []string{"validate", "retry"}
	issue.Timestamp = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issue.AddRelatedTo("Task-1", domain.KindTask)

	id, err := store.Store(ctx, issue, info)
	require.NoError(t, err)

	fetched := &domain.Issue{}
	found, err := store.Retrieve(ctx, "element_id", id, info, fetched)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, issue.Name, fetched.Name)
	assert.Equal(t, issue.Level, fetched.Level)
	assert.Equal(t, issue.Effect, fetched.Effect)
	assert.True(t, issue.Timestamp.Equal(fetched.Timestamp))
	assert.Equal(t, issue.RelatedToIDs, fetched.RelatedToIDs)
	assert.Equal(t, issue.RelatedToTypes, fetched.RelatedToTypes)
}

func TestStore_QueryOperators(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	info := ports.TypeInfo{Kind: domain.KindTrace}

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, service := range []string{"checkout", "checkout", "search"} {
		trace := domain.NewTrace("trace-" + string(rune('a'+i)))
		trace.ServiceName = service
		trace.StartTime = base.Add(time.Duration(i) * time.Hour)
		trace.EndTime = trace.StartTime.Add(time.Minute)
		trace.NumOfSpans = (i + 1) * 10
		trace.AgentIDs = []string{"agent-" + service}
		_, err := store.Store(ctx, trace, info)
		require.NoError(t, err)
	}

	cases := []struct {
		name  string
		query domain.Query
		want  int
	}{
		{"equal", domain.Query{"service_name": domain.Eq("checkout")}, 2},
		{"not_equal", domain.Query{"service_name": {Operator: domain.OpNotEqual, Value: "checkout"}}, 1},
		{"gte_time", domain.Query{"start_time": domain.Gte(base.Add(time.Hour))}, 2},
		{"lte_time", domain.Query{"start_time": domain.Lte(base)}, 1},
		{"gte_number", domain.Query{"num_of_spans": domain.Gte(20)}, 2},
		{"equals_many", domain.Query{"element_id": domain.In([]string{"trace-a", "trace-c"})}, 2},
		{"array_contains", domain.Query{"agent_ids": domain.Contains("agent-search")}, 1},
		{"and_semantics", domain.Query{
			"service_name": domain.Eq("checkout"),
			"num_of_spans": domain.Gte(20),
		}, 1},
		{"no_match", domain.Query{"service_name": domain.Eq("billing")}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out []domain.Trace
			require.NoError(t, store.Search(ctx, tc.query, info, &out))
			assert.Len(t, out, tc.want)
		})
	}
}

func TestStore_BulkStore(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	info := ports.TypeInfo{Kind: domain.KindMetric}

	values := []domain.Element{
		domain.NewNumericMetric("trace-1", "latency", 1),
		domain.NewNumericMetric("trace-1", "latency", 2),
		domain.NewNumericMetric("trace-2", "latency", 3),
	}
	ids, err := store.BulkStore(ctx, values, info, false)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	// Re-storing the same ids with ignoreDuplicates reports none stored.
	ids, err = store.BulkStore(ctx, values, info, true)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Without the flag a duplicate is an error.
	_, err = store.BulkStore(ctx, values[:1], info, false)
	assert.Error(t, err)
}

func TestStore_DeleteAndUpdate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	info := ports.TypeInfo{Kind: domain.KindAction}

	action := domain.NewAction("Action-1", "tool.search", "search")
	_, err := store.Store(ctx, action, info)
	require.NoError(t, err)

	action.Description = "updated"
	replaced, err := store.Update(ctx, "element_id", "Action-1", action, info)
	require.NoError(t, err)
	assert.True(t, replaced)

	removed, err := store.Delete(ctx, "element_id", "Action-1", info)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, "element_id", "Action-1", info)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_NestedFieldQuery(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	info := ports.TypeInfo{Kind: domain.KindSpan}

	span := domain.NewSpan("trace-9", "span-9")
	span.Name = "openai.chat"
	_, err := store.Store(ctx, span, info)
	require.NoError(t, err)

	var spans []domain.Span
	require.NoError(t, store.Search(ctx, domain.Query{
		"context.trace_id": domain.Eq("trace-9"),
	}, info, &spans))
	require.Len(t, spans, 1)
	assert.Equal(t, "span-9", spans[0].Context.SpanID)
}
