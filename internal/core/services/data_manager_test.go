package services

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/adapters/memory"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

func newTestManager(t *testing.T) *DataManager {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return NewDataManager(memory.NewStore(), logger)
}

func TestDataManager_GetByIDMissingIsNil(t *testing.T) {
	dm := newTestManager(t)
	elem, err := dm.GetByID(context.Background(), "nope", domain.KindTask, "")
	require.NoError(t, err)
	assert.Nil(t, elem)
}

func TestDataManager_ChildrenByRoot(t *testing.T) {
	dm := newTestManager(t)
	ctx := context.Background()

	var elems []domain.Element
	for _, spec := range []struct{ id, root string }{
		{"Task-1", "trace-1"},
		{"Task-2", "trace-1"},
		{"Task-3", "trace-2"},
	} {
		elems = append(elems, domain.NewTask(spec.id, spec.root))
	}
	ids, err := dm.BulkStore(ctx, elems, false)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	// Bulk store of N elements followed by GetChildren returns exactly
	// those owned by the root.
	children, err := dm.GetChildren(ctx, "trace-1", domain.KindTask, "")
	require.NoError(t, err)
	assert.Len(t, children, 2)
	for _, child := range children {
		assert.Equal(t, "trace-1", child.Header().RootID)
	}

	batch, err := dm.GetChildrenForList(ctx, []string{"trace-1", "trace-2"}, domain.KindTask)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
}

func TestDataManager_RelationTraversal(t *testing.T) {
	dm := newTestManager(t)
	ctx := context.Background()

	span := domain.NewSpan("trace-1", "span-1")
	span.Name = "openai.chat"
	task := domain.NewTask("Task-1", "trace-1")

	issue := domain.NewIssue("trace-1", "timeout", domain.IssueLevelError)
	issue.AddRelatedTo(span.Context.SpanID, domain.KindSpan)
	issue.AddRelatedTo(task.ElementID, domain.KindTask)

	for _, e := range []domain.Element{span, task, issue} {
		_, err := dm.Store(ctx, e)
		require.NoError(t, err)
	}

	// Forward: the issue's related elements are resolvable by type.
	related, err := dm.GetRelatedElements(ctx, issue.ElementID, domain.KindIssue)
	require.NoError(t, err)
	assert.Len(t, related, 2)

	// Backward: the span finds the issue listing it as related.
	backward, err := dm.GetElementsRelatedToArtifactAndType(ctx, span, domain.KindIssue)
	require.NoError(t, err)
	require.Len(t, backward, 1)
	assert.Equal(t, issue.ElementID, backward[0].Header().ElementID)

	// Untyped backward query spans every relation-carrying kind.
	all, err := dm.GetElementsRelatedToArtifact(ctx, task)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, issue.ElementID, all[0].Header().ElementID)
}

func TestDataManager_TraceLookups(t *testing.T) {
	dm := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	trace := domain.NewTrace("trace-1")
	trace.ServiceName = "checkout"
	trace.StartTime = base
	trace.EndTime = base.Add(time.Minute)
	_, err := dm.Store(ctx, trace)
	require.NoError(t, err)

	// Spans are returned in start-time order with span-id tiebreaks.
	for _, spec := range []struct {
		spanID string
		offset time.Duration
	}{
		{"span-b", 2 * time.Second},
		{"span-a", 2 * time.Second},
		{"span-c", time.Second},
	} {
		span := domain.NewSpan("trace-1", spec.spanID)
		span.StartTime = base.Add(spec.offset)
		span.EndTime = span.StartTime.Add(time.Second)
		_, err := dm.Store(ctx, span)
		require.NoError(t, err)
	}

	spans, err := dm.GetSpans(ctx, "trace-1")
	require.NoError(t, err)
	require.Len(t, spans, 3)
	assert.Equal(t, "span-c", spans[0].Context.SpanID)
	assert.Equal(t, "span-a", spans[1].Context.SpanID)
	assert.Equal(t, "span-b", spans[2].Context.SpanID)

	to := base.Add(time.Hour)
	traces, err := dm.GetTraces(ctx, "checkout", base.Add(-time.Hour), &to)
	require.NoError(t, err)
	assert.Len(t, traces, 1)

	group := domain.NewTraceGroup("group-1", "checkout", []string{"trace-1", "trace-missing"})
	_, err = dm.Store(ctx, group)
	require.NoError(t, err)

	groups, err := dm.GetTraceGroups(ctx, "checkout")
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	members, err := dm.GetTracesForTraceGroup(ctx, group.ElementID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	_, err = dm.GetTracesForTraceGroup(ctx, "no-such-group")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
