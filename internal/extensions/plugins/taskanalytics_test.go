package plugins

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/adapters/memory"
	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newTestDataManager() *services.DataManager {
	return services.NewDataManager(memory.NewStore(), testLogger())
}

func storeSpan(t *testing.T, dm *services.DataManager, span *domain.Span) {
	t.Helper()
	_, err := dm.Store(context.Background(), span)
	require.NoError(t, err)
}

func makeSpan(traceID, spanID, parentID, name string, start time.Time, duration time.Duration, attrs map[string]any) *domain.Span {
	span := domain.NewSpan(traceID, spanID)
	span.Name = name
	span.ParentID = parentID
	span.SpanKind = domain.SpanKindInternal
	span.StartTime = start
	span.EndTime = start.Add(duration)
	span.RawAttributes = attrs
	return span
}

func TestTaskAnalytics_SpanIngestToTaskExtract(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	storeSpan(t, dm, makeSpan("T1", "S1", "", "agent.task", base, 100*time.Millisecond,
		map[string]any{"gen_ai.task.id": "Task-A"}))
	storeSpan(t, dm, makeSpan("T1", "S2", "S1", "tool.search.tool", base.Add(10*time.Millisecond), 40*time.Millisecond, nil))

	plugin := NewTaskAnalytics(testLogger(), services.NewActionDeduper())
	result, err := plugin.Execute(ctx, IDTaskAnalytics, dm, map[string]any{"trace_id": "T1"}, nil)
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	// Two tasks persisted with root T1.
	tasks, err := dm.GetTasksForTrace(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	var manual, tool *domain.Task
	for _, task := range tasks {
		switch task.ElementID {
		case "Task-A":
			manual = task
		case "task_S2":
			tool = task
		}
	}
	require.NotNil(t, manual)
	require.NotNil(t, tool)
	assert.Equal(t, "T1", manual.RootID)
	assert.Equal(t, "Task-A", tool.ParentID)

	// Two actions persisted: the manual task's and the generated tool
	// action with the stripped code id.
	actions, err := dm.Search(ctx, domain.KindAction, domain.Query{}, "")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	var toolAction *domain.Action
	for _, elem := range actions {
		action := elem.(*domain.Action)
		if action.CodeID == "tool.search" {
			toolAction = action
		}
	}
	require.NotNil(t, toolAction)
	assert.Equal(t, domain.ActionKindTool, toolAction.ActionKind)
}

func TestTaskAnalytics_Idempotent(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	storeSpan(t, dm, makeSpan("T1", "S1", "", "agent.task", base, time.Second,
		map[string]any{"gen_ai.task.id": "Task-A"}))

	plugin := NewTaskAnalytics(testLogger(), services.NewActionDeduper())

	for run := 0; run < 2; run++ {
		result, err := plugin.Execute(ctx, IDTaskAnalytics, dm, map[string]any{"trace_id": "T1"}, nil)
		require.NoError(t, err)
		require.Equal(t, analytics.StatusSuccess, result.Status)
	}

	// The second run is a skip: still exactly one task.
	tasks, err := dm.GetTasksForTrace(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTaskAnalytics_DedupAcrossConcurrentTraces(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for _, traceID := range []string{"TA", "TB"} {
		storeSpan(t, dm, makeSpan(traceID, traceID+"-s1", "", "search.task", base, time.Second,
			map[string]any{
				"gen_ai.task.id":        "Task-" + traceID,
				"gen_ai.action.code.id": "lib.search:42:run",
			}))
	}

	dedup := services.NewActionDeduper()
	var wg sync.WaitGroup
	for _, traceID := range []string{"TA", "TB"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			plugin := NewTaskAnalytics(testLogger(), dedup)
			result, err := plugin.Execute(ctx, IDTaskAnalytics, dm, map[string]any{"trace_id": id}, nil)
			assert.NoError(t, err)
			assert.Equal(t, analytics.StatusSuccess, result.Status)
		}(traceID)
	}
	wg.Wait()

	// Exactly one action with the shared code id survives.
	actions, err := dm.Search(ctx, domain.KindAction, domain.Query{
		"code_id": domain.Eq("lib.search:42:run"),
	}, "")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	canonical := actions[0].Header().ElementID

	for _, traceID := range []string{"TA", "TB"} {
		tasks, err := dm.GetTasksForTrace(ctx, traceID)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, canonical, tasks[0].ActionID)
	}
}

func TestTaskAnalytics_NoInputIsInputError(t *testing.T) {
	dm := newTestDataManager()
	plugin := NewTaskAnalytics(testLogger(), services.NewActionDeduper())

	result, err := plugin.Execute(context.Background(), IDTaskAnalytics, dm, map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, analytics.StatusFailure, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, analytics.ErrTypeInput, result.Error.ErrorType)
}

func TestTaskAnalytics_MissingSpansIsDataError(t *testing.T) {
	dm := newTestDataManager()
	plugin := NewTaskAnalytics(testLogger(), services.NewActionDeduper())

	result, err := plugin.Execute(context.Background(), IDTaskAnalytics, dm,
		map[string]any{"trace_id": "ghost"}, nil)
	require.NoError(t, err)
	assert.Equal(t, analytics.StatusFailure, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, analytics.ErrTypeData, result.Error.ErrorType)
}

func TestTaskAnalytics_TraceGroupFanOut(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	traceIDs := []string{"T1", "T2", "T3"}
	for _, traceID := range traceIDs {
		storeSpan(t, dm, makeSpan(traceID, traceID+"-root", "", "agent.task", base, time.Second,
			map[string]any{"gen_ai.task.id": "Task-" + traceID}))
	}
	group := domain.NewTraceGroup("group", "svc", traceIDs)
	_, err := dm.Store(ctx, group)
	require.NoError(t, err)

	plugin := NewTaskAnalytics(testLogger(), services.NewActionDeduper())
	result, err := plugin.Execute(ctx, IDTaskAnalytics, dm,
		map[string]any{"trace_group_id": group.ElementID},
		map[string]any{"max_concurrent_traces": 2})
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	for _, traceID := range traceIDs {
		tasks, err := dm.GetTasksForTrace(ctx, traceID)
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
	}
}
