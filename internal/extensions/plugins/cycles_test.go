package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

func storeTask(t *testing.T, dm interface {
	Store(ctx context.Context, e domain.Element) (string, error)
}, task *domain.Task) {
	t.Helper()
	_, err := dm.Store(context.Background(), task)
	require.NoError(t, err)
}

func cyclicTask(traceID, id, name string, start time.Time, deps ...string) *domain.Task {
	task := domain.NewTask(id, traceID)
	task.Name = name
	task.StartTime = start
	task.EndTime = start.Add(time.Second)
	task.DependentIDs = deps
	return task
}

func TestCycleDetector_FindsRepeatedNameCycle(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// A -> B -> C -> A forms a cycle whose names repeat across path
	// traversals; D -> E stays acyclic.
	storeTask(t, dm, cyclicTask("T1", "A", "1:validate", base, "B"))
	storeTask(t, dm, cyclicTask("T1", "B", "2:validate", base.Add(time.Second), "C"))
	storeTask(t, dm, cyclicTask("T1", "C", "3:review", base.Add(2*time.Second), "A"))
	storeTask(t, dm, cyclicTask("T1", "D", "4:load", base.Add(3*time.Second), "E"))
	storeTask(t, dm, cyclicTask("T1", "E", "5:store", base.Add(4*time.Second)))

	plugin := NewCycleDetector()
	result, err := plugin.Execute(ctx, IDCycleDetector, dm,
		map[string]any{"trace_id": "T1"},
		map[string]any{"min_occurrences": 2})
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	issues, err := dm.GetChildren(ctx, "T1", domain.KindIssue, "")
	require.NoError(t, err)
	require.Len(t, issues, 1, "the D->E chain must produce no issue")

	issue := issues[0].(*domain.Issue)
	assert.Equal(t, domain.IssueLevelWarning, issue.Level)
	assert.Contains(t, issue.Name, "cycle_no.1")
	assert.ElementsMatch(t, []string{"1:validate", "2:validate", "3:review"}, issue.Effect)
	// Every emitted issue keeps the relation-length invariant.
	assert.Len(t, issue.RelatedToIDs, len(issue.RelatedToTypes))
}

func TestCycleDetector_MinOccurrencesFiltersUniqueNames(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// A cycle with all-distinct names does not qualify at
	// min_occurrences 2.
	storeTask(t, dm, cyclicTask("T1", "A", "1:alpha", base, "B"))
	storeTask(t, dm, cyclicTask("T1", "B", "2:beta", base.Add(time.Second), "A"))

	plugin := NewCycleDetector()
	result, err := plugin.Execute(ctx, IDCycleDetector, dm,
		map[string]any{"trace_id": "T1"},
		map[string]any{"min_occurrences": 2})
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	issues, err := dm.GetChildren(ctx, "T1", domain.KindIssue, "")
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestCycleDetector_MaximalCyclesOnly(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// The small cycle A -> B -> A is a subsequence of the larger
	// A -> B -> C -> A walk; only maximal cycles survive.
	storeTask(t, dm, cyclicTask("T1", "A", "1:step", base, "B"))
	storeTask(t, dm, cyclicTask("T1", "B", "2:step", base.Add(time.Second), "A", "C"))
	storeTask(t, dm, cyclicTask("T1", "C", "3:step", base.Add(2*time.Second), "A"))

	plugin := NewCycleDetector()
	result, err := plugin.Execute(ctx, IDCycleDetector, dm,
		map[string]any{"trace_id": "T1"},
		map[string]any{"min_occurrences": 2})
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	issues, err := dm.GetChildren(ctx, "T1", domain.KindIssue, "")
	require.NoError(t, err)

	// No emitted cycle may be a proper subsequence of another: the
	// two-task cycle is absorbed by the three-task one.
	for _, elem := range issues {
		issue := elem.(*domain.Issue)
		assert.GreaterOrEqual(t, len(issue.Effect), 3)
	}
}

func TestCycleDetector_RequiresInput(t *testing.T) {
	dm := newTestDataManager()
	plugin := NewCycleDetector()

	result, err := plugin.Execute(context.Background(), IDCycleDetector, dm, map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, analytics.StatusFailure, result.Status)
	assert.Equal(t, analytics.ErrTypeInput, result.Error.ErrorType)
}
