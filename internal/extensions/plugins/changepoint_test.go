package plugins

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
)

// seedMetricSeries stores one root task per trace carrying the metric
// series value at its position.
func seedMetricSeries(t *testing.T, dm *services.DataManager, metric string, values []float64) *domain.TraceGroup {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	traceIDs := make([]string, len(values))
	for i, value := range values {
		traceID := fmt.Sprintf("trace-%03d", i)
		traceIDs[i] = traceID

		task := domain.NewTask("Task-root-"+traceID, traceID)
		task.Name = "root"
		task.StartTime = base.Add(time.Duration(i) * time.Minute)
		task.EndTime = task.StartTime.Add(30 * time.Second)
		task.LogReference = domain.LogReference{TraceID: traceID, SpanID: traceID + "-s0"}
		task.SetMetric(metric, value)
		// The watched series all need values for the scan to proceed.
		for _, other := range []string{"num_input_tokens", "num_output_tokens", "llm_calls", "tool_calls", "execution_time"} {
			if other != metric {
				task.SetMetric(other, 1)
			}
		}
		_, err := dm.Store(ctx, task)
		require.NoError(t, err)
	}

	group := domain.NewTraceGroup("load-test", "svc", traceIDs)
	_, err := dm.Store(ctx, group)
	require.NoError(t, err)
	return group
}

func TestChangePointDetector_DetectsLevelShiftUp(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()

	values := make([]float64, 30)
	for i := range values {
		if i < 15 {
			values[i] = 1.0
		} else {
			values[i] = 5.0
		}
	}
	group := seedMetricSeries(t, dm, "execution_time", values)

	plugin := NewChangePointDetector()
	result, err := plugin.Execute(ctx, IDChangePoint, dm,
		map[string]any{"trace_group_id": group.ElementID},
		map[string]any{
			"min_observations":   10,
			"change_ratio_bound": 0.5,
			"window_max":         10,
		})
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	issues, err := dm.GetChildren(ctx, group.ElementID, domain.KindIssue, "")
	require.NoError(t, err)
	require.Len(t, issues, 1)

	issue := issues[0].(*domain.Issue)
	assert.Contains(t, issue.Name, "Increase")
	assert.Contains(t, issue.Name, "execution time")
	assert.Equal(t, "up", issue.Attributes["direction"])
	assert.InDelta(t, 1.0, issue.Attributes["level_before"].(float64), 0.01)
	assert.InDelta(t, 5.0, issue.Attributes["level_after"].(float64), 0.01)

	// The issue relates to the group and the trace at the change point,
	// with typed relations.
	assert.Len(t, issue.RelatedToIDs, len(issue.RelatedToTypes))
	assert.Contains(t, issue.RelatedToIDs, group.ElementID)
	assert.Contains(t, issue.RelatedToTypes, domain.KindTraceGroup)
	assert.Contains(t, issue.RelatedToTypes, domain.KindTrace)
}

func TestChangePointDetector_DirectionFilter(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()

	// A downward shift: the default direction "up" must suppress it.
	values := make([]float64, 30)
	for i := range values {
		if i < 15 {
			values[i] = 5.0
		} else {
			values[i] = 1.0
		}
	}
	group := seedMetricSeries(t, dm, "execution_time", values)

	plugin := NewChangePointDetector()
	result, err := plugin.Execute(ctx, IDChangePoint, dm,
		map[string]any{"trace_group_id": group.ElementID},
		map[string]any{
			"min_observations":   10,
			"change_ratio_bound": 0.5,
			"window_max":         10,
		})
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	issues, err := dm.GetChildren(ctx, group.ElementID, domain.KindIssue, "")
	require.NoError(t, err)
	assert.Empty(t, issues, "downward shifts do not match direction up")
}

func TestChangePointDetector_FlatSeriesNoIssues(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()

	values := make([]float64, 30)
	for i := range values {
		values[i] = 2.0
	}
	group := seedMetricSeries(t, dm, "execution_time", values)

	plugin := NewChangePointDetector()
	result, err := plugin.Execute(ctx, IDChangePoint, dm,
		map[string]any{"trace_group_id": group.ElementID},
		map[string]any{"min_observations": 10, "change_ratio_bound": 0.5, "window_max": 10})
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	issues, err := dm.GetChildren(ctx, group.ElementID, domain.KindIssue, "")
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestChangePointDetector_TooFewObservations(t *testing.T) {
	dm := newTestDataManager()
	group := seedMetricSeries(t, dm, "execution_time", []float64{1, 2, 3})

	plugin := NewChangePointDetector()
	result, err := plugin.Execute(context.Background(), IDChangePoint, dm,
		map[string]any{"trace_group_id": group.ElementID},
		map[string]any{"min_observations": 10})
	require.NoError(t, err)
	assert.Equal(t, analytics.StatusFailure, result.Status)
	assert.Equal(t, analytics.ErrTypeInput, result.Error.ErrorType)
}

func TestPeltGaussianMean(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		if i < 20 {
			series[i] = 1.0
		} else {
			series[i] = 10.0
		}
	}
	changePoints := peltGaussianMean(series)
	require.Len(t, changePoints, 1)
	assert.Equal(t, 20, changePoints[0])

	// A constant series yields no change points.
	flat := make([]float64, 40)
	assert.Empty(t, peltGaussianMean(flat))
}
