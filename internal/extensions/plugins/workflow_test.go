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

// seedSequence stores a root task plus one child per activity name, in
// order, for the given trace.
func seedSequence(t *testing.T, dm interface {
	Store(ctx context.Context, e domain.Element) (string, error)
}, traceID string, activities []string) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	root := domain.NewTask("Task-root-"+traceID, traceID)
	root.Name = "root"
	root.StartTime = base
	root.EndTime = base.Add(time.Hour)
	root.LogReference = domain.LogReference{TraceID: traceID, SpanID: traceID + "-root"}
	_, err := dm.Store(ctx, root)
	require.NoError(t, err)

	for i, name := range activities {
		task := domain.NewTask("", traceID)
		task.Name = name
		task.ParentID = root.ElementID
		task.StartTime = base.Add(time.Duration(i+1) * time.Minute)
		task.EndTime = task.StartTime.Add(30 * time.Second)
		task.LogReference = domain.LogReference{TraceID: traceID, SpanID: task.ElementID}
		_, err := dm.Store(ctx, task)
		require.NoError(t, err)
	}
}

func TestCausalDiscovery_MinesSequentialModel(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()

	group := domain.NewTraceGroup("runs", "svc", []string{"T1", "T2", "T3"})
	_, err := dm.Store(ctx, group)
	require.NoError(t, err)

	// Two variants: fetch->rank->answer twice, fetch->answer once.
	seedSequence(t, dm, "T1", []string{"fetch", "rank", "answer"})
	seedSequence(t, dm, "T2", []string{"fetch", "rank", "answer"})
	seedSequence(t, dm, "T3", []string{"fetch", "answer"})

	plugin := NewCausalDiscoveryLight()
	result, err := plugin.Execute(ctx, IDCausalDiscovery, dm,
		map[string]any{"trace_group_id": group.ElementID}, nil)
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	// The persisted bundle references actions, one workflow, three nodes
	// and the mined edges.
	workflows, err := dm.Search(ctx, domain.KindTraceWorkflow, domain.Query{}, "")
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	bundle := workflows[0].(*domain.TraceWorkflow)

	assert.Equal(t, 3, bundle.TotalCases)
	assert.Equal(t, 2, bundle.TotalVariants)
	assert.Len(t, bundle.WorkflowNodeIDs, 3)
	assert.Len(t, bundle.ActionIDs, 3)
	assert.NotEmpty(t, bundle.WorkflowEdgeIDs)

	edges, err := dm.Search(ctx, domain.KindWorkflowEdge, domain.Query{}, "")
	require.NoError(t, err)

	bySupport := make(map[string]float64)
	byWeight := make(map[string]int)
	for _, elem := range edges {
		edge := elem.(*domain.WorkflowEdge)
		bySupport[edge.ElementID] = edge.Support
		byWeight[edge.ElementID] = edge.Weight
	}

	fetchRank := "WorkflowEdge:" + group.ElementID + ":fetch->rank"
	fetchAnswer := "WorkflowEdge:" + group.ElementID + ":fetch->answer"
	require.Contains(t, bySupport, fetchRank)
	require.Contains(t, bySupport, fetchAnswer)
	assert.InDelta(t, 2.0/3.0, bySupport[fetchRank], 0.001)
	assert.InDelta(t, 1.0/3.0, bySupport[fetchAnswer], 0.001)
	assert.Equal(t, 2, byWeight[fetchRank])

	// fetch has two successors that never run in both orders: XOR split.
	fetchEdges, err := dm.Search(ctx, domain.KindWorkflowEdge, domain.Query{
		"element_id": domain.Eq(fetchRank),
	}, "")
	require.NoError(t, err)
	require.Len(t, fetchEdges, 1)
	assert.Equal(t, domain.EdgeXor, fetchEdges[0].(*domain.WorkflowEdge).SourceCategory)

	// Node task counters reflect how many tasks mapped onto the node.
	nodes, err := dm.Search(ctx, domain.KindWorkflowNode, domain.Query{}, "")
	require.NoError(t, err)
	counters := make(map[string]int)
	for _, elem := range nodes {
		node := elem.(*domain.WorkflowNode)
		counters[node.Name] = node.TaskCounter
	}
	assert.Equal(t, 3, counters["WorkflowNode:"+group.ElementID+"#fetch"])
	assert.Equal(t, 2, counters["WorkflowNode:"+group.ElementID+"#rank"])
}

func TestCausalDiscovery_ExactlyOneInput(t *testing.T) {
	dm := newTestDataManager()
	plugin := NewCausalDiscoveryLight()

	result, err := plugin.Execute(context.Background(), IDCausalDiscovery, dm,
		map[string]any{"trace_id": "T1", "trace_group_id": "G1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, analytics.StatusFailure, result.Status)
	assert.Equal(t, analytics.ErrTypeInput, result.Error.ErrorType)
}

func TestIssueDistribution_RollsUpSeverities(t *testing.T) {
	dm := newTestDataManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	root := domain.NewTask("Task-root", "T1")
	root.Name = "root"
	root.AddTag(domain.TaskTagComplex)
	root.StartTime = base
	root.EndTime = base.Add(time.Minute)
	child := domain.NewTask("Task-child", "T1")
	child.Name = "child"
	child.ParentID = root.ElementID
	child.StartTime = base
	child.EndTime = base.Add(time.Second)
	for _, task := range []*domain.Task{root, child} {
		_, err := dm.Store(ctx, task)
		require.NoError(t, err)
	}

	childIssue := domain.NewIssue("T1", "bad output", domain.IssueLevelError)
	childIssue.AddRelatedTo(child.ElementID, domain.KindTask)
	rootIssue := domain.NewIssue("T1", "slow", domain.IssueLevelWarning)
	rootIssue.AddRelatedTo(root.ElementID, domain.KindTask)
	for _, issue := range []*domain.Issue{childIssue, rootIssue} {
		_, err := dm.Store(ctx, issue)
		require.NoError(t, err)
	}

	plugin := NewIssueDistributionTrace()
	result, err := plugin.Execute(ctx, IDIssueDistribution, dm, map[string]any{"trace_id": "T1"}, nil)
	require.NoError(t, err)
	require.Equal(t, analytics.StatusSuccess, result.Status)

	metrics, err := dm.GetChildren(ctx, "T1", domain.KindMetric, "")
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	byID := make(map[string]*domain.Metric)
	for _, elem := range metrics {
		metric := elem.(*domain.Metric)
		byID[metric.ElementID] = metric
		assert.Equal(t, domain.MetricDistribution, metric.MetricType)
	}

	// The complex root absorbs the child's ERROR on top of its WARNING.
	rootMetric := byID["Metric:issue_distribution:Task-root"]
	require.NotNil(t, rootMetric)
	assert.Equal(t, map[string]float64{
		string(domain.IssueLevelWarning): 1,
		string(domain.IssueLevelError):   1,
	}, rootMetric.Value.Distribution)

	childMetric := byID["Metric:issue_distribution:Task-child"]
	require.NotNil(t, childMetric)
	assert.Equal(t, map[string]float64{
		string(domain.IssueLevelError): 1,
	}, childMetric.Value.Distribution)
}
