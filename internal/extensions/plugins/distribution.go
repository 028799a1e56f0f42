package plugins

import (
	"context"
	"fmt"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// IssueDistributionTrace aggregates issue severity counts up the task
// parent tree and emits one DISTRIBUTION metric per task. Tasks tagged
// "complex" absorb the distributions of their children.
type IssueDistributionTrace struct{}

func NewIssueDistributionTrace() *IssueDistributionTrace { return &IssueDistributionTrace{} }

func (p *IssueDistributionTrace) InputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "ID of trace"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group"},
	}}
}

func (p *IssueDistributionTrace) OutputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "ID of trace"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group"},
		{Name: "metric_element_ids", Type: analytics.FieldArray, Required: true, Description: "Ids of the created distribution metrics", ArrayType: fieldTypePtr(analytics.FieldString)},
	}}
}

func (p *IssueDistributionTrace) Execute(ctx context.Context, analyticsID string, dm ports.DataManager, input map[string]any, config map[string]any) (*analytics.ExecutionResult, error) {
	traceID, _ := input["trace_id"].(string)
	traceGroupID, _ := input["trace_group_id"].(string)
	if traceID == "" && traceGroupID == "" {
		return inputFailure(analyticsID, "Missing input: Trace id or trace group id are not provided"), nil
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

	var metrics []*domain.Metric
	for _, id := range traceIDs {
		tasks, err := dm.GetTasksForTrace(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(tasks) == 0 {
			continue
		}
		issues, err := dm.GetChildren(ctx, id, domain.KindIssue, "")
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, distributionMetrics(id, tasks, issues, analyticsID)...)
	}

	if len(metrics) > 0 {
		elems := make([]domain.Element, len(metrics))
		for i, m := range metrics {
			elems[i] = m
		}
		if _, err := dm.BulkStore(ctx, elems, true); err != nil {
			return nil, fmt.Errorf("store metrics: %w", err)
		}
	}

	ids := make([]any, len(metrics))
	for i, m := range metrics {
		ids[i] = m.ElementID
	}
	output := map[string]any{"metric_element_ids": ids}
	if traceGroupID != "" {
		output["trace_group_id"] = traceGroupID
	} else {
		output["trace_id"] = traceID
	}
	return successResult(analyticsID, output), nil
}

// distributionMetrics computes the per-task severity distribution,
// recursing through complex tasks so parents absorb their children's
// counts. Every task gets one DISTRIBUTION metric.
func distributionMetrics(traceID string, tasks []*domain.Task, issues []domain.Element, analyticsID string) []*domain.Metric {
	children := make(map[string][]*domain.Task)
	for _, task := range tasks {
		if task.ParentID != "" {
			children[task.ParentID] = append(children[task.ParentID], task)
		}
	}

	// Direct counts: issues referencing the task as related.
	direct := make(map[string]map[string]float64, len(tasks))
	for _, task := range tasks {
		direct[task.ElementID] = make(map[string]float64)
	}
	for _, elem := range issues {
		issue, ok := elem.(*domain.Issue)
		if !ok {
			continue
		}
		for _, relatedID := range issue.RelatedToIDs {
			if counts, ok := direct[relatedID]; ok {
				counts[string(issue.Level)]++
			}
		}
	}

	memo := make(map[string]map[string]float64, len(tasks))
	var rollup func(task *domain.Task) map[string]float64
	rollup = func(task *domain.Task) map[string]float64 {
		if cached, ok := memo[task.ElementID]; ok {
			return cached
		}
		total := make(map[string]float64)
		for level, count := range direct[task.ElementID] {
			total[level] += count
		}
		if task.HasTag(domain.TaskTagComplex) {
			for _, child := range children[task.ElementID] {
				if child.ElementID == task.ElementID {
					continue
				}
				for level, count := range rollup(child) {
					total[level] += count
				}
			}
		}
		memo[task.ElementID] = total
		return total
	}

	metrics := make([]*domain.Metric, 0, len(tasks))
	for _, task := range tasks {
		distribution := rollup(task)
		metric := domain.NewDistributionMetric(traceID, "issue_distribution", distribution)
		metric.ElementID = fmt.Sprintf("Metric:issue_distribution:%s", task.ElementID)
		metric.PluginMetadataID = analyticsID
		metric.AddRelatedTo(task.ElementID, domain.KindTask)
		metrics = append(metrics, metric)
	}
	return metrics
}
