// Package plugins contains the built-in analytics implementations run by
// the execution engine.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
	"github.com/AgentToolkit/agent-mentor/internal/extensions/spanproc"
)

// Analytics ids of the built-in plugins.
const (
	IDTaskAnalytics     = "task_analytics"
	IDIssueAnalytics    = "issue_analytics"
	IDAnnotations       = "annotation_analytics"
	IDCycleDetector     = "cycle_detector"
	IDChangePoint       = "change_point_detector"
	IDCausalDiscovery   = "causal_discovery_light"
	IDIssueDistribution = "issue_distribution_trace"
)

// DefaultMaxConcurrentTraces bounds the per-trace fan-out of bulk task
// extraction.
const DefaultMaxConcurrentTraces = 20

// TaskAnalytics runs the visitor pipeline over the spans of one or many
// traces and persists the extracted tasks and deduplicated actions.
// Re-processing a trace that already has tasks is a skip.
type TaskAnalytics struct {
	logger *slog.Logger
	dedup  *services.ActionDeduper
}

func NewTaskAnalytics(logger *slog.Logger, dedup *services.ActionDeduper) *TaskAnalytics {
	return &TaskAnalytics{logger: logger, dedup: dedup}
}

func (p *TaskAnalytics) InputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace to run this analytic on"},
		{Name: "trace_ids", Type: analytics.FieldArray, Required: false, Description: "List of trace ids to run this analytic on", ArrayType: fieldTypePtr(analytics.FieldString)},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group to run this analytic on"},
		{Name: "spans", Type: analytics.FieldArray, Required: false, Description: "Raw spans to run this analytic on", ArrayType: fieldTypePtr(analytics.FieldAny)},
		{Name: "max_concurrent_traces", Type: analytics.FieldInteger, Required: false, Description: "Upper bound on traces processed in parallel"},
	}}
}

func (p *TaskAnalytics) OutputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace this analytic was run on"},
		{Name: "trace_ids", Type: analytics.FieldArray, Required: false, Description: "Trace ids this analytic was run on", ArrayType: fieldTypePtr(analytics.FieldString)},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group this analytic was run on"},
		{Name: "task_list", Type: analytics.FieldArray, Required: true, Description: "List of analyzed tasks", ArrayType: fieldTypePtr(analytics.FieldAny)},
		{Name: "actions_list", Type: analytics.FieldArray, Required: true, Description: "List of analyzed action objects", ArrayType: fieldTypePtr(analytics.FieldAny)},
	}}
}

func (p *TaskAnalytics) Execute(ctx context.Context, analyticsID string, dm ports.DataManager, input map[string]any, config map[string]any) (*analytics.ExecutionResult, error) {
	traceID, _ := input["trace_id"].(string)
	traceGroupID, _ := input["trace_group_id"].(string)
	traceIDs := stringSlice(input["trace_ids"])
	rawSpans, _ := input["spans"].([]any)

	if traceID == "" && traceGroupID == "" && len(traceIDs) == 0 && len(rawSpans) == 0 {
		return analytics.FailureResult(analyticsID, analytics.NewExecutionError(analytics.ErrTypeInput,
			"No relevant input provided for the analytics (neither of trace_id, trace_ids, trace_group_id or span list is given)")), nil
	}

	maxConcurrent := int64(DefaultMaxConcurrentTraces)
	if v, ok := intConfig(config, "max_concurrent_traces"); ok && v > 0 {
		maxConcurrent = v
	}

	var allTasks []*domain.Task
	var allActions []*domain.Action

	switch {
	case traceGroupID != "" || len(traceIDs) > 0:
		ids := traceIDs
		if traceGroupID != "" {
			group, err := dm.GetByID(ctx, traceGroupID, domain.KindTraceGroup, "")
			if err != nil {
				return nil, err
			}
			if group == nil {
				return analytics.FailureResult(analyticsID, analytics.NewExecutionError(analytics.ErrTypeData,
					fmt.Sprintf("No trace group found with id %s", traceGroupID))), nil
			}
			ids = group.(*domain.TraceGroup).TracesIDs
		}
		tasks, actions, err := p.processTraces(ctx, dm, ids, maxConcurrent)
		if err != nil {
			return nil, err
		}
		allTasks, allActions = tasks, actions

	default:
		var spans []*domain.Span
		if len(rawSpans) > 0 {
			decoded, err := decodeSpans(rawSpans)
			if err != nil {
				return analytics.FailureResult(analyticsID,
					analytics.NewExecutionError(analytics.ErrTypeInput, err.Error())), nil
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
			return analytics.FailureResult(analyticsID, analytics.NewExecutionError(analytics.ErrTypeData,
				fmt.Sprintf("No spans found for trace %s", traceID))), nil
		}
		if skip, err := p.alreadyProcessed(ctx, dm, traceID); err != nil {
			return nil, err
		} else if !skip {
			allTasks, allActions = p.processSpans(spans)
		}
	}

	if len(allTasks) > 0 {
		elems := make([]domain.Element, len(allTasks))
		for i, t := range allTasks {
			elems[i] = t
		}
		if _, err := dm.BulkStore(ctx, elems, true); err != nil {
			return nil, fmt.Errorf("store tasks: %w", err)
		}
	}
	if len(allActions) > 0 {
		elems := make([]domain.Element, len(allActions))
		for i, a := range allActions {
			elems[i] = a
		}
		if _, err := dm.BulkStore(ctx, elems, true); err != nil {
			return nil, fmt.Errorf("store actions: %w", err)
		}
	}

	output := map[string]any{
		"task_list":    tasksToMaps(allTasks),
		"actions_list": actionsToMaps(allActions),
	}
	if traceGroupID != "" {
		output["trace_group_id"] = traceGroupID
	} else if len(traceIDs) > 0 {
		output["trace_ids"] = traceIDs
	} else {
		output["trace_id"] = traceID
	}

	result := analytics.NewExecutionResult(analyticsID, analytics.StatusSuccess)
	result.OutputResult = output
	return result, nil
}

// processTraces fans out over the trace list, bounded by the semaphore.
// Per-trace failures are logged and skipped, never failing the batch.
func (p *TaskAnalytics) processTraces(ctx context.Context, dm ports.DataManager, traceIDs []string, maxConcurrent int64) ([]*domain.Task, []*domain.Action, error) {
	sem := semaphore.NewWeighted(maxConcurrent)
	var mu sync.Mutex
	var wg sync.WaitGroup
	var allTasks []*domain.Task
	seenActions := make(map[string]*domain.Action)
	var actionOrder []string

	p.logger.Info("processing traces in parallel", "count", len(traceIDs), "max_concurrent", maxConcurrent)

	for _, traceID := range traceIDs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, nil, err
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			if skip, err := p.alreadyProcessed(ctx, dm, id); err != nil || skip {
				if err != nil {
					p.logger.Warn("failed to check existing tasks", "trace_id", id, "error", err)
				}
				return
			}
			spans, err := dm.GetSpans(ctx, id)
			if err != nil {
				p.logger.Warn("failed to process trace", "trace_id", id, "error", err)
				return
			}
			if len(spans) == 0 {
				return
			}
			tasks, actions := p.processSpans(spans)

			mu.Lock()
			allTasks = append(allTasks, tasks...)
			for _, action := range actions {
				if _, ok := seenActions[action.CodeID]; !ok {
					seenActions[action.CodeID] = action
					actionOrder = append(actionOrder, action.CodeID)
				}
			}
			mu.Unlock()
		}(traceID)
	}
	wg.Wait()

	allActions := make([]*domain.Action, 0, len(actionOrder))
	for _, codeID := range actionOrder {
		allActions = append(allActions, seenActions[codeID])
	}
	p.logger.Info("parallel processing completed",
		"traces", len(traceIDs), "tasks", len(allTasks), "actions", len(allActions))
	return allTasks, allActions, nil
}

// processSpans runs the visitor pipeline over one trace's spans and
// normalizes task payloads.
func (p *TaskAnalytics) processSpans(spans []*domain.Span) ([]*domain.Task, []*domain.Action) {
	traverser := spanproc.Pipeline(p.logger, p.dedup)
	ctx := traverser.Traverse(spans, nil)

	tasks := make([]*domain.Task, 0, len(ctx.Tasks))
	for _, task := range ctx.Tasks {
		if task.Input.Data != nil {
			task.Input.Data = spanproc.NormalizeValue(task.Input.Data)
		}
		if task.Output.Data != nil {
			task.Output.Data = spanproc.NormalizeValue(task.Output.Data)
		}
		tasks = append(tasks, task)
	}
	return tasks, ctx.Actions
}

// alreadyProcessed reports whether tasks already exist for the trace.
func (p *TaskAnalytics) alreadyProcessed(ctx context.Context, dm ports.DataManager, traceID string) (bool, error) {
	existing, err := dm.GetTasksForTrace(ctx, traceID)
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

func decodeSpans(raw []any) ([]*domain.Span, error) {
	spans := make([]*domain.Span, 0, len(raw))
	for i, item := range raw {
		payload, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("span %d is not decodable: %w", i, err)
		}
		var span domain.Span
		if err := json.Unmarshal(payload, &span); err != nil {
			return nil, fmt.Errorf("span %d does not match the span schema: %w", i, err)
		}
		span.Type = domain.KindSpan
		if span.ElementID == "" {
			span.ElementID = span.Context.SpanID
		}
		spans = append(spans, &span)
	}
	return spans, nil
}
