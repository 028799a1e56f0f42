package spanproc

import (
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// ManualTaskVisitor extracts tasks reported explicitly through the
// gen_ai.task.* attribute schema. Presence of gen_ai.task.id always
// creates a task.
type ManualTaskVisitor struct {
	*baseTaskVisitor
}

func NewManualTaskVisitor() *ManualTaskVisitor {
	v := &ManualTaskVisitor{}
	v.baseTaskVisitor = newBaseTaskVisitor(visitorNameManual, v)
	return v
}

func (v *ManualTaskVisitor) isFrameworkSpan(span *domain.Span) bool {
	return span.HasAttribute(attrTaskID)
}

func (v *ManualTaskVisitor) shouldCreateTask(span *domain.Span) bool {
	return span.HasAttribute(attrTaskID)
}

func (v *ManualTaskVisitor) createBasicTask(span *domain.Span) *domain.Task {
	attrs := span.RawAttributes
	traceID := span.Context.TraceID
	spanID := span.Context.SpanID

	elementID, _ := span.StringAttribute(attrTaskID)
	if elementID == "" {
		elementID = "task_" + spanID
	}

	task := domain.NewTask(elementID, traceID)
	task.StartTime = span.StartTime
	task.EndTime = span.EndTime
	task.LogReference = domain.LogReference{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: span.ParentID,
	}

	if name, ok := span.StringAttribute(attrTaskName); ok {
		task.Name = name
	} else {
		task.Name = strings.TrimSuffix(span.Name, taskSuffix)
	}
	if tags, ok := attrs[attrTaskTags]; ok {
		task.AddTag(stringList(tags)...)
	}
	if kind, ok := span.StringAttribute(attrTaskKind); ok {
		task.TaskKind = domain.TaskKind(kind)
	}
	if state, ok := span.StringAttribute(attrTaskState); ok {
		task.State = domain.TaskState(state)
	}
	if status, ok := span.StringAttribute(attrTaskStatus); ok {
		task.Status = parseTaskStatus(status)
	}

	task.Input = extractManualInput(attrs)
	task.Output = extractManualOutput(attrs)

	task.CodeID, _ = span.StringAttribute(attrTaskCodeID)
	task.CodeVendor, _ = span.StringAttribute(attrTaskCodeVendor)
	task.RequesterID, _ = span.StringAttribute(attrTaskRequesterID)
	task.RequesterType, _ = span.StringAttribute(attrTaskRequesterTp)
	task.RequesterRole, _ = span.StringAttribute(attrTaskRequesterRl)
	task.RequestID, _ = span.StringAttribute(attrTaskRequestID)
	task.SessionID, _ = span.StringAttribute(attrTaskSessionID)
	task.Priority, _ = span.StringAttribute(attrTaskPriority)
	task.ActionID, _ = span.StringAttribute(attrTaskActionID)
	if deps, ok := attrs[attrTaskDependencies]; ok {
		task.DependenciesIDs = stringList(deps)
	}
	if parentID, ok := span.StringAttribute(attrTaskParentID); ok {
		task.ParentID = parentID
	}

	// Everything outside the gen_ai.task.* namespace is kept as-is.
	for key, value := range attrs {
		if strings.HasPrefix(key, "gen_ai.task.") {
			continue
		}
		task.SetAttribute(key, value)
	}
	task.SetAttribute("span_kind", string(span.SpanKind))
	task.SetAttribute("service_name", span.ServiceName())

	return task
}

func (v *ManualTaskVisitor) enrich(task *domain.Task, span *domain.Span, ctx *ports.TraversalContext) {
}

func (v *ManualTaskVisitor) detectSiblingDependencies(root *domain.Task, ctx *ports.TraversalContext) {
	connectConsecutiveSiblings(root, ctx)
}

func extractManualInput(attrs map[string]any) domain.TaskInput {
	var input domain.TaskInput
	if goal, ok := attrs[attrTaskInputGoal].(string); ok {
		input.Goal = goal
	}
	if instr, ok := attrs[attrTaskInputInstr]; ok {
		input.Instructions = stringList(instr)
	}
	if examples, ok := attrs[attrTaskInputExamples]; ok {
		input.Examples = stringList(examples)
	}
	if data, ok := attrs[attrTaskInputData]; ok {
		input.Data = NormalizeValue(data)
	}
	if meta, ok := attrs[attrTaskInputMeta]; ok {
		input.Metadata = anyMap(meta)
	}
	return input
}

func extractManualOutput(attrs map[string]any) domain.TaskOutput {
	var output domain.TaskOutput
	if data, ok := attrs[attrTaskOutputData]; ok {
		output.Data = NormalizeValue(data)
	}
	if values, ok := attrs[attrTaskOutputValues]; ok {
		if m := anyMap(values); m != nil {
			if output.Data == nil {
				output.Data = make(map[string]any)
			}
			output.Data["values"] = NormalizeValue(m)
		}
	}
	if ranking, ok := attrs[attrTaskOutputRanking]; ok {
		output.Ranking = stringList(ranking)
	}
	if meta, ok := attrs[attrTaskOutputMeta]; ok {
		output.Metadata = anyMap(meta)
	}
	return output
}

func parseTaskStatus(s string) domain.TaskStatus {
	switch domain.TaskStatus(strings.ToUpper(s)) {
	case domain.TaskStatusSuccess:
		return domain.TaskStatusSuccess
	case domain.TaskStatusFailure:
		return domain.TaskStatusFailure
	}
	return domain.TaskStatusUnknown
}
