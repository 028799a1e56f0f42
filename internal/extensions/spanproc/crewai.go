package spanproc

import (
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// CrewAIVisitor extracts tasks from crewAI instrumentation: the crew
// kickoff, task execution, agent execution, and tool usage spans. The
// crew declaration parsed at kickoff drives dependency detection between
// sibling task executions.
type CrewAIVisitor struct {
	*baseTaskVisitor

	graph *CrewGraph

	// executedByIndex maps planned-task positions to the executed tasks.
	executedByIndex map[int]*domain.Task
}

func NewCrewAIVisitor() *CrewAIVisitor {
	v := &CrewAIVisitor{executedByIndex: make(map[int]*domain.Task)}
	v.baseTaskVisitor = newBaseTaskVisitor(visitorNameCrewAI, v)
	return v
}

func (v *CrewAIVisitor) isFrameworkSpan(span *domain.Span) bool {
	if span.HasAttribute(attrCrewAIVersion) {
		return true
	}
	if service, ok := span.StringAttribute(attrLangtraceService); ok && strings.EqualFold(service, crewServiceName) {
		return true
	}
	return strings.EqualFold(span.ServiceName(), crewServiceName)
}

func (v *CrewAIVisitor) shouldCreateTask(span *domain.Span) bool {
	return v.isCrewKickoff(span) ||
		v.isTaskExecution(span) ||
		v.isAgentExecution(span) ||
		v.isToolUsage(span)
}

func (v *CrewAIVisitor) isCrewKickoff(span *domain.Span) bool {
	return span.Name == spanCrewKickoff
}

func (v *CrewAIVisitor) isTaskExecution(span *domain.Span) bool {
	return span.Name == spanCrewTaskExec || span.Name == spanCrewTaskCore
}

func (v *CrewAIVisitor) isTaskCreation(span *domain.Span) bool {
	return span.Name == spanCrewTaskMade
}

func (v *CrewAIVisitor) isAgentExecution(span *domain.Span) bool {
	return span.Name == spanCrewAgentExec
}

func (v *CrewAIVisitor) isToolUsage(span *domain.Span) bool {
	return span.Name == spanCrewToolUsage || strings.HasSuffix(span.Name, toolSuffix)
}

func (v *CrewAIVisitor) createBasicTask(span *domain.Span) *domain.Task {
	return skeletonTask(span)
}

func (v *CrewAIVisitor) enrich(task *domain.Task, span *domain.Span, ctx *ports.TraversalContext) {
	switch {
	case v.isCrewKickoff(span):
		task.AddTag(domain.TaskTagComplex, domain.TaskTagCrew)
		v.graph = newCrewGraphFromKickoff(span.RawAttributes)
		if inputs, ok := span.RawAttributes[attrCrewInputs]; ok {
			task.Input.Data = NormalizeValue(inputs)
		}
		task.SetAttribute(attrCrewProcess, v.graph.Process)

	case v.isTaskExecution(span):
		task.AddTag(domain.TaskTagComplex, domain.TaskTagCrewTask)
		if input, ok := span.RawAttributes[attrCrewTaskExecInput]; ok {
			task.Input.Data = NormalizeValue(input)
		}
		if output, ok := span.RawAttributes[attrCrewTaskExecOutput]; ok {
			task.Output.Data = NormalizeValue(output)
		}
		for key, value := range collectPrefixed(span.RawAttributes, "crewai.task.") {
			task.SetAttribute(key, value)
		}
		if v.graph != nil {
			key, _ := span.StringAttribute(attrCrewTaskKey)
			id, _ := span.StringAttribute(attrCrewTaskID)
			idx := v.graph.plannedIndex(key)
			if idx < 0 {
				idx = v.graph.plannedIndex(id)
			}
			if idx >= 0 {
				v.executedByIndex[idx] = task
			}
		}

	case v.isAgentExecution(span):
		task.AddTag(domain.TaskTagAgent)
		if role, ok := span.StringAttribute(attrCrewAgentRole); ok {
			task.SetAttribute(attrCrewAgentRole, role)
			if role == crewManagerRole {
				task.AddTag(domain.TaskTagComplex)
			}
		} else if v.graph != nil {
			if id, ok := span.StringAttribute(attrCrewAgentID); ok {
				task.SetAttribute(attrCrewAgentRole, v.graph.agentRole(id))
			}
		}
		if output, ok := span.RawAttributes[attrCrewAgentOutput]; ok {
			task.Output.Data = NormalizeValue(output)
		}
		for key, value := range collectPrefixed(span.RawAttributes, "crewai.agent.") {
			task.SetAttribute(key, value)
		}

	case v.isToolUsage(span):
		task.AddTag(domain.TaskTagToolCall)
		task.TaskKind = domain.TaskKindTool
		for key, value := range span.RawAttributes {
			task.SetAttribute(key, value)
		}
	}
}

// detectSiblingDependencies orders executed crew tasks: sequential crews
// follow the declaration order; hierarchical crews and unplanned tasks
// fall back to timing between siblings.
func (v *CrewAIVisitor) detectSiblingDependencies(root *domain.Task, ctx *ports.TraversalContext) {
	if v.graph != nil && v.graph.sequential() {
		var previous *domain.Task
		for i := 0; i < len(v.graph.Planned); i++ {
			task, executed := v.executedByIndex[i]
			if !executed {
				continue
			}
			if previous != nil {
				task.DependentIDs = appendUnique(task.DependentIDs, previous.ElementID)
			}
			previous = task
		}
	}
	connectConsecutiveSiblings(root, ctx)
}
