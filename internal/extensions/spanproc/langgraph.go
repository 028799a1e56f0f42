package spanproc

import (
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// LangGraphVisitor extracts tasks from LangGraph node executions. Graph
// structure is recovered from the node/trigger attributes: a node's
// triggers name the upstream nodes whose completion released it, which
// become dependency edges between the sibling tasks.
type LangGraphVisitor struct {
	*baseTaskVisitor

	// nodeToTask maps langgraph node names to their latest task.
	nodeToTask map[string]*domain.Task
}

func NewLangGraphVisitor() *LangGraphVisitor {
	v := &LangGraphVisitor{nodeToTask: make(map[string]*domain.Task)}
	v.baseTaskVisitor = newBaseTaskVisitor(visitorNameLangGraph, v)
	return v
}

func (v *LangGraphVisitor) isFrameworkSpan(span *domain.Span) bool {
	if span.HasAttribute(attrLangGraphNode) || span.HasAttribute(attrLangGraphStep) {
		return true
	}
	return strings.EqualFold(span.ServiceName(), "langgraph")
}

func (v *LangGraphVisitor) shouldCreateTask(span *domain.Span) bool {
	return span.HasAttribute(attrLangGraphNode) || span.Name == "LangGraph"
}

func (v *LangGraphVisitor) createBasicTask(span *domain.Span) *domain.Task {
	task := skeletonTask(span)
	if node, ok := span.StringAttribute(attrLangGraphNode); ok && node != "" {
		task.Name = nodeNameWithoutPrefix(node)
	}
	return task
}

func (v *LangGraphVisitor) enrich(task *domain.Task, span *domain.Span, ctx *ports.TraversalContext) {
	if span.Name == "LangGraph" {
		task.AddTag(domain.TaskTagComplex)
	}
	node, _ := span.StringAttribute(attrLangGraphNode)
	if node != "" {
		task.SetAttribute(attrLangGraphNode, node)
		v.nodeToTask[nodeNameWithoutPrefix(node)] = task
	}
	if step, ok := floatAttribute(span.RawAttributes, attrLangGraphStep); ok {
		task.SetMetric(attrLangGraphStep, step)
	}
	if input, ok := span.RawAttributes[attrTraceloopInput]; ok {
		task.Input.Data = NormalizeValue(input)
	}
	if output, ok := span.RawAttributes[attrTraceloopOutput]; ok {
		task.Output.Data = NormalizeValue(output)
	}

	// Triggers carry the upstream node names ("branch:to:node" forms
	// included); each resolved upstream task becomes a prerequisite.
	if triggers, ok := span.RawAttributes[attrLangGraphTriggers]; ok {
		for _, trigger := range stringList(triggers) {
			upstream := v.nodeToTask[nodeNameWithoutPrefix(trigger)]
			if upstream != nil && upstream != task {
				task.DependentIDs = appendUnique(task.DependentIDs, upstream.ElementID)
			}
		}
	}
}

// detectSiblingDependencies only fills gaps: nodes without trigger edges
// fall back to timing order.
func (v *LangGraphVisitor) detectSiblingDependencies(root *domain.Task, ctx *ports.TraversalContext) {
	children := ctx.ChildrenByParent[root.ElementID]
	for i := 1; i < len(children); i++ {
		current := children[i]
		if len(current.DependentIDs) > 0 {
			continue
		}
		previous := children[i-1]
		if previous.EndTime.After(current.StartTime) {
			continue
		}
		current.DependentIDs = appendUnique(current.DependentIDs, previous.ElementID)
	}
}

// nodeNameWithoutPrefix strips router prefixes like "branch:to:validate".
func nodeNameWithoutPrefix(name string) string {
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
