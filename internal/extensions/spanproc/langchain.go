package spanproc

import (
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// LangChainVisitor extracts tasks from LangChain/traceloop-instrumented
// spans (workflow, task, and tool entities).
type LangChainVisitor struct {
	*baseTaskVisitor
}

func NewLangChainVisitor() *LangChainVisitor {
	v := &LangChainVisitor{}
	v.baseTaskVisitor = newBaseTaskVisitor(visitorNameLangChain, v)
	return v
}

func (v *LangChainVisitor) isFrameworkSpan(span *domain.Span) bool {
	if span.HasAttribute(attrLangChainVersion) {
		return true
	}
	if service, ok := span.StringAttribute(attrLangtraceService); ok && strings.EqualFold(service, "langchain") {
		return true
	}
	if strings.EqualFold(span.ServiceName(), "langchain") {
		return true
	}
	// Traceloop entities outside a langgraph context are langchain spans.
	if span.HasAttribute(attrTraceloopKind) && !span.HasAttribute(attrLangGraphNode) {
		return true
	}
	return false
}

func (v *LangChainVisitor) shouldCreateTask(span *domain.Span) bool {
	kind, _ := span.StringAttribute(attrTraceloopKind)
	switch kind {
	case "workflow", "task", "tool", "agent":
		return true
	case "":
		// Spans without an entity kind still become tasks when they carry
		// entity input/output.
		return span.HasAttribute(attrTraceloopInput) || span.HasAttribute(attrTraceloopOutput)
	}
	return false
}

func (v *LangChainVisitor) createBasicTask(span *domain.Span) *domain.Task {
	return skeletonTask(span)
}

func (v *LangChainVisitor) enrich(task *domain.Task, span *domain.Span, ctx *ports.TraversalContext) {
	kind, _ := span.StringAttribute(attrTraceloopKind)
	switch kind {
	case "workflow", "agent":
		task.AddTag(domain.TaskTagComplex)
	case "tool":
		task.AddTag(domain.TaskTagToolCall)
		task.TaskKind = domain.TaskKindTool
	}

	if entity, ok := span.StringAttribute(attrTraceloopEntity); ok && entity != "" {
		task.Name = entity
	}
	if workflow, ok := span.StringAttribute(attrTraceloopWorkflow); ok {
		task.SetAttribute(attrTraceloopWorkflow, workflow)
	}
	if input, ok := span.RawAttributes[attrTraceloopInput]; ok {
		task.Input.Data = NormalizeValue(input)
	}
	if output, ok := span.RawAttributes[attrTraceloopOutput]; ok {
		task.Output.Data = NormalizeValue(output)
	}
}

func (v *LangChainVisitor) detectSiblingDependencies(root *domain.Task, ctx *ports.TraversalContext) {
	connectConsecutiveSiblings(root, ctx)
}
