package spanproc

import (
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// VectorDBVisitor extracts retrieval tasks from vector store client
// spans, detected by span kind plus service-name patterns.
type VectorDBVisitor struct {
	*baseTaskVisitor
}

func NewVectorDBVisitor() *VectorDBVisitor {
	v := &VectorDBVisitor{}
	v.baseTaskVisitor = newBaseTaskVisitor(visitorNameVectorDB, v)
	return v
}

func (v *VectorDBVisitor) isFrameworkSpan(span *domain.Span) bool {
	if span.SpanKind != domain.SpanKindClient && span.SpanKind != domain.SpanKindInternal {
		return false
	}
	name := strings.ToLower(span.Name)
	service := strings.ToLower(span.ServiceName())
	if langtrace, ok := span.StringAttribute(attrLangtraceService); ok {
		service = strings.ToLower(langtrace)
	}
	for _, pattern := range vectorDBServiceNames {
		if strings.Contains(service, pattern) || strings.HasPrefix(name, pattern+".") {
			return true
		}
	}
	return false
}

func (v *VectorDBVisitor) shouldCreateTask(span *domain.Span) bool {
	return v.isFrameworkSpan(span)
}

func (v *VectorDBVisitor) createBasicTask(span *domain.Span) *domain.Task {
	task := skeletonTask(span)
	task.TaskKind = domain.TaskKindVectorDB
	return task
}

func (v *VectorDBVisitor) enrich(task *domain.Task, span *domain.Span, ctx *ports.TraversalContext) {
	task.AddTag(domain.TaskTagDBCall)
	for key, value := range collectPrefixed(span.RawAttributes, "db.") {
		task.SetAttribute(key, value)
	}
}

func (v *VectorDBVisitor) detectSiblingDependencies(root *domain.Task, ctx *ports.TraversalContext) {
	connectConsecutiveSiblings(root, ctx)
}
