package spanproc

import (
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// httpSpanNames are transport spans a Langfuse trace carries that never
// become tasks.
var httpSpanNames = map[string]bool{
	"POST": true, "GET": true, "PUT": true, "DELETE": true, "PATCH": true,
}

// LangfuseVisitor extracts tasks from Langfuse observations, mapping
// observation types onto canonical task tags.
type LangfuseVisitor struct {
	*baseTaskVisitor
}

func NewLangfuseVisitor() *LangfuseVisitor {
	v := &LangfuseVisitor{}
	v.baseTaskVisitor = newBaseTaskVisitor(visitorNameLangfuse, v)
	return v
}

var langfuseObservationToTag = map[string]string{
	langfuseObsGeneration: domain.TaskTagLLMCall,
	langfuseObsTool:       domain.TaskTagToolCall,
	langfuseObsRetriever:  domain.TaskTagDBCall,
	langfuseObsAgent:      domain.TaskTagAgent,
}

func (v *LangfuseVisitor) isFrameworkSpan(span *domain.Span) bool {
	if span.HasAttribute(attrLangfuseObservationType) {
		return true
	}
	sdk, _ := span.StringAttribute(attrLangfuseSDKName)
	return strings.Contains(strings.ToLower(sdk), "langfuse")
}

func (v *LangfuseVisitor) shouldCreateTask(span *domain.Span) bool {
	return !httpSpanNames[span.Name]
}

func (v *LangfuseVisitor) createBasicTask(span *domain.Span) *domain.Task {
	return skeletonTask(span)
}

func (v *LangfuseVisitor) enrich(task *domain.Task, span *domain.Span, ctx *ports.TraversalContext) {
	observationType, _ := span.StringAttribute(attrLangfuseObservationType)
	if observationType == "" {
		observationType = langfuseObsSpan
	}
	if tag, ok := langfuseObservationToTag[observationType]; ok {
		task.AddTag(tag)
	} else {
		task.AddTag(domain.TaskTagToolCall)
	}
	task.SetAttribute(attrLangfuseObservationType, observationType)

	if input, ok := span.RawAttributes["langfuse.observation.input"]; ok {
		task.Input.Data = NormalizeValue(input)
	}
	if output, ok := span.RawAttributes["langfuse.observation.output"]; ok {
		task.Output.Data = NormalizeValue(output)
	}

	if observationType == langfuseObsGeneration {
		task.TaskKind = domain.TaskKindLLM
		v.extractUsage(task, span)
	}
}

// extractUsage reads the langfuse usage_details payload into the token
// metrics.
func (v *LangfuseVisitor) extractUsage(task *domain.Task, span *domain.Span) {
	usage := anyMap(span.RawAttributes[attrLangfuseUsageDetails])
	if usage == nil {
		return
	}
	if value, ok := floatAttribute(usage, "input"); ok {
		task.SetMetric(attrInputTokens, value)
	}
	if value, ok := floatAttribute(usage, "output"); ok {
		task.SetMetric(attrOutputTokens, value)
	}
	if value, ok := floatAttribute(usage, "total"); ok {
		task.SetMetric(attrTotalTokens, value)
	}
}

func (v *LangfuseVisitor) detectSiblingDependencies(root *domain.Task, ctx *ports.TraversalContext) {
	connectConsecutiveSiblings(root, ctx)
}
