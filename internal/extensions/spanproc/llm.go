package spanproc

import (
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// tokenAttributeMap resolves the canonical token metrics from the several
// gen_ai.usage.* spellings emitted by instrumentation SDKs; the first
// present key wins.
var tokenAttributeMap = map[string][]string{
	attrInputTokens: {
		"gen_ai.usage.input_tokens",
		"gen_ai.usage.prompt_tokens",
	},
	attrOutputTokens: {
		"gen_ai.usage.output_tokens",
		"gen_ai.usage.completion_tokens",
	},
	attrTotalTokens: {
		"gen_ai.usage.total_tokens",
	},
}

// LLMTaskVisitor extracts tasks from generic instrumentation spans: LLM
// invocations (names ending in .chat or listed in the known call table)
// and bare tool executions (names ending in .tool). LLM tasks get
// prompts, completions and token usage from the gen_ai.* conventions.
type LLMTaskVisitor struct {
	*baseTaskVisitor
}

func NewLLMTaskVisitor() *LLMTaskVisitor {
	v := &LLMTaskVisitor{}
	v.baseTaskVisitor = newBaseTaskVisitor(visitorNameLLM, v)
	return v
}

func isLLMSpan(span *domain.Span) bool {
	return strings.HasSuffix(span.Name, chatSuffix) || llmCallSpanNames[span.Name]
}

func isToolSpan(span *domain.Span) bool {
	return strings.HasSuffix(span.Name, toolSuffix)
}

func (v *LLMTaskVisitor) isFrameworkSpan(span *domain.Span) bool {
	return isLLMSpan(span) || isToolSpan(span)
}

func (v *LLMTaskVisitor) shouldCreateTask(span *domain.Span) bool {
	return v.isFrameworkSpan(span)
}

func (v *LLMTaskVisitor) createBasicTask(span *domain.Span) *domain.Task {
	task := skeletonTask(span)
	if isLLMSpan(span) {
		task.TaskKind = domain.TaskKindLLM
	} else {
		task.TaskKind = domain.TaskKindTool
		task.Name = strings.TrimSuffix(task.Name, toolSuffix)
	}
	return task
}

func (v *LLMTaskVisitor) enrich(task *domain.Task, span *domain.Span, ctx *ports.TraversalContext) {
	if isToolSpan(span) {
		task.AddTag(domain.TaskTagToolCall)
		for key, value := range collectPrefixed(span.RawAttributes, "traceloop.") {
			task.SetAttribute(key, value)
		}
		return
	}
	task.AddTag(domain.TaskTagLLMCall)

	prompts := collectPrefixed(span.RawAttributes, attrPromptPrefix)
	completions := collectPrefixed(span.RawAttributes, attrCompletionPrefix)

	// Prompt/completion events supplement attribute-carried content.
	for _, event := range span.Events {
		switch event.Name {
		case eventGenAIPrompt:
			for k, val := range event.Attributes {
				prompts[k] = val
			}
		case eventGenAICompletion:
			for k, val := range event.Attributes {
				completions[k] = val
			}
		}
	}
	if len(prompts) > 0 {
		task.Input.Data = NormalizeValue(prompts)
	}
	if len(completions) > 0 {
		task.Output.Data = NormalizeValue(completions)
	}

	for metric, keys := range tokenAttributeMap {
		for _, key := range keys {
			if value, ok := floatAttribute(span.RawAttributes, key); ok {
				task.SetMetric(metric, value)
				break
			}
		}
	}

	if model, ok := span.StringAttribute(attrRequestModel); ok {
		task.SetAttribute(attrRequestModel, model)
	}
	if model, ok := span.StringAttribute(attrResponseModel); ok {
		task.SetAttribute(attrResponseModel, model)
	}
	for key, value := range collectPrefixed(span.RawAttributes, attrUsagePrefix) {
		task.SetAttribute(key, value)
	}
}

func (v *LLMTaskVisitor) detectSiblingDependencies(root *domain.Task, ctx *ports.TraversalContext) {
	connectConsecutiveSiblings(root, ctx)
}

// skeletonTask builds the canonical task shared by the non-manual
// visitors: id derived from the span id, root set to the trace, name
// stripped of the task suffix, and the log reference back to the span.
func skeletonTask(span *domain.Span) *domain.Task {
	task := domain.NewTask("task_"+span.Context.SpanID, span.Context.TraceID)
	task.Name = strings.TrimSuffix(span.Name, taskSuffix)
	task.StartTime = span.StartTime
	task.EndTime = span.EndTime
	task.LogReference = domain.LogReference{
		TraceID:      span.Context.TraceID,
		SpanID:       span.Context.SpanID,
		ParentSpanID: span.ParentID,
	}
	if span.Status.Code == domain.SpanStatusError {
		task.Status = domain.TaskStatusFailure
	} else if span.Status.Code == domain.SpanStatusOK {
		task.Status = domain.TaskStatusSuccess
	}
	return task
}

func collectPrefixed(attrs map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for key, value := range attrs {
		if strings.HasPrefix(key, prefix) {
			out[key] = value
		}
	}
	return out
}
