package spanproc

import (
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// frameworkHooks are the points a concrete visitor customizes on top of
// the shared task-graph behavior.
type frameworkHooks interface {
	// isFrameworkSpan detects whether the span belongs to this framework.
	isFrameworkSpan(span *domain.Span) bool

	// shouldCreateTask decides whether a detected span becomes a task.
	shouldCreateTask(span *domain.Span) bool

	// createBasicTask builds the canonical task skeleton for the span.
	createBasicTask(span *domain.Span) *domain.Task

	// enrich applies framework-specific extraction to the created task.
	enrich(task *domain.Task, span *domain.Span, ctx *ports.TraversalContext)

	// detectSiblingDependencies wires prerequisite edges between the
	// children of a finished root task.
	detectSiblingDependencies(root *domain.Task, ctx *ports.TraversalContext)
}

// baseTaskVisitor implements the shared two-phase task extraction: on
// BEFORE_CHILDREN a framework span becomes a task and is pushed as the
// current parent; on AFTER_CHILDREN the scope is popped and, for root
// tasks, sibling dependency detection runs.
type baseTaskVisitor struct {
	name    string
	hooks   frameworkHooks
	created map[string]bool
}

func newBaseTaskVisitor(name string, hooks frameworkHooks) *baseTaskVisitor {
	return &baseTaskVisitor{name: name, hooks: hooks, created: make(map[string]bool)}
}

func (b *baseTaskVisitor) Name() string { return b.name }

func (b *baseTaskVisitor) ShouldProcess(span *domain.Span, _ *ports.TraversalContext) bool {
	return b.hooks.isFrameworkSpan(span)
}

func (b *baseTaskVisitor) Process(span *domain.Span, phase ports.VisitPhase, ctx *ports.TraversalContext) error {
	switch phase {
	case ports.BeforeChildren:
		b.beforeChildren(span, ctx)
	case ports.AfterChildren:
		b.afterChildren(span, ctx)
	}
	return nil
}

func (b *baseTaskVisitor) AfterTraversal(ctx *ports.TraversalContext) error {
	for _, task := range ctx.SpanIDToTask {
		ctx.Tasks[task.ElementID] = task
	}
	return nil
}

func (b *baseTaskVisitor) beforeChildren(span *domain.Span, ctx *ports.TraversalContext) {
	spanID := span.Context.SpanID

	// First match wins: spans already transformed by an earlier visitor
	// are left alone.
	if ctx.Processed[spanID] {
		return
	}
	if !b.hooks.shouldCreateTask(span) {
		return
	}

	task := b.hooks.createBasicTask(span)
	if task == nil {
		return
	}

	parent := ctx.CurrentParent()
	if parent != nil && task.ParentID == "" {
		task.ParentID = parent.ElementID
	}
	if parent != nil {
		ctx.ChildrenByParent[parent.ElementID] = append(ctx.ChildrenByParent[parent.ElementID], task)
	}

	task.AddTag(taskTagForVisitor(b.name)...)
	task.SetAttribute(attrFramework, b.name)
	b.propagateEvents(task, span, ctx)
	b.hooks.enrich(task, span, ctx)
	task.Name = strings.TrimSuffix(task.Name, taskSuffix)

	propagateTaskMetrics(task, span, ctx)

	ctx.SpanIDToTask[spanID] = task
	ctx.Processed[spanID] = true
	b.created[spanID] = true
	ctx.PushParent(task)
}

func (b *baseTaskVisitor) afterChildren(span *domain.Span, ctx *ports.TraversalContext) {
	if !b.created[span.Context.SpanID] {
		return
	}
	task := ctx.PopParent()
	if task == nil {
		return
	}
	if ctx.CurrentParent() == nil {
		b.hooks.detectSiblingDependencies(task, ctx)
	}
}

// propagateEvents copies span events onto the task and records the span
// ids carrying issue or annotation markers so later plugins can link them.
func (b *baseTaskVisitor) propagateEvents(task *domain.Task, span *domain.Span, _ *ports.TraversalContext) {
	task.Events = span.Events
	for _, event := range span.Events {
		if event.Attributes == nil {
			continue
		}
		if event.Name == eventException {
			if msg, ok := event.Attributes[attrExceptionMessage].(string); ok && msg != "" {
				task.Issues = appendUnique(task.Issues, msg)
			}
		}
		id, _ := event.Attributes[attrEventID].(string)
		if strings.HasPrefix(id, issueIDPrefix) {
			appendSpanRef(task, attrIssueSpanIDs, span.Context.SpanID)
		}
		if strings.Contains(id, annotationIDMark) {
			appendSpanRef(task, attrAnnotSpanIDs, span.Context.SpanID)
		}
	}
}

// propagateTaskMetrics stamps per-task timing and rolls LLM/tool counters
// up the ancestor stack so root tasks carry trace-level aggregates.
func propagateTaskMetrics(task *domain.Task, span *domain.Span, ctx *ports.TraversalContext) {
	if ms := span.DurationMillis(); ms > 0 {
		task.SetMetric(metricDurationMs, ms)
		task.SetMetric(metricExecTime, ms/1000)
	}

	isLLM := task.HasTag(domain.TaskTagLLMCall)
	isTool := task.HasTag(domain.TaskTagToolCall)
	inTokens := task.Metrics[attrInputTokens]
	outTokens := task.Metrics[attrOutputTokens]

	targets := make([]*domain.Task, 0, len(ctx.LastParents))
	targets = append(targets, ctx.LastParents...)
	for _, ancestor := range targets {
		if isLLM {
			ancestor.SetMetric(metricLLMCalls, ancestor.Metrics[metricLLMCalls]+1)
		}
		if isTool {
			ancestor.SetMetric(metricToolCalls, ancestor.Metrics[metricToolCalls]+1)
		}
		if inTokens > 0 {
			ancestor.SetMetric(attrInputTokens, ancestor.Metrics[attrInputTokens]+inTokens)
		}
		if outTokens > 0 {
			ancestor.SetMetric(attrOutputTokens, ancestor.Metrics[attrOutputTokens]+outTokens)
		}
	}
}

// connectConsecutiveSiblings wires the default prerequisite edges: each
// child depends on its immediately preceding sibling when that sibling
// finished before the child started; a child that overlaps its
// predecessor gets no edge.
func connectConsecutiveSiblings(root *domain.Task, ctx *ports.TraversalContext) {
	children := ctx.ChildrenByParent[root.ElementID]
	for i := 1; i < len(children); i++ {
		current := children[i]
		previous := children[i-1]
		if previous.EndTime.After(current.StartTime) {
			continue
		}
		current.DependentIDs = appendUnique(current.DependentIDs, previous.ElementID)
	}
}

func appendSpanRef(task *domain.Task, key, spanID string) {
	if task == nil {
		return
	}
	existing, _ := task.Attributes[key].([]string)
	task.SetAttribute(key, append(existing, spanID))
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

// taskTagForVisitor maps visitor names onto default task tags.
func taskTagForVisitor(name string) []string {
	switch name {
	case visitorNameManual:
		return []string{domain.TaskTagManual}
	default:
		return nil
	}
}

// Visitor display names.
const (
	visitorNameManual    = "manual task processor"
	visitorNameLLM       = "llm task processor"
	visitorNameLangChain = "langchain processor"
	visitorNameLangGraph = "langgraph processor"
	visitorNameCrewAI    = "crewai processor"
	visitorNameVectorDB  = "vector db processor"
	visitorNameLangfuse  = "langfuse processor"
	visitorNameActions   = "action processor"
)
