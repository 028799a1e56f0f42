package spanproc

import (
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// rootActionCodeID is the synthetic code identity assigned to root tasks
// with no reported action. It is never deduplicated across traces.
const rootActionCodeID = "main"

// ActionRegistry collapses equal code identities into a canonical action.
// The process-wide implementation is shared across concurrently processed
// traces.
type ActionRegistry interface {
	Canonical(candidate *domain.Action) *domain.Action
}

// ActionVisitor runs after the task visitors and synthesizes the Action
// entities: manual gen_ai.action.* reports, constant identities for
// well-known span names, and generated actions for every span that became
// a task. Task action references are rewritten to the canonical instance.
type ActionVisitor struct {
	shared ActionRegistry
	local  map[string]*domain.Action
	order  []string
}

func NewActionVisitor(shared ActionRegistry) *ActionVisitor {
	return &ActionVisitor{shared: shared, local: make(map[string]*domain.Action)}
}

func (v *ActionVisitor) Name() string { return visitorNameActions }

// ShouldProcess: actions are created for spans which were transformed into
// tasks or which carry a manual action report.
func (v *ActionVisitor) ShouldProcess(span *domain.Span, ctx *ports.TraversalContext) bool {
	return ctx.Processed[span.Context.SpanID] || v.isActionSpan(span)
}

func (v *ActionVisitor) Process(span *domain.Span, phase ports.VisitPhase, ctx *ports.TraversalContext) error {
	if phase != ports.BeforeChildren {
		return nil
	}

	var action *domain.Action
	switch {
	case v.isActionSpan(span):
		action = v.extractManualAction(span)
	default:
		if known, ok := knownSpanNames[span.Name]; ok {
			action = domain.NewAction("", known.codeID, span.Name)
			action.Description = known.codeID
			action.InputSchema = known.inputSchema
			action.OutputSchema = known.outputSchema
			action.ActionKind = domain.ActionKind(known.kind)
			action.IsGenerated = false
		} else {
			action = v.generatedAction(span)
		}
	}

	action = v.dedupe(action)

	if task := ctx.SpanIDToTask[span.Context.SpanID]; task != nil && task.ActionID == "" {
		task.ActionID = action.ElementID
	}
	return nil
}

// AfterTraversal assigns the synthetic root action, publishes the action
// list, and flattens the extracted tasks into the context result map.
func (v *ActionVisitor) AfterTraversal(ctx *ports.TraversalContext) error {
	v.addActionForRootTasks(ctx)

	actions := make([]*domain.Action, 0, len(v.order))
	for _, codeID := range v.order {
		actions = append(actions, v.local[codeID])
	}
	ctx.Actions = actions

	for _, task := range ctx.SpanIDToTask {
		ctx.Tasks[task.ElementID] = task
	}
	return nil
}

// addActionForRootTasks gives parentless tasks without an action the
// synthetic "main" identity.
func (v *ActionVisitor) addActionForRootTasks(ctx *ports.TraversalContext) {
	for _, task := range ctx.SpanIDToTask {
		if task.ParentID != "" || task.ActionID != "" {
			continue
		}
		if !strings.HasSuffix(task.Name, rootSuffix) && len(ctx.ChildrenByParent[task.ElementID]) == 0 {
			continue
		}
		rootAction := domain.NewAction("", rootActionCodeID, task.Name)
		rootAction.Description = task.Name
		rootAction.InputSchema = domain.SchemaUnknown
		rootAction.OutputSchema = domain.SchemaUnknown
		rootAction.IsGenerated = true
		rootAction = v.dedupeLocal(rootAction)
		task.ActionID = rootAction.ElementID
	}
}

func (v *ActionVisitor) isActionSpan(span *domain.Span) bool {
	return span.HasAttribute(attrActionID) || span.HasAttribute(attrActionCodeID)
}

// extractManualAction reads a gen_ai.action.* report off the span.
func (v *ActionVisitor) extractManualAction(span *domain.Span) *domain.Action {
	attrs := span.RawAttributes

	elementID, _ := span.StringAttribute(attrActionID)
	codeID, _ := span.StringAttribute(attrActionCodeID)
	if codeID == "" {
		codeID = domain.SchemaUnknown
	}
	name, _ := span.StringAttribute(attrActionName)
	if name == "" {
		name = span.Name
	}

	action := domain.NewAction(elementID, codeID, name)
	action.Language, _ = span.StringAttribute(attrActionCodeLanguage)
	action.InputSchema = stringOr(attrs[attrActionInputSchema], domain.SchemaUnknown)
	action.OutputSchema = stringOr(attrs[attrActionOutputSchema], domain.SchemaUnknown)
	action.Description = stringOr(attrs[attrActionDescription], domain.SchemaUnknown)
	if generated, ok := attrs[attrActionIsGenerated].(bool); ok {
		action.IsGenerated = generated
	}
	return action
}

// generatedAction synthesizes the identity of an unknown span: the code
// id is the span name stripped of instrumentation suffixes, the kind is
// inferred from the span's shape.
func (v *ActionVisitor) generatedAction(span *domain.Span) *domain.Action {
	codeID := span.Name
	for _, suffix := range []string{toolSuffix, taskSuffix, chatSuffix} {
		codeID = strings.TrimSuffix(codeID, suffix)
	}

	action := domain.NewAction("", codeID, span.Name)
	action.Description = span.Name
	action.InputSchema = domain.SchemaUnknown
	action.OutputSchema = domain.SchemaUnknown
	action.IsGenerated = true
	action.ActionKind = v.actionKind(span)
	return action
}

// actionKind infers the action kind from the langfuse observation type or
// the instrumentation name suffix.
func (v *ActionVisitor) actionKind(span *domain.Span) domain.ActionKind {
	if observation, ok := span.StringAttribute(attrLangfuseObservationType); ok {
		switch observation {
		case langfuseObsGeneration, langfuseObsAgent:
			return domain.ActionKindLLM
		case langfuseObsRetriever:
			return domain.ActionKindVectorDB
		case langfuseObsTool:
			return domain.ActionKindTool
		case langfuseObsGuardrail:
			return domain.ActionKindGuardrail
		}
	}
	switch {
	case strings.HasSuffix(span.Name, toolSuffix):
		return domain.ActionKindTool
	case strings.HasSuffix(span.Name, chatSuffix), llmCallSpanNames[span.Name]:
		return domain.ActionKindLLM
	}
	return domain.ActionKindOther
}

// dedupe collapses the candidate through the shared registry (except the
// synthetic root identity) and tracks it locally for this trace.
func (v *ActionVisitor) dedupe(action *domain.Action) *domain.Action {
	if v.shared != nil && action.CodeID != rootActionCodeID {
		action = v.shared.Canonical(action)
	}
	return v.dedupeLocal(action)
}

func (v *ActionVisitor) dedupeLocal(action *domain.Action) *domain.Action {
	if existing, ok := v.local[action.CodeID]; ok {
		return existing
	}
	v.local[action.CodeID] = action
	v.order = append(v.order, action.CodeID)
	return action
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
