// Package spanproc walks span trees and applies the ordered chain of
// task-extraction visitors that turn raw spans into the canonical task and
// action graph.
package spanproc

import (
	"log/slog"
	"sort"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// Traverser walks the span forest depth-first and applies every registered
// processor in two phases per node. Processor errors are logged and the
// traversal continues.
type Traverser struct {
	logger     *slog.Logger
	processors []ports.SpanProcessor
	visited    map[string]bool
}

func NewTraverser(logger *slog.Logger) *Traverser {
	return &Traverser{logger: logger, visited: make(map[string]bool)}
}

// RegisterProcessor appends a processor. Registration order is the
// dispatch order within each phase.
func (t *Traverser) RegisterProcessor(p ports.SpanProcessor) {
	t.processors = append(t.processors, p)
}

// Traverse walks the span forest. Roots are spans whose parent is null or
// absent from the input set; roots and children are visited in start-time
// order with span-id tiebreaks. A visited set guards against duplicated
// span ids.
func (t *Traverser) Traverse(spans []*domain.Span, ctx *ports.TraversalContext) *ports.TraversalContext {
	if ctx == nil {
		ctx = ports.NewTraversalContext()
	}
	t.visited = make(map[string]bool)

	for _, span := range spans {
		ctx.SpanMap[span.Context.SpanID] = span
	}

	childrenMap := make(map[string][]*domain.Span)
	var roots []*domain.Span
	for _, span := range spans {
		if span.ParentID == "" || ctx.SpanMap[span.ParentID] == nil {
			roots = append(roots, span)
			continue
		}
		childrenMap[span.ParentID] = append(childrenMap[span.ParentID], span)
	}

	sortSpans(roots)
	for _, children := range childrenMap {
		sortSpans(children)
	}

	for _, root := range roots {
		t.traverseSpan(root, childrenMap, ctx)
	}

	for _, p := range t.processors {
		if err := p.AfterTraversal(ctx); err != nil {
			t.logger.Error("processor after_traversal failed", "processor", p.Name(), "error", err)
		}
	}
	return ctx
}

func (t *Traverser) traverseSpan(span *domain.Span, childrenMap map[string][]*domain.Span, ctx *ports.TraversalContext) {
	if t.visited[span.Context.SpanID] {
		return
	}
	t.visited[span.Context.SpanID] = true

	for _, p := range t.processors {
		if !p.ShouldProcess(span, ctx) {
			continue
		}
		if err := p.Process(span, ports.BeforeChildren, ctx); err != nil {
			t.logger.Warn("processor failed before children",
				"processor", p.Name(), "span", span.Name, "error", err)
		}
	}

	for _, child := range childrenMap[span.Context.SpanID] {
		t.traverseSpan(child, childrenMap, ctx)
	}

	for _, p := range t.processors {
		if !p.ShouldProcess(span, ctx) {
			continue
		}
		if err := p.Process(span, ports.AfterChildren, ctx); err != nil {
			t.logger.Warn("processor failed after children",
				"processor", p.Name(), "span", span.Name, "error", err)
		}
	}
}

func sortSpans(spans []*domain.Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].StartTime.Equal(spans[j].StartTime) {
			return spans[i].Context.SpanID < spans[j].Context.SpanID
		}
		return spans[i].StartTime.Before(spans[j].StartTime)
	})
}

// Pipeline builds the default visitor chain in its canonical order:
// manual, LLM, LangChain, LangGraph, CrewAI, vector DB, Langfuse, and the
// trailing action extractor.
func Pipeline(logger *slog.Logger, dedup ActionRegistry) *Traverser {
	t := NewTraverser(logger)
	t.RegisterProcessor(NewManualTaskVisitor())
	t.RegisterProcessor(NewLLMTaskVisitor())
	t.RegisterProcessor(NewLangChainVisitor())
	t.RegisterProcessor(NewLangGraphVisitor())
	t.RegisterProcessor(NewCrewAIVisitor())
	t.RegisterProcessor(NewVectorDBVisitor())
	t.RegisterProcessor(NewLangfuseVisitor())
	t.RegisterProcessor(NewActionVisitor(dedup))
	return t
}
