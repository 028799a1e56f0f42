package ports

import (
	"context"
	"io"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

// TypeInfo tells a store which collection a value belongs to and which
// element kind it decodes into. Tag optionally narrows the storage
// partition that is searched; the empty tag means all partitions.
type TypeInfo struct {
	Kind domain.ElementKind
	Tag  string
}

// Collection returns the backing collection, including the tag suffix when
// a partition tag is set.
func (t TypeInfo) Collection() string {
	base := t.Kind.Collection()
	if t.Tag == "" {
		return base
	}
	return base + "_" + t.Tag
}

// Store abstracts the concrete persistence backend (document DB, SQL
// engine, in-memory). Values are domain elements; out parameters follow
// the pointer-to-slice decoding convention.
//
// A missing record is not an error: Retrieve decodes nothing and returns
// found=false. Backend outages surface as transport errors untouched; the
// store performs no retries.
type Store interface {
	// Store persists one value and returns its element id.
	Store(ctx context.Context, value domain.Element, info TypeInfo) (string, error)

	// Retrieve loads the value whose idField equals idValue into out.
	Retrieve(ctx context.Context, idField, idValue string, info TypeInfo, out domain.Element) (bool, error)

	// Search returns all values matching the query. out must be a pointer
	// to a slice of the concrete element type.
	Search(ctx context.Context, query domain.Query, info TypeInfo, out any) error

	// Update replaces the value whose idField equals idValue. Returns
	// whether a record was replaced.
	Update(ctx context.Context, idField, idValue string, value domain.Element, info TypeInfo) (bool, error)

	// Delete removes the value whose idField equals idValue. Returns
	// whether a record was removed.
	Delete(ctx context.Context, idField, idValue string, info TypeInfo) (bool, error)

	// BulkStore persists values with per-item isolation: one failure does
	// not corrupt the others. With ignoreDuplicates set, duplicate ids are
	// skipped and the returned list contains only the stored ids.
	BulkStore(ctx context.Context, values []domain.Element, info TypeInfo, ignoreDuplicates bool) ([]string, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// DataManager is the domain-level persistence contract every plugin and
// the engine consume. One instance per tenant.
type DataManager interface {
	Store(ctx context.Context, element domain.Element) (string, error)
	BulkStore(ctx context.Context, elements []domain.Element, ignoreDuplicates bool) ([]string, error)

	// GetByID returns nil (no error) when the element does not exist.
	GetByID(ctx context.Context, elementID string, kind domain.ElementKind, tag string) (domain.Element, error)
	Delete(ctx context.Context, elementID string, kind domain.ElementKind, tag string) error

	// Ownership traversal.
	GetChildren(ctx context.Context, rootID string, childKind domain.ElementKind, tag string) ([]domain.Element, error)
	GetChildrenForList(ctx context.Context, rootIDs []string, childKind domain.ElementKind) ([]domain.Element, error)

	// Trace-shaped lookups.
	GetTrace(ctx context.Context, traceID string) (*domain.Trace, error)
	GetSpans(ctx context.Context, traceID string) ([]*domain.Span, error)
	GetTasksForTrace(ctx context.Context, traceID string) ([]*domain.Task, error)
	GetTraces(ctx context.Context, serviceName string, from time.Time, to *time.Time) ([]*domain.Trace, error)
	GetTraceGroups(ctx context.Context, serviceName string) ([]*domain.TraceGroup, error)
	GetTracesForTraceGroup(ctx context.Context, traceGroupID string) ([]*domain.Trace, error)

	// Relation traversal: forward follows an element's related_to list,
	// backward finds the elements that list the artifact as related.
	GetRelatedElements(ctx context.Context, elementID string, kind domain.ElementKind) ([]domain.Element, error)
	GetElementsRelatedToArtifact(ctx context.Context, artifact domain.Element) ([]domain.Element, error)
	GetElementsRelatedToArtifactAndType(ctx context.Context, artifact domain.Element, targetKind domain.ElementKind) ([]domain.Element, error)

	Search(ctx context.Context, kind domain.ElementKind, query domain.Query, tag string) ([]domain.Element, error)

	// StoreTraceLogs parses a trace log stream and persists the contained
	// spans plus synthesized traces.
	StoreTraceLogs(ctx context.Context, source io.Reader) ([]*domain.Trace, error)
}

// VisitPhase selects the traversal phase a processor is invoked in.
type VisitPhase int

const (
	BeforeChildren VisitPhase = iota
	AfterChildren
)

// SpanProcessor is a span-tree visitor executed in two phases per node.
// Errors returned from Process are logged and traversal continues.
type SpanProcessor interface {
	Name() string
	ShouldProcess(span *domain.Span, ctx *TraversalContext) bool
	Process(span *domain.Span, phase VisitPhase, ctx *TraversalContext) error
	AfterTraversal(ctx *TraversalContext) error
}

// TraversalContext is the state shared by all processors during one
// span-tree traversal.
type TraversalContext struct {
	// SpanMap indexes the traversed spans by span id.
	SpanMap map[string]*domain.Span

	// LastParents is the stack of ancestor tasks currently in scope.
	LastParents []*domain.Task

	// SpanIDToTask maps span ids to the tasks extracted from them.
	SpanIDToTask map[string]*domain.Task

	// Tasks collects the finalized tasks keyed by element id.
	Tasks map[string]*domain.Task

	// Actions collects the deduplicated actions of this traversal.
	Actions []*domain.Action

	// Processed marks span ids already transformed into tasks, so later
	// processors (actions) can tell extracted spans apart.
	Processed map[string]bool

	// ChildrenByParent records extracted child tasks per parent task id,
	// in visit order, for sibling dependency detection.
	ChildrenByParent map[string][]*domain.Task
}

// NewTraversalContext returns an initialized context.
func NewTraversalContext() *TraversalContext {
	return &TraversalContext{
		SpanMap:          make(map[string]*domain.Span),
		SpanIDToTask:     make(map[string]*domain.Task),
		Tasks:            make(map[string]*domain.Task),
		Processed:        make(map[string]bool),
		ChildrenByParent: make(map[string][]*domain.Task),
	}
}

// CurrentParent returns the innermost in-scope task, or nil at top level.
func (c *TraversalContext) CurrentParent() *domain.Task {
	if len(c.LastParents) == 0 {
		return nil
	}
	return c.LastParents[len(c.LastParents)-1]
}

// PushParent enters a task scope.
func (c *TraversalContext) PushParent(t *domain.Task) {
	c.LastParents = append(c.LastParents, t)
}

// PopParent leaves the innermost task scope and returns it.
func (c *TraversalContext) PopParent() *domain.Task {
	if len(c.LastParents) == 0 {
		return nil
	}
	t := c.LastParents[len(c.LastParents)-1]
	c.LastParents = c.LastParents[:len(c.LastParents)-1]
	return t
}
