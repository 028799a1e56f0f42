package spanproc

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// recordingProcessor logs every visit for ordering assertions.
type recordingProcessor struct {
	name    string
	visits  []string
	failOn  string
	afterOK bool
}

func (p *recordingProcessor) Name() string { return p.name }

func (p *recordingProcessor) ShouldProcess(span *domain.Span, _ *ports.TraversalContext) bool {
	return true
}

func (p *recordingProcessor) Process(span *domain.Span, phase ports.VisitPhase, _ *ports.TraversalContext) error {
	tag := "before:"
	if phase == ports.AfterChildren {
		tag = "after:"
	}
	p.visits = append(p.visits, tag+span.Context.SpanID)
	if p.failOn == span.Context.SpanID {
		return assert.AnError
	}
	return nil
}

func (p *recordingProcessor) AfterTraversal(_ *ports.TraversalContext) error {
	p.afterOK = true
	return nil
}

func buildSpan(traceID, spanID, parentID, name string, start time.Time, duration time.Duration) *domain.Span {
	span := domain.NewSpan(traceID, spanID)
	span.Name = name
	span.ParentID = parentID
	span.SpanKind = domain.SpanKindInternal
	span.StartTime = start
	span.EndTime = start.Add(duration)
	return span
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func TestTraverser_ParentBeforeChildOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	spans := []*domain.Span{
		buildSpan("t1", "child-late", "root", "c2", base.Add(2*time.Second), time.Second),
		buildSpan("t1", "root", "", "r", base, 10*time.Second),
		buildSpan("t1", "child-early", "root", "c1", base.Add(time.Second), time.Second),
		buildSpan("t1", "grandchild", "child-early", "g", base.Add(1500*time.Millisecond), 100*time.Millisecond),
	}

	p := &recordingProcessor{name: "recorder"}
	traverser := NewTraverser(testLogger())
	traverser.RegisterProcessor(p)
	traverser.Traverse(spans, nil)

	// Every parent is visited strictly before its children in the before
	// phase, strictly after in the after phase; children in start order.
	assert.Equal(t, []string{
		"before:root",
		"before:child-early",
		"before:grandchild",
		"after:grandchild",
		"after:child-early",
		"before:child-late",
		"after:child-late",
		"after:root",
	}, p.visits)
	assert.True(t, p.afterOK)
}

func TestTraverser_OrphanParentIsRoot(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	spans := []*domain.Span{
		// Parent id points outside the span set: treated as a root.
		buildSpan("t1", "orphan", "missing-parent", "o", base, time.Second),
	}

	p := &recordingProcessor{name: "recorder"}
	traverser := NewTraverser(testLogger())
	traverser.RegisterProcessor(p)
	traverser.Traverse(spans, nil)

	assert.Equal(t, []string{"before:orphan", "after:orphan"}, p.visits)
}

func TestTraverser_VisitedSetPreventsReentry(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	duplicated := buildSpan("t1", "dup", "", "d", base, time.Second)
	spans := []*domain.Span{duplicated, duplicated}

	p := &recordingProcessor{name: "recorder"}
	traverser := NewTraverser(testLogger())
	traverser.RegisterProcessor(p)
	traverser.Traverse(spans, nil)

	assert.Equal(t, []string{"before:dup", "after:dup"}, p.visits)
}

func TestTraverser_ProcessorErrorDoesNotStopTraversal(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	spans := []*domain.Span{
		buildSpan("t1", "a", "", "a", base, time.Second),
		buildSpan("t1", "b", "", "b", base.Add(2*time.Second), time.Second),
	}

	failing := &recordingProcessor{name: "failing", failOn: "a"}
	trailing := &recordingProcessor{name: "trailing"}
	traverser := NewTraverser(testLogger())
	traverser.RegisterProcessor(failing)
	traverser.RegisterProcessor(trailing)
	traverser.Traverse(spans, nil)

	// The failure on span a is contained; both processors still see b.
	require.Contains(t, trailing.visits, "before:a")
	require.Contains(t, trailing.visits, "before:b")
	require.Contains(t, failing.visits, "before:b")
}

func TestTraverser_RootsSortedByStartTime(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	spans := []*domain.Span{
		buildSpan("t1", "late-root", "", "l", base.Add(time.Hour), time.Second),
		buildSpan("t1", "early-root", "", "e", base, time.Second),
	}

	p := &recordingProcessor{name: "recorder"}
	traverser := NewTraverser(testLogger())
	traverser.RegisterProcessor(p)
	traverser.Traverse(spans, nil)

	assert.Equal(t, "before:early-root", p.visits[0])
}
