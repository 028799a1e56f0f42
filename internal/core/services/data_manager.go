package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// DataManager implements ports.DataManager on top of a Store backend.
// One instance serves one tenant.
type DataManager struct {
	store  ports.Store
	logger *slog.Logger
}

// NewDataManager wraps the given store.
func NewDataManager(store ports.Store, logger *slog.Logger) *DataManager {
	return &DataManager{store: store, logger: logger}
}

func (m *DataManager) Store(ctx context.Context, element domain.Element) (string, error) {
	return m.store.Store(ctx, element, ports.TypeInfo{Kind: element.Kind()})
}

func (m *DataManager) BulkStore(ctx context.Context, elements []domain.Element, ignoreDuplicates bool) ([]string, error) {
	// Group by kind so each batch lands in its own collection.
	byKind := make(map[domain.ElementKind][]domain.Element)
	var order []domain.ElementKind
	for _, e := range elements {
		if _, seen := byKind[e.Kind()]; !seen {
			order = append(order, e.Kind())
		}
		byKind[e.Kind()] = append(byKind[e.Kind()], e)
	}

	var ids []string
	for _, kind := range order {
		stored, err := m.store.BulkStore(ctx, byKind[kind], ports.TypeInfo{Kind: kind}, ignoreDuplicates)
		if err != nil {
			return ids, fmt.Errorf("bulk store %s: %w", kind.Collection(), err)
		}
		ids = append(ids, stored...)
	}
	return ids, nil
}

func (m *DataManager) GetByID(ctx context.Context, elementID string, kind domain.ElementKind, tag string) (domain.Element, error) {
	out := domain.NewElementOfKind(kind)
	if out == nil {
		return nil, fmt.Errorf("unknown element kind %q", kind)
	}
	found, err := m.store.Retrieve(ctx, "element_id", elementID, ports.TypeInfo{Kind: kind, Tag: tag}, out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return out, nil
}

func (m *DataManager) Delete(ctx context.Context, elementID string, kind domain.ElementKind, tag string) error {
	_, err := m.store.Delete(ctx, "element_id", elementID, ports.TypeInfo{Kind: kind, Tag: tag})
	return err
}

func (m *DataManager) GetChildren(ctx context.Context, rootID string, childKind domain.ElementKind, tag string) ([]domain.Element, error) {
	return m.searchElements(ctx, childKind, domain.Query{"root_id": domain.Eq(rootID)}, tag)
}

func (m *DataManager) GetChildrenForList(ctx context.Context, rootIDs []string, childKind domain.ElementKind) ([]domain.Element, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	return m.searchElements(ctx, childKind, domain.Query{"root_id": domain.In(rootIDs)}, "")
}

func (m *DataManager) GetTrace(ctx context.Context, traceID string) (*domain.Trace, error) {
	elem, err := m.GetByID(ctx, traceID, domain.KindTrace, "")
	if err != nil || elem == nil {
		return nil, err
	}
	return elem.(*domain.Trace), nil
}

func (m *DataManager) GetSpans(ctx context.Context, traceID string) ([]*domain.Span, error) {
	var spans []domain.Span
	query := domain.Query{"context.trace_id": domain.Eq(traceID)}
	if err := m.store.Search(ctx, query, ports.TypeInfo{Kind: domain.KindSpan}, &spans); err != nil {
		return nil, err
	}
	out := make([]*domain.Span, len(spans))
	for i := range spans {
		out[i] = &spans[i]
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].Context.SpanID < out[j].Context.SpanID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (m *DataManager) GetTasksForTrace(ctx context.Context, traceID string) ([]*domain.Task, error) {
	var tasks []domain.Task
	query := domain.Query{"root_id": domain.Eq(traceID)}
	if err := m.store.Search(ctx, query, ports.TypeInfo{Kind: domain.KindTask}, &tasks); err != nil {
		return nil, err
	}
	out := make([]*domain.Task, len(tasks))
	for i := range tasks {
		out[i] = &tasks[i]
	}
	return out, nil
}

func (m *DataManager) GetTraces(ctx context.Context, serviceName string, from time.Time, to *time.Time) ([]*domain.Trace, error) {
	query := domain.Query{
		"service_name": domain.Eq(serviceName),
		"start_time":   domain.Gte(from.UTC()),
	}
	if to != nil {
		query["end_time"] = domain.Lte(to.UTC())
	}
	var traces []domain.Trace
	if err := m.store.Search(ctx, query, ports.TypeInfo{Kind: domain.KindTrace}, &traces); err != nil {
		return nil, err
	}
	out := make([]*domain.Trace, len(traces))
	for i := range traces {
		out[i] = &traces[i]
	}
	return out, nil
}

func (m *DataManager) GetTraceGroups(ctx context.Context, serviceName string) ([]*domain.TraceGroup, error) {
	var groups []domain.TraceGroup
	query := domain.Query{"service_name": domain.Eq(serviceName)}
	if err := m.store.Search(ctx, query, ports.TypeInfo{Kind: domain.KindTraceGroup}, &groups); err != nil {
		return nil, err
	}
	out := make([]*domain.TraceGroup, len(groups))
	for i := range groups {
		out[i] = &groups[i]
	}
	return out, nil
}

func (m *DataManager) GetTracesForTraceGroup(ctx context.Context, traceGroupID string) ([]*domain.Trace, error) {
	group, err := m.GetByID(ctx, traceGroupID, domain.KindTraceGroup, "")
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("%w: trace group %s", domain.ErrNotFound, traceGroupID)
	}
	tg := group.(*domain.TraceGroup)
	if len(tg.TracesIDs) == 0 {
		return nil, nil
	}
	var traces []domain.Trace
	query := domain.Query{"element_id": domain.In(tg.TracesIDs)}
	if err := m.store.Search(ctx, query, ports.TypeInfo{Kind: domain.KindTrace}, &traces); err != nil {
		return nil, err
	}
	out := make([]*domain.Trace, len(traces))
	for i := range traces {
		out[i] = &traces[i]
	}
	return out, nil
}

// GetRelatedElements follows the related_to list forward: it loads the
// element, then fetches each referenced peer using the recorded type.
func (m *DataManager) GetRelatedElements(ctx context.Context, elementID string, kind domain.ElementKind) ([]domain.Element, error) {
	elem, err := m.GetByID(ctx, elementID, kind, "")
	if err != nil {
		return nil, err
	}
	if elem == nil {
		return nil, nil
	}
	h := elem.Header()
	if len(h.RelatedToIDs) != len(h.RelatedToTypes) {
		return nil, domain.ErrRelatedMismatch
	}
	var out []domain.Element
	for i, id := range h.RelatedToIDs {
		peer, err := m.GetByID(ctx, id, h.RelatedToTypes[i], "")
		if err != nil {
			return nil, err
		}
		if peer != nil {
			out = append(out, peer)
		}
	}
	return out, nil
}

// GetElementsRelatedToArtifact answers the backward query "which elements
// list this artifact as related?" across every kind that can carry
// relations.
func (m *DataManager) GetElementsRelatedToArtifact(ctx context.Context, artifact domain.Element) ([]domain.Element, error) {
	kinds := []domain.ElementKind{
		domain.KindMetric, domain.KindIssue, domain.KindAnnotation,
		domain.KindRecommendation, domain.KindWorkflow, domain.KindTask,
	}
	var out []domain.Element
	for _, kind := range kinds {
		elems, err := m.GetElementsRelatedToArtifactAndType(ctx, artifact, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, elems...)
	}
	return out, nil
}

// GetElementsRelatedToArtifactAndType answers the backward query "who
// lists me as related?" for one target kind. Only the target kind's
// collection is searched, matching on related_to_ids; related_to_types is
// not consulted.
func (m *DataManager) GetElementsRelatedToArtifactAndType(ctx context.Context, artifact domain.Element, targetKind domain.ElementKind) ([]domain.Element, error) {
	query := domain.Query{
		"related_to_ids": domain.Contains(artifact.Header().ElementID),
	}
	return m.searchElements(ctx, targetKind, query, "")
}

func (m *DataManager) Search(ctx context.Context, kind domain.ElementKind, query domain.Query, tag string) ([]domain.Element, error) {
	return m.searchElements(ctx, kind, query, tag)
}

func (m *DataManager) StoreTraceLogs(ctx context.Context, source io.Reader) ([]*domain.Trace, error) {
	spans, err := ParseTraceLog(source)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, nil
	}
	traces := TracesFromSpans(spans)

	spanElems := make([]domain.Element, len(spans))
	for i, s := range spans {
		spanElems[i] = s
	}
	if _, err := m.store.BulkStore(ctx, spanElems, ports.TypeInfo{Kind: domain.KindSpan}, true); err != nil {
		return nil, fmt.Errorf("store spans: %w", err)
	}
	traceElems := make([]domain.Element, len(traces))
	for i, t := range traces {
		traceElems[i] = t
	}
	if _, err := m.store.BulkStore(ctx, traceElems, ports.TypeInfo{Kind: domain.KindTrace}, true); err != nil {
		return nil, fmt.Errorf("store traces: %w", err)
	}
	m.logger.Info("imported trace logs", "spans", len(spans), "traces", len(traces))
	return traces, nil
}

// searchElements runs a query for one kind and boxes the typed results.
func (m *DataManager) searchElements(ctx context.Context, kind domain.ElementKind, query domain.Query, tag string) ([]domain.Element, error) {
	proto := domain.NewElementOfKind(kind)
	if proto == nil {
		return nil, fmt.Errorf("unknown element kind %q", kind)
	}

	// Kinds sharing a collection (the workflow family) are told apart by
	// the type discriminator.
	typed := make(domain.Query, len(query)+1)
	for k, v := range query {
		typed[k] = v
	}
	typed["type"] = domain.Eq(string(kind))

	elemType := reflect.TypeOf(proto).Elem()
	slicePtr := reflect.New(reflect.SliceOf(elemType))
	if err := m.store.Search(ctx, typed, ports.TypeInfo{Kind: kind, Tag: tag}, slicePtr.Interface()); err != nil {
		return nil, err
	}

	sliceVal := slicePtr.Elem()
	out := make([]domain.Element, 0, sliceVal.Len())
	for i := 0; i < sliceVal.Len(); i++ {
		elem, ok := sliceVal.Index(i).Addr().Interface().(domain.Element)
		if !ok {
			return nil, fmt.Errorf("kind %q does not decode to an element", kind)
		}
		// Elements whose payload lost the discriminator are filtered here,
		// keeping back-queries over heterogeneous collections honest.
		if elem.Header().Type != "" && elem.Header().Type != kind {
			continue
		}
		out = append(out, elem)
	}
	return out, nil
}
