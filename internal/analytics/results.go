package analytics

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

var resultsInfo = ports.TypeInfo{Kind: domain.KindExecutionResult}

// ResultsManager persists and queries execution results.
type ResultsManager struct {
	store ports.Store
}

func NewResultsManager(store ports.Store) *ResultsManager {
	return &ResultsManager{store: store}
}

// StoreResult persists one execution result.
func (m *ResultsManager) StoreResult(ctx context.Context, result *ExecutionResult) (string, error) {
	return m.store.Store(ctx, result, resultsInfo)
}

// GetResultByID returns a result by its result id, or nil.
func (m *ResultsManager) GetResultByID(ctx context.Context, resultID string) (*ExecutionResult, error) {
	out := &ExecutionResult{}
	found, err := m.store.Retrieve(ctx, "result_id", resultID, resultsInfo, out)
	if err != nil || !found {
		return nil, err
	}
	return out, nil
}

// GetResultsByAnalyticsID returns results for an analytics id, optionally
// limited to results starting at or after start and ending at or before
// end.
func (m *ResultsManager) GetResultsByAnalyticsID(ctx context.Context, analyticsID string, start, end *time.Time) ([]*ExecutionResult, error) {
	query := domain.Query{"analytics_id": domain.Eq(analyticsID)}
	if start != nil {
		query["start_time"] = domain.Gte(start.UTC())
	}
	if end != nil {
		query["end_time"] = domain.Lte(end.UTC())
	}
	return m.search(ctx, query)
}

// GetResultsByTraceOrGroupID groups results of one analytics by the
// trace or group id recorded in their input data.
func (m *ResultsManager) GetResultsByTraceOrGroupID(ctx context.Context, analyticsID string, traceOrGroupIDs []string) (map[string][]*ExecutionResult, error) {
	results, err := m.search(ctx, domain.Query{"analytics_id": domain.Eq(analyticsID)})
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(traceOrGroupIDs))
	for _, id := range traceOrGroupIDs {
		wanted[id] = true
	}

	grouped := make(map[string][]*ExecutionResult)
	for _, result := range results {
		if result.InputDataUsed == nil {
			continue
		}
		if traceID, _ := result.InputDataUsed["trace_id"].(string); traceID != "" && wanted[traceID] {
			grouped[traceID] = append(grouped[traceID], result)
			continue
		}
		if groupID, _ := result.InputDataUsed["trace_group_id"].(string); groupID != "" && wanted[groupID] {
			grouped[groupID] = append(grouped[groupID], result)
		}
	}
	return grouped, nil
}

// FindResultByInput returns the most recent successful result whose input
// data matches exactly, or nil. This backs the optional engine cache.
func (m *ResultsManager) FindResultByInput(ctx context.Context, analyticsID string, input map[string]any) (*ExecutionResult, error) {
	results, err := m.search(ctx, domain.Query{
		"analytics_id": domain.Eq(analyticsID),
		"status":       domain.Eq(string(StatusSuccess)),
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		ti, tj := results[i].EndTime, results[j].EndTime
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		return ti.After(*tj)
	})

	for _, result := range results {
		if reflect.DeepEqual(result.InputDataUsed, input) {
			return result, nil
		}
	}
	return nil, nil
}

func (m *ResultsManager) search(ctx context.Context, query domain.Query) ([]*ExecutionResult, error) {
	var results []ExecutionResult
	if err := m.store.Search(ctx, query, resultsInfo, &results); err != nil {
		return nil, err
	}
	out := make([]*ExecutionResult, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}
