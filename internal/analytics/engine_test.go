package analytics

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/adapters/memory"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
)

type engineFixture struct {
	registry *Registry
	results  *ResultsManager
	engine   *Engine
	catalog  *Catalog
}

func newEngineFixture(t *testing.T, plugins map[string]*stubPlugin) *engineFixture {
	t.Helper()
	store := memory.NewStore()
	catalog := NewCatalog()
	for name, plugin := range plugins {
		p := plugin
		require.NoError(t, catalog.Register(name, func() Plugin { return p }))
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	registry := NewRegistry(store, catalog)
	results := NewResultsManager(store)
	dm := services.NewDataManager(store, logger)
	engine := NewEngine(registry, results, dm, catalog, logger)
	return &engineFixture{registry: registry, results: results, engine: engine, catalog: catalog}
}

func TestEngine_TriggerRunsDownstream(t *testing.T) {
	var mu sync.Mutex
	var p2Input map[string]any

	fixture := newEngineFixture(t, map[string]*stubPlugin{
		"P1": {
			input:  specOf(FieldSpec{Name: "seed", Type: FieldString, Required: false, Description: "optional seed"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
			run: func(input map[string]any) (map[string]any, error) {
				return map[string]any{"x": 7}, nil
			},
		},
		"P2": {
			input:  specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
			output: specOf(FieldSpec{Name: "doubled", Type: FieldInteger, Required: true, Description: "result"}),
			run: func(input map[string]any) (map[string]any, error) {
				mu.Lock()
				p2Input = input
				mu.Unlock()
				return map[string]any{"doubled": 14}, nil
			},
		},
	})
	ctx := context.Background()

	_, err := fixture.registry.Register(ctx, metadataFor("P2", nil, nil))
	require.NoError(t, err)
	_, err = fixture.registry.Register(ctx, metadataFor("P1", nil, []string{"P2"}))
	require.NoError(t, err)

	// Executing P1 also runs the triggered P2 with P1's output as input.
	result, err := fixture.engine.Execute(ctx, "P1", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, p2Input, "P2 must have executed")
	assert.Equal(t, 7, p2Input["x"])

	// Both results are persisted.
	p1Results, err := fixture.results.GetResultsByAnalyticsID(ctx, "P1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, p1Results, 1)
	p2Results, err := fixture.results.GetResultsByAnalyticsID(ctx, "P2", nil, nil)
	require.NoError(t, err)
	require.Len(t, p2Results, 1)
	assert.Equal(t, 7.0, asFloat(p2Results[0].InputDataUsed["x"]))
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return -1
}

func TestEngine_DependencyFailurePropagates(t *testing.T) {
	fixture := newEngineFixture(t, map[string]*stubPlugin{
		"P1": {
			input:  specOf(FieldSpec{Name: "seed", Type: FieldString, Required: false, Description: "seed"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
			run: func(map[string]any) (map[string]any, error) {
				return nil, errors.New("boom")
			},
		},
		"P2": {
			input:  specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: false, Description: "count"}),
			output: specOf(FieldSpec{Name: "done", Type: FieldBoolean, Required: true, Description: "flag"}),
		},
	})
	ctx := context.Background()

	_, err := fixture.registry.Register(ctx, metadataFor("P1", nil, nil))
	require.NoError(t, err)
	_, err = fixture.registry.Register(ctx, metadataFor("P2", []string{"P1"}, nil))
	require.NoError(t, err)

	result, err := fixture.engine.Execute(ctx, "P2", map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailure, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, ErrTypeDependencyFailure, result.Error.ErrorType)
	assert.Contains(t, result.Error.Message, "P1")
}

func TestEngine_CycleIsFatalAndNothingRuns(t *testing.T) {
	executed := false
	fixture := newEngineFixture(t, map[string]*stubPlugin{
		"A": {
			input:  specOf(FieldSpec{Name: "x", Type: FieldAny, Required: false, Description: "x"}),
			output: specOf(FieldSpec{Name: "y", Type: FieldAny, Required: true, Description: "y"}),
			run: func(map[string]any) (map[string]any, error) {
				executed = true
				return map[string]any{"y": 1}, nil
			},
		},
		"B": {
			input:  specOf(FieldSpec{Name: "y", Type: FieldAny, Required: false, Description: "y"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldAny, Required: true, Description: "x"}),
		},
	})
	ctx := context.Background()

	// Register without cross-references first, then wire the cycle via
	// updates so registration-time validation does not block the setup.
	_, err := fixture.registry.Register(ctx, metadataFor("A", nil, nil))
	require.NoError(t, err)
	_, err = fixture.registry.Register(ctx, metadataFor("B", nil, nil))
	require.NoError(t, err)
	require.NoError(t, fixture.registry.Update(ctx, "A", metadataFor("A", nil, []string{"B"})))
	require.NoError(t, fixture.registry.Update(ctx, "B", metadataFor("B", nil, []string{"A"})))

	_, err = fixture.engine.Execute(ctx, "A", map[string]any{})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Message, "circular")
	assert.False(t, executed, "no plugin may run when the graph is cyclic")
}

func TestEngine_InputValidationFailure(t *testing.T) {
	fixture := newEngineFixture(t, map[string]*stubPlugin{
		"P1": {
			input:  specOf(FieldSpec{Name: "trace_id", Type: FieldString, Required: true, Description: "trace"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
		},
	})
	ctx := context.Background()

	_, err := fixture.registry.Register(ctx, metadataFor("P1", nil, nil))
	require.NoError(t, err)

	result, err := fixture.engine.Execute(ctx, "P1", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, ErrTypeInput, result.Error.ErrorType)
}

func TestEngine_PanicBecomesFailureResult(t *testing.T) {
	fixture := newEngineFixture(t, map[string]*stubPlugin{
		"P1": {
			input:  specOf(FieldSpec{Name: "seed", Type: FieldString, Required: false, Description: "seed"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
			run: func(map[string]any) (map[string]any, error) {
				panic("plugin exploded")
			},
		},
	})
	ctx := context.Background()

	_, err := fixture.registry.Register(ctx, metadataFor("P1", nil, nil))
	require.NoError(t, err)

	result, err := fixture.engine.Execute(ctx, "P1", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, result.Status)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "plugin exploded")
	assert.NotEmpty(t, result.Error.Stacktrace)
}

func TestEngine_ParallelFanOutMergesResults(t *testing.T) {
	var mu sync.Mutex
	var mergedInput map[string]any

	fixture := newEngineFixture(t, map[string]*stubPlugin{
		"left": {
			input:  specOf(FieldSpec{Name: "seed", Type: FieldString, Required: false, Description: "seed"}),
			output: specOf(FieldSpec{Name: "a", Type: FieldInteger, Required: true, Description: "a"}),
			run: func(map[string]any) (map[string]any, error) {
				return map[string]any{"a": 1}, nil
			},
		},
		"right": {
			input:  specOf(FieldSpec{Name: "seed", Type: FieldString, Required: false, Description: "seed"}),
			output: specOf(FieldSpec{Name: "b", Type: FieldInteger, Required: true, Description: "b"}),
			run: func(map[string]any) (map[string]any, error) {
				return map[string]any{"b": 2}, nil
			},
		},
		"join": {
			input: specOf(
				FieldSpec{Name: "a", Type: FieldInteger, Required: true, Description: "a"},
				FieldSpec{Name: "b", Type: FieldInteger, Required: true, Description: "b"},
			),
			output: specOf(FieldSpec{Name: "sum", Type: FieldInteger, Required: true, Description: "sum"}),
			run: func(input map[string]any) (map[string]any, error) {
				mu.Lock()
				mergedInput = input
				mu.Unlock()
				return map[string]any{"sum": 3}, nil
			},
		},
	})
	ctx := context.Background()

	_, err := fixture.registry.Register(ctx, metadataFor("left", nil, nil))
	require.NoError(t, err)
	_, err = fixture.registry.Register(ctx, metadataFor("right", nil, nil))
	require.NoError(t, err)
	_, err = fixture.registry.Register(ctx, metadataFor("join", []string{"left", "right"}, nil))
	require.NoError(t, err)

	result, err := fixture.engine.Execute(ctx, "join", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, mergedInput)
	assert.Equal(t, 1, mergedInput["a"])
	assert.Equal(t, 2, mergedInput["b"])
}
