package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// Engine builds a per-request execution DAG from the registry's dependency
// declarations and runs it with parallel fan-out where nodes are
// independent.
type Engine struct {
	registry     *Registry
	results      *ResultsManager
	dataManager  ports.DataManager
	catalog      *Catalog
	logger       *slog.Logger
	cacheEnabled bool
	tracer       trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithResultCache enables the exact-input result cache. Disabled by
// default: forward-triggered runs rarely hit and the lookup costs latency.
func WithResultCache(enabled bool) EngineOption {
	return func(e *Engine) { e.cacheEnabled = enabled }
}

func NewEngine(registry *Registry, results *ResultsManager, dm ports.DataManager, catalog *Catalog, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:    registry,
		results:     results,
		dataManager: dm,
		catalog:     catalog,
		logger:      logger,
		tracer:      otel.Tracer("agent-mentor/analytics"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// executionGraph is the per-request DAG: the execution set, each node's
// immediate predecessors, and a valid topological order.
type executionGraph struct {
	metadata     map[string]*Metadata
	predecessors map[string]map[string]bool
	order        []string
}

// Execute runs the complete pipeline reachable from analyticsID and
// returns that plugin's result. Errors inside the DAG are captured in
// execution results and never bubble out; only graph-level failures
// (unknown plugin, cycle) return an error, in which case nothing ran.
func (e *Engine) Execute(ctx context.Context, analyticsID string, input map[string]any) (*ExecutionResult, error) {
	graph, err := e.buildGraph(ctx, analyticsID)
	if err != nil {
		return nil, err
	}

	state := &executionState{
		input:   input,
		results: make(map[string]*ExecutionResult),
	}
	e.runGraph(ctx, graph, state)

	final, ok := state.get(analyticsID)
	if !ok {
		return nil, fmt.Errorf("analytics %s produced no result", analyticsID)
	}
	return final, nil
}

// buildGraph traverses the registry graph from the requested plugin in
// both directions (dependsOn backward, triggers forward), detecting cycles
// by tracking the current path, then derives the predecessor map and a
// Kahn topological order.
func (e *Engine) buildGraph(ctx context.Context, analyticsID string) (*executionGraph, error) {
	metadata := make(map[string]*Metadata)
	visited := make(map[string]bool)

	var traverse func(currentID string, path []string) error
	traverse = func(currentID string, path []string) error {
		for _, ancestor := range path {
			if ancestor == currentID {
				cycle := strings.Join(append(path, currentID), " -> ")
				return validationErrorf("circular dependency detected: %s", cycle)
			}
		}
		if visited[currentID] {
			return nil
		}
		visited[currentID] = true

		m, err := e.registry.Get(ctx, currentID)
		if err != nil {
			return err
		}
		if m == nil {
			return validationErrorf("analytics %s not found", currentID)
		}
		metadata[currentID] = m

		next := append(path, currentID)
		for _, depID := range m.Template.Controller.DependsOn {
			if err := traverse(depID, next); err != nil {
				return err
			}
		}
		for _, triggerID := range m.Template.Controller.Triggers {
			if err := traverse(triggerID, next); err != nil {
				return err
			}
		}
		return nil
	}
	if err := traverse(analyticsID, nil); err != nil {
		return nil, err
	}

	// Predecessors: dependsOn members in the set, plus every plugin that
	// lists the node in its triggers ("A triggers B" is an edge A -> B).
	predecessors := make(map[string]map[string]bool, len(metadata))
	for id := range metadata {
		predecessors[id] = make(map[string]bool)
	}
	for id, m := range metadata {
		for _, depID := range m.Template.Controller.DependsOn {
			if _, inSet := metadata[depID]; inSet {
				predecessors[id][depID] = true
			}
		}
		for _, triggerID := range m.Template.Controller.Triggers {
			if _, inSet := metadata[triggerID]; inSet {
				predecessors[triggerID][id] = true
			}
		}
	}

	order, err := topologicalSort(metadata, predecessors)
	if err != nil {
		return nil, err
	}
	return &executionGraph{metadata: metadata, predecessors: predecessors, order: order}, nil
}

// topologicalSort runs Kahn's algorithm; leftover in-degree means a cycle.
func topologicalSort(metadata map[string]*Metadata, predecessors map[string]map[string]bool) ([]string, error) {
	inDegree := make(map[string]int, len(metadata))
	for id := range metadata {
		inDegree[id] = len(predecessors[id])
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for id, preds := range predecessors {
			if preds[current] {
				inDegree[id]--
				if inDegree[id] == 0 {
					queue = append(queue, id)
				}
			}
		}
	}

	if len(order) != len(metadata) {
		return nil, validationErrorf("cycle detected in dependency graph during topological sort")
	}
	return order, nil
}

// executionState is the shared state of one DAG run. The results map is
// merged under the mutex; a node only ever writes its own key.
type executionState struct {
	mu      sync.Mutex
	input   map[string]any
	results map[string]*ExecutionResult
}

func (s *executionState) put(id string, result *ExecutionResult) {
	s.mu.Lock()
	s.results[id] = result
	s.mu.Unlock()
}

func (s *executionState) get(id string) (*ExecutionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	return r, ok
}

// runGraph executes the DAG with a predecessor-count barrier: a node is
// dispatched once all of its predecessors have recorded a result, and
// independent nodes run concurrently.
func (e *Engine) runGraph(ctx context.Context, graph *executionGraph, state *executionState) {
	remaining := make(map[string]int, len(graph.order))
	dependents := make(map[string][]string)
	for id, preds := range graph.predecessors {
		remaining[id] = len(preds)
		for pred := range preds {
			dependents[pred] = append(dependents[pred], id)
		}
	}

	ready := make(chan string, len(graph.order))
	var mu sync.Mutex
	for _, id := range graph.order {
		if remaining[id] == 0 {
			ready <- id
		}
	}

	var wg sync.WaitGroup
	done := 0
	total := len(graph.order)

	for done < total {
		id := <-ready
		done++
		wg.Add(1)
		go func(nodeID string) {
			defer wg.Done()
			result := e.executeNode(ctx, nodeID, graph, state)
			state.put(nodeID, result)

			mu.Lock()
			for _, dependent := range dependents[nodeID] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					ready <- dependent
				}
			}
			mu.Unlock()
		}(id)
	}
	wg.Wait()
}

// executeNode runs one plugin invocation: predecessor failure check, input
// merge, validation, execution with panic isolation, and result
// persistence.
func (e *Engine) executeNode(ctx context.Context, analyticsID string, graph *executionGraph, state *executionState) *ExecutionResult {
	ctx, span := e.tracer.Start(ctx, "analytics.execute",
		trace.WithAttributes(attribute.String("analytics.id", analyticsID)))
	defer span.End()

	start := time.Now()
	metadata := graph.metadata[analyticsID]

	// A failed predecessor (dependency or trigger source) fails the node.
	var failedDeps []string
	preds := make([]string, 0, len(graph.predecessors[analyticsID]))
	for pred := range graph.predecessors[analyticsID] {
		preds = append(preds, pred)
	}
	sort.Strings(preds)
	for _, pred := range preds {
		if result, ok := state.get(pred); ok && result.Status == StatusFailure {
			failedDeps = append(failedDeps, pred)
		}
	}
	if len(failedDeps) > 0 {
		execErr := NewExecutionError(ErrTypeDependencyFailure,
			fmt.Sprintf("Dependencies failed: %s", strings.Join(failedDeps, ", ")))
		execErr.Details = map[string]any{"failed_dependencies": failedDeps}
		return e.finishFailure(ctx, analyticsID, metadata, execErr, start, state.input)
	}

	// Merge the caller's input with every predecessor's output. Overwrite
	// order among parallel predecessors is unspecified; plugins must not
	// rely on it for equal keys.
	input := make(map[string]any, len(state.input))
	for k, v := range state.input {
		input[k] = v
	}
	for _, pred := range preds {
		if result, ok := state.get(pred); ok {
			for k, v := range result.OutputResult {
				input[k] = v
			}
		}
	}

	if e.cacheEnabled {
		if cached, err := e.results.FindResultByInput(ctx, analyticsID, input); err != nil {
			e.logger.Warn("result cache lookup failed", "analytics_id", analyticsID, "error", err)
		} else if cached != nil {
			e.logger.Info("using cached result", "analytics_id", analyticsID)
			return cached
		}
	}

	if metadata.Template.InputSpec != nil {
		if err := validateInput(input, *metadata.Template.InputSpec); err != nil {
			return e.finishFailure(ctx, analyticsID, metadata,
				NewExecutionError(ErrTypeInput, err.Error()), start, input)
		}
	}

	pluginName, err := metadata.PluginName()
	if err != nil {
		return e.finishFailure(ctx, analyticsID, metadata,
			NewExecutionError(ErrTypeValidation, err.Error()), start, input)
	}
	plugin, err := e.catalog.Resolve(pluginName)
	if err != nil {
		return e.finishFailure(ctx, analyticsID, metadata,
			NewExecutionError(ErrTypeValidation, err.Error()), start, input)
	}

	result := e.invoke(ctx, plugin, analyticsID, input, metadata.Template.Config)
	result.Complete(time.Since(start).Seconds())
	if result.ConfigUsed == nil {
		result.ConfigUsed = metadata.Template.Config
	}
	if result.InputDataUsed == nil {
		result.InputDataUsed = input
	}
	result.AnalyticsID = analyticsID

	if err := result.Validate(); err != nil {
		result.Status = StatusFailure
		result.Error = NewExecutionError(ErrTypeProcessing, err.Error())
	}

	if _, err := e.results.StoreResult(ctx, result); err != nil {
		e.logger.Error("failed to store execution result", "analytics_id", analyticsID, "error", err)
	}
	return result
}

// invoke calls the plugin, converting panics and returned errors into
// FAILURE results.
func (e *Engine) invoke(ctx context.Context, plugin Plugin, analyticsID string, input, config map[string]any) (result *ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			execErr := ExecutionErrorFrom(fmt.Errorf("panic: %v", r))
			result = FailureResult(analyticsID, execErr)
		}
	}()

	result, err := plugin.Execute(ctx, analyticsID, e.dataManager, input, config)
	if err != nil {
		return FailureResult(analyticsID, ExecutionErrorFrom(err))
	}
	if result == nil {
		return FailureResult(analyticsID,
			NewExecutionError(ErrTypeProcessing, "plugin returned no result"))
	}
	return result
}

func (e *Engine) finishFailure(ctx context.Context, analyticsID string, metadata *Metadata, execErr *ExecutionError, start time.Time, input map[string]any) *ExecutionResult {
	result := FailureResult(analyticsID, execErr)
	result.InputDataUsed = input
	if metadata != nil {
		result.ConfigUsed = metadata.Template.Config
	}
	result.Complete(time.Since(start).Seconds())
	if _, err := e.results.StoreResult(ctx, result); err != nil {
		e.logger.Error("failed to store execution result", "analytics_id", analyticsID, "error", err)
	}
	return result
}

// validateInput checks required fields and types of the merged input, and
// fills declared defaults for absent optional fields.
func validateInput(input map[string]any, spec IOSpec) error {
	for _, field := range spec.Fields {
		value, present := input[field.Name]
		if !present || value == nil {
			if field.Default != nil {
				input[field.Name] = field.Default
				continue
			}
			if field.Required {
				return fmt.Errorf("missing required input field %q", field.Name)
			}
			continue
		}
		if err := checkValueType(value, field.Type, field.ArrayType); err != nil {
			return fmt.Errorf("input field %q: %w", field.Name, err)
		}
	}
	return nil
}
