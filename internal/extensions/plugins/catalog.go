package plugins

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
)

// BuildCatalog registers every built-in plugin implementation under its
// analytics id. The action deduper is shared so concurrent trace
// processing collapses identical actions process-wide.
func BuildCatalog(logger *slog.Logger, dedup *services.ActionDeduper) (*analytics.Catalog, error) {
	catalog := analytics.NewCatalog()
	entries := map[string]analytics.PluginFactory{
		IDTaskAnalytics:     func() analytics.Plugin { return NewTaskAnalytics(logger, dedup) },
		IDIssueAnalytics:    func() analytics.Plugin { return NewIssueAnalytics() },
		IDAnnotations:       func() analytics.Plugin { return NewAnnotationAnalytics() },
		IDCycleDetector:     func() analytics.Plugin { return NewCycleDetector() },
		IDChangePoint:       func() analytics.Plugin { return NewChangePointDetector() },
		IDCausalDiscovery:   func() analytics.Plugin { return NewCausalDiscoveryLight() },
		IDIssueDistribution: func() analytics.Plugin { return NewIssueDistributionTrace() },
	}
	for name, factory := range entries {
		if err := catalog.Register(name, factory); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// defaultMetadata declares the registry records seeded for the built-in
// plugins on first use of a tenant.
func defaultMetadata() []*analytics.Metadata {
	build := func(id, name, description string, config map[string]any, dependsOn, triggers []string) *analytics.Metadata {
		m := analytics.NewMetadata(id, name, "1.0.0", "agent-mentor")
		m.Header().Description = description
		m.Template = analytics.TemplateConfig{
			Runtime: analytics.RuntimeConfig{
				Type:   analytics.RuntimeGo,
				Config: map[string]string{analytics.RuntimeConfigKeyPlugin: id},
			},
			Controller: analytics.ControllerConfig{DependsOn: dependsOn, Triggers: triggers},
			Config:     config,
		}
		return m
	}

	return []*analytics.Metadata{
		build(IDTaskAnalytics, "Task Analytics",
			"Extracts the canonical task and action graph from raw spans",
			map[string]any{"max_concurrent_traces": DefaultMaxConcurrentTraces}, nil, nil),
		build(IDIssueAnalytics, "Issue Analytics",
			"Extracts reported issues from span events", nil, nil, nil),
		build(IDAnnotations, "Annotation Analytics",
			"Extracts data annotations from span events", nil, nil, nil),
		build(IDCycleDetector, "Cycle Detector",
			"Detects repeated-task cycles in the task dependency graph",
			map[string]any{"min_occurrences": defaultMinOccurrences}, []string{IDTaskAnalytics}, nil),
		build(IDChangePoint, "Change Point Detector",
			"Detects level shifts in trace-group metric series",
			map[string]any{
				"min_observations":   defaultMinObservations,
				"window_max":         defaultWindowMax,
				"change_ratio_bound": defaultChangeRatio,
			}, nil, nil),
		build(IDCausalDiscovery, "Causal Discovery Light",
			"Discovers the hierarchical process model behind task sequences",
			nil, []string{IDTaskAnalytics}, nil),
		build(IDIssueDistribution, "Issue Distribution Trace",
			"Aggregates issue severities up the task parent tree",
			nil, nil, nil),
	}
}

// SeedRegistry registers the default plugin metadata, skipping entries
// already present.
func SeedRegistry(ctx context.Context, registry *analytics.Registry) error {
	for _, metadata := range defaultMetadata() {
		existing, err := registry.Get(ctx, metadata.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := registry.Register(ctx, metadata); err != nil {
			return fmt.Errorf("seed analytics %s: %w", metadata.ID, err)
		}
	}
	return nil
}
