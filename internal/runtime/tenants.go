// Package runtime assembles the per-tenant component sets: store client,
// data manager, analytics registry, results manager and execution engine.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	appconfig "github.com/AgentToolkit/agent-mentor/internal/config"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
	"github.com/AgentToolkit/agent-mentor/internal/extensions/plugins"
)

// StoreFactory builds a store client from a resolved tenant config.
type StoreFactory func(ctx context.Context, cfg domain.TenantConfig) (ports.Store, error)

// TenantComponents is the per-tenant singleton bundle.
type TenantComponents struct {
	Config      domain.TenantConfig
	Store       ports.Store
	DataManager ports.DataManager
	Registry    *analytics.Registry
	Results     *analytics.ResultsManager
	Engine      *analytics.Engine
}

// TenantRegistry lazily builds and caches tenant components. Creation is
// serialized per tenant: a double create yields one instance and the
// additional creators await it.
type TenantRegistry struct {
	logger       *slog.Logger
	settings     *appconfig.Settings
	tenantConfig *appconfig.TenantConfigService
	storeFactory StoreFactory
	catalog      *analytics.Catalog
	dedup        *services.ActionDeduper

	mu      sync.Mutex
	tenants map[string]*tenantEntry
}

type tenantEntry struct {
	once       sync.Once
	components *TenantComponents
	err        error
}

func NewTenantRegistry(logger *slog.Logger, settings *appconfig.Settings, tenantConfig *appconfig.TenantConfigService, storeFactory StoreFactory, catalog *analytics.Catalog, dedup *services.ActionDeduper) *TenantRegistry {
	return &TenantRegistry{
		logger:       logger,
		settings:     settings,
		tenantConfig: tenantConfig,
		storeFactory: storeFactory,
		catalog:      catalog,
		dedup:        dedup,
		tenants:      make(map[string]*tenantEntry),
	}
}

// Components returns the tenant's component set, building it on first use.
func (r *TenantRegistry) Components(ctx context.Context, tenantID string) (*TenantComponents, error) {
	if tenantID == "" {
		tenantID = r.settings.DefaultTenantID
	}

	r.mu.Lock()
	entry, ok := r.tenants[tenantID]
	if !ok {
		entry = &tenantEntry{}
		r.tenants[tenantID] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		entry.components, entry.err = r.build(ctx, tenantID)
		if entry.err != nil {
			// A failed build must not poison the tenant forever.
			r.mu.Lock()
			delete(r.tenants, tenantID)
			r.mu.Unlock()
		}
	})
	return entry.components, entry.err
}

// Dedup exposes the process-wide action deduper.
func (r *TenantRegistry) Dedup() *services.ActionDeduper { return r.dedup }

func (r *TenantRegistry) build(ctx context.Context, tenantID string) (*TenantComponents, error) {
	cfg, err := r.tenantConfig.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	store, err := r.storeFactory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build store for tenant %s: %w", tenantID, err)
	}

	dataManager := services.NewDataManager(store, r.logger)
	registry := analytics.NewRegistry(store, r.catalog)
	results := analytics.NewResultsManager(store)
	engine := analytics.NewEngine(registry, results, dataManager, r.catalog, r.logger,
		analytics.WithResultCache(r.settings.CacheEnabled()))

	if err := plugins.SeedRegistry(ctx, registry); err != nil {
		return nil, err
	}

	r.logger.Info("tenant components initialized",
		"tenant_id", tenantID, "store_type", cfg.StoreType)
	return &TenantComponents{
		Config:      cfg,
		Store:       store,
		DataManager: dataManager,
		Registry:    registry,
		Results:     results,
		Engine:      engine,
	}, nil
}

// Close releases every cached tenant's store client.
func (r *TenantRegistry) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tenantID, entry := range r.tenants {
		if entry.components != nil && entry.components.Store != nil {
			if err := entry.components.Store.Close(ctx); err != nil {
				r.logger.Warn("failed to close tenant store", "tenant_id", tenantID, "error", err)
			}
		}
	}
}
