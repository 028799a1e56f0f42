package domain

import "errors"

// StoreType selects the backend a tenant's artifacts are persisted in.
type StoreType string

const (
	StoreTypeMemory  StoreType = "memory"
	StoreTypeDuckDB  StoreType = "duckdb"
	StoreTypeMongoDB StoreType = "mongodb"
)

// TenantConfig is the resolved storage configuration for one tenant.
// Resolution order: local YAML file (loaded at start-up), then remote
// credentials service, then environment defaults.
type TenantConfig struct {
	TenantID      string         `json:"tenant_id" yaml:"tenant_id"`
	StoreType     StoreType      `json:"store_type" yaml:"store_type"`
	Hostname      string         `json:"hostname,omitempty" yaml:"hostname"`
	ConnectionStr string         `json:"connection_str,omitempty" yaml:"connection_str"`
	DatabaseName  string         `json:"database_name,omitempty" yaml:"database_name"`
	Username      string         `json:"username,omitempty" yaml:"username"`
	Password      string         `json:"password,omitempty" yaml:"password"`
	Additional    map[string]any `json:"additional_config,omitempty" yaml:"additional_config"`
}

var (
	// ErrTenantConfigNotFound reports that no remote, file, or default
	// configuration could be resolved for the tenant.
	ErrTenantConfigNotFound = errors.New("tenant config not found")

	// ErrTenantUnauthorized reports a rejected credentials-service call.
	ErrTenantUnauthorized = errors.New("tenant unauthorized")
)
