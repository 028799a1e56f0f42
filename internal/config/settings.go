// Package config resolves service settings and per-tenant storage
// configuration. Tenant resolution order: local YAML file (loaded at
// start-up), remote credentials service, environment defaults.
package config

import (
	"os"
	"strconv"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

// Settings is the flat environment-variable configuration of the service.
type Settings struct {
	HTTPAddr     string
	GRPCAddr     string
	OTLPEndpoint string

	TenantConfigURL       string
	TenantAPIKey          string
	TenantConfigFile      string
	DefaultTenantID       string
	TenantDefaultHostname string
	TenantDefaultUsername string
	TenantDefaultPassword string
	StoreType             string
	DuckDBPath            string

	EnableResultCache      string
	RewriteStaleTimestamps bool
	MaxConcurrentJobs      int64
}

// Load reads settings from environment variables with defaults.
func Load() *Settings {
	return &Settings{
		HTTPAddr:     getEnv("MENTOR_HTTP_ADDR", ":8080"),
		GRPCAddr:     getEnv("MENTOR_GRPC_ADDR", ":4317"),
		OTLPEndpoint: getEnv("MENTOR_OTLP_ENDPOINT", ""),

		TenantConfigURL:       getEnv("TENANT_CONFIG_URL", ""),
		TenantAPIKey:          getEnv("TENANT_API_KEY", ""),
		TenantConfigFile:      getEnv("TENANT_CONFIG_FILE", ""),
		DefaultTenantID:       getEnv("DEFAULT_TENANT_ID", "default"),
		TenantDefaultHostname: getEnv("TENANT_DEFAULT_HOSTNAME", ""),
		TenantDefaultUsername: getEnv("TENANT_DEFAULT_USERNAME", ""),
		TenantDefaultPassword: getEnv("TENANT_DEFAULT_PASSWORD", ""),
		StoreType:             getEnv("STORE_TYPE", string(domain.StoreTypeMemory)),
		DuckDBPath:            getEnv("MENTOR_DB_PATH", "agent-mentor.db"),

		EnableResultCache:      getEnv("ENABLE_RESULT_CACHE", "false"),
		RewriteStaleTimestamps: getEnvBool("REWRITE_STALE_TIMESTAMPS", false),
		MaxConcurrentJobs:      getEnvInt64("MAX_CONCURRENT_JOBS", 10),
	}
}

// CacheEnabled reports whether the engine result cache flag is on.
func (s *Settings) CacheEnabled() bool {
	v, err := strconv.ParseBool(s.EnableResultCache)
	return err == nil && v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
