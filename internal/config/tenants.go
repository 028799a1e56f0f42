package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

// tenantConfigTimeout bounds remote credential-service calls.
const tenantConfigTimeout = 10 * time.Second

// tenantFile is the YAML layout of TENANT_CONFIG_FILE.
type tenantFile struct {
	Tenants map[string]domain.TenantConfig `yaml:"tenants"`
}

// TenantConfigService resolves per-tenant storage configuration. Resolved
// configs are cached for the process lifetime. Tenants listed in the YAML
// file are loaded into the cache at start-up and served from it without
// asking the remote credentials service; the remote service is asked only
// for tenants not already cached, with environment defaults as the
// fallback.
type TenantConfigService struct {
	logger   *slog.Logger
	settings *Settings
	secret   *SecretKey
	client   *http.Client

	mu      sync.RWMutex
	configs map[string]domain.TenantConfig
}

func NewTenantConfigService(logger *slog.Logger, settings *Settings, secret *SecretKey) *TenantConfigService {
	svc := &TenantConfigService{
		logger:   logger,
		settings: settings,
		secret:   secret,
		client:   &http.Client{Timeout: tenantConfigTimeout},
		configs:  make(map[string]domain.TenantConfig),
	}
	svc.loadFromFile()
	return svc
}

// loadFromFile seeds the cache from TENANT_CONFIG_FILE if present.
// Passwords stored with the "enc:" prefix are decrypted on load.
func (s *TenantConfigService) loadFromFile() {
	if s.settings.TenantConfigFile == "" {
		s.logger.Info("no tenant config file specified")
		return
	}
	data, err := os.ReadFile(s.settings.TenantConfigFile)
	if err != nil {
		s.logger.Error("failed to read tenant config file", "path", s.settings.TenantConfigFile, "error", err)
		s.seedDefault()
		return
	}
	var file tenantFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		s.logger.Error("failed to parse tenant config file", "path", s.settings.TenantConfigFile, "error", err)
		s.seedDefault()
		return
	}
	for tenantID, cfg := range file.Tenants {
		cfg.TenantID = tenantID
		if cfg.StoreType == "" {
			cfg.StoreType = domain.StoreType(s.settings.StoreType)
		}
		if s.secret != nil && cfg.Password != "" {
			if plain, err := s.secret.Decrypt(cfg.Password); err == nil {
				cfg.Password = plain
			}
		}
		s.configs[tenantID] = cfg
		s.logger.Info("loaded tenant config", "tenant_id", tenantID, "store_type", cfg.StoreType)
	}
}

// seedDefault installs the environment-default tenant so the service can
// start without any external configuration.
func (s *TenantConfigService) seedDefault() {
	s.configs[s.settings.DefaultTenantID] = s.defaultConfig(s.settings.DefaultTenantID)
	s.logger.Info("seeded default tenant config", "tenant_id", s.settings.DefaultTenantID)
}

func (s *TenantConfigService) defaultConfig(tenantID string) domain.TenantConfig {
	return domain.TenantConfig{
		TenantID:  tenantID,
		StoreType: domain.StoreType(s.settings.StoreType),
		Hostname:  s.settings.TenantDefaultHostname,
		Username:  s.settings.TenantDefaultUsername,
		Password:  s.settings.TenantDefaultPassword,
	}
}

// GetTenantConfig resolves the configuration for a tenant. An empty tenant
// id resolves to the default tenant.
func (s *TenantConfigService) GetTenantConfig(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	if tenantID == "" {
		tenantID = s.settings.DefaultTenantID
	}

	s.mu.RLock()
	cfg, ok := s.configs[tenantID]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	if s.settings.TenantConfigURL != "" {
		remote, err := s.fetchFromService(ctx, tenantID)
		if err == nil {
			s.cache(remote)
			return remote, nil
		}
		s.logger.Warn("remote tenant config fetch failed", "tenant_id", tenantID, "error", err)
		if err == domain.ErrTenantUnauthorized {
			return domain.TenantConfig{}, err
		}
	}

	// Fall back to the environment-default connection for unknown tenants.
	if s.settings.TenantDefaultHostname != "" || domain.StoreType(s.settings.StoreType) == domain.StoreTypeMemory ||
		domain.StoreType(s.settings.StoreType) == domain.StoreTypeDuckDB {
		cfg = s.defaultConfig(tenantID)
		s.cache(cfg)
		return cfg, nil
	}

	return domain.TenantConfig{}, fmt.Errorf("%w: %s", domain.ErrTenantConfigNotFound, tenantID)
}

// SetTenantConfig installs a config directly, overriding any cached value.
func (s *TenantConfigService) SetTenantConfig(cfg domain.TenantConfig) {
	s.cache(cfg)
}

func (s *TenantConfigService) cache(cfg domain.TenantConfig) {
	s.mu.Lock()
	s.configs[cfg.TenantID] = cfg
	s.mu.Unlock()
}

// fetchFromService asks the remote credentials service for the tenant's
// connection data.
func (s *TenantConfigService) fetchFromService(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	url := fmt.Sprintf("%s/api/v1/credentials/%s", s.settings.TenantConfigURL, tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.TenantConfig{}, fmt.Errorf("build request: %w", err)
	}
	if s.settings.TenantAPIKey != "" {
		req.Header.Set("X-API-Key", s.settings.TenantAPIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.TenantConfig{}, fmt.Errorf("fetch tenant config: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.TenantConfig{}, domain.ErrTenantUnauthorized
	default:
		return domain.TenantConfig{}, fmt.Errorf("%w: config service returned %d for tenant %s",
			domain.ErrTenantConfigNotFound, resp.StatusCode, tenantID)
	}

	var payload struct {
		Host     string `json:"host"`
		Database string `json:"database"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.TenantConfig{}, fmt.Errorf("decode tenant config: %w", err)
	}
	if payload.Host == "" {
		return domain.TenantConfig{}, fmt.Errorf("%w: no hostname received for tenant %s",
			domain.ErrTenantConfigNotFound, tenantID)
	}

	s.logger.Info("fetched tenant config from service", "tenant_id", tenantID)
	return domain.TenantConfig{
		TenantID:     tenantID,
		StoreType:    domain.StoreType(s.settings.StoreType),
		Hostname:     payload.Host,
		DatabaseName: payload.Database,
		Username:     payload.Username,
		Password:     payload.Password,
	}, nil
}
