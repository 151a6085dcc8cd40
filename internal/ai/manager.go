package ai

import (
	"sync"

	"magnifiq/internal/config"

	"github.com/rs/zerolog/log"
)

// Factory builds a provider adapter from its credentials. Construction may
// be expensive (HTTP client setup), so the manager memoizes instances.
type Factory func(cfg config.ProviderConfig) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a driver factory to the registry. New providers plug in
// here without touching any caller.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

func lookupFactory(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Manager resolves feature names to provider adapters and caches one
// adapter instance per driver for the process lifetime.
type Manager struct {
	cfg config.AIConfig

	mu      sync.Mutex
	drivers map[string]Provider
}

// NewManager creates an AI manager from explicit configuration
func NewManager(cfg config.AIConfig) *Manager {
	return &Manager{
		cfg:     cfg,
		drivers: make(map[string]Provider),
	}
}

// ForFeature resolves the adapter and model bound to a logical feature.
// An unconfigured feature is a configuration error, never a silent default.
func (m *Manager) ForFeature(feature string) (Provider, string, error) {
	fc, ok := m.cfg.Features[feature]
	if !ok {
		return nil, "", &ConfigError{Key: feature, Reason: "feature is not configured"}
	}
	provider, err := m.Driver(fc.Driver)
	if err != nil {
		return nil, "", err
	}
	return provider, fc.Model, nil
}

// Driver resolves and memoizes one adapter instance per driver name.
// An empty name resolves the configured default driver.
func (m *Manager) Driver(name string) (Provider, error) {
	if name == "" {
		name = m.cfg.DefaultDriver
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if provider, ok := m.drivers[name]; ok {
		return provider, nil
	}

	factory, ok := lookupFactory(name)
	if !ok {
		return nil, &ConfigError{Key: name, Reason: "unknown AI driver"}
	}

	provider, err := factory(m.cfg.Providers[name])
	if err != nil {
		return nil, err
	}

	m.drivers[name] = provider
	log.Info().Str("driver", name).Msg("AI driver initialized")
	return provider, nil
}

// ModelForFeature is a pure lookup used to record provenance without
// constructing an adapter.
func (m *Manager) ModelForFeature(feature string) (string, error) {
	fc, ok := m.cfg.Features[feature]
	if !ok {
		return "", &ConfigError{Key: feature, Reason: "feature is not configured"}
	}
	return fc.Model, nil
}

// DriverForFeature is a pure lookup of the driver name bound to a feature
func (m *Manager) DriverForFeature(feature string) (string, error) {
	fc, ok := m.cfg.Features[feature]
	if !ok {
		return "", &ConfigError{Key: feature, Reason: "feature is not configured"}
	}
	return fc.Driver, nil
}
