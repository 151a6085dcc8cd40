package store

import (
	"sync"

	"magnifiq/internal/config"

	"github.com/rs/zerolog/log"
)

// Factory builds a platform adapter from its app credentials
type Factory func(cfg config.PlatformConfig) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a platform factory to the registry
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

// Manager resolves platform names to adapters and caches one adapter
// instance per platform for the process lifetime.
type Manager struct {
	cfg config.StoreConfig

	mu       sync.Mutex
	adapters map[string]Adapter
}

// NewManager creates a store manager from explicit configuration
func NewManager(cfg config.StoreConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		adapters: make(map[string]Adapter),
	}
}

// Platform resolves and memoizes the adapter for a platform name. An
// empty name resolves the configured default platform.
func (m *Manager) Platform(name string) (Adapter, error) {
	if name == "" {
		name = m.cfg.DefaultPlatform
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if adapter, ok := m.adapters[name]; ok {
		return adapter, nil
	}

	factory, ok := lookupFactory(name)
	if !ok {
		return nil, &ConfigError{Key: name, Reason: "unknown store platform"}
	}

	adapter, err := factory(m.cfg.Platforms[name])
	if err != nil {
		return nil, err
	}

	m.adapters[name] = adapter
	log.Info().Str("platform", name).Msg("store adapter initialized")
	return adapter, nil
}
