package config

import (
	"fmt"
	"sync"

	"github.com/jinzhu/copier"
)

// ChangeCallback is invoked after a successful configuration update.
type ChangeCallback func(oldConfig, newConfig *Config)

// Manager guards a validated configuration snapshot behind a mutex and hands
// out deep copies, so readers never observe a half-applied update.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configFile string
	callbacks  []ChangeCallback
}

// NewManager creates a manager around a loaded configuration.
func NewManager(config *Config, configFile string) *Manager {
	return &Manager{
		config:     config,
		configFile: configFile,
	}
}

// GetConfig returns a deep copy of the current configuration.
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := &Config{}
	if err := copier.CopyWithOption(snapshot, m.config, copier.Option{DeepCopy: true}); err != nil {
		// Copying between identical types cannot fail; fall back to the
		// shared value rather than panicking.
		return m.config
	}
	return snapshot
}

// UpdateConfig validates and applies a new configuration, then notifies the
// registered callbacks.
func (m *Manager) UpdateConfig(newConfig *Config) error {
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.mu.Lock()
	oldConfig := m.config
	m.config = newConfig
	callbacks := make([]ChangeCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, callback := range callbacks {
		callback(oldConfig, newConfig)
	}
	return nil
}

// OnConfigChange registers a callback for configuration updates.
func (m *Manager) OnConfigChange(callback ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ReloadConfig re-reads the configuration file and applies it.
func (m *Manager) ReloadConfig() error {
	m.mu.RLock()
	configFile := m.configFile
	m.mu.RUnlock()

	newConfig, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	return m.UpdateConfig(newConfig)
}

// SaveConfig persists the current configuration to its file.
func (m *Manager) SaveConfig() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.configFile == "" {
		return fmt.Errorf("no config file path configured")
	}
	return SaveToFile(m.config, m.configFile)
}
