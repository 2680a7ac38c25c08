package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FeatureFlags switches optional parts of the API on and off
type FeatureFlags struct {
	// Trainee features
	EnableWebSocket  bool `json:"enable_websocket"`
	EnableReplyRetry bool `json:"enable_reply_retry"`

	// Observer features
	EnableReports        bool `json:"enable_reports"`
	EnableArchiveBrowser bool `json:"enable_archive_browser"`
	EnableBulkDelete     bool `json:"enable_bulk_delete"`
}

// DefaultFeatureFlags enables everything
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		EnableWebSocket:      true,
		EnableReplyRetry:     true,
		EnableReports:        true,
		EnableArchiveBrowser: true,
		EnableBulkDelete:     true,
	}
}

// FeatureFlagManager manages feature flags
type FeatureFlagManager struct {
	flags      FeatureFlags
	configPath string
	mu         sync.RWMutex
}

// NewFeatureFlagManager loads flags from configPath, writing the defaults
// there if the file does not exist. An empty path keeps flags in memory.
func NewFeatureFlagManager(configPath string) (*FeatureFlagManager, error) {
	manager := &FeatureFlagManager{
		configPath: configPath,
		flags:      DefaultFeatureFlags(),
	}
	if configPath == "" {
		return manager, nil
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := manager.loadFromFile(); err != nil {
			return nil, fmt.Errorf("failed to load feature flags: %w", err)
		}
	} else if err := manager.saveToFile(); err != nil {
		return nil, fmt.Errorf("failed to save default feature flags: %w", err)
	}

	return manager, nil
}

// GetFlags returns the current feature flags
func (m *FeatureFlagManager) GetFlags() FeatureFlags {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags
}

// UpdateFlags updates the feature flags
func (m *FeatureFlagManager) UpdateFlags(flags FeatureFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags = flags
	if m.configPath == "" {
		return nil
	}
	return m.saveToFile()
}

// loadFromFile loads feature flags from a file. Keys missing from the file
// keep their defaults.
func (m *FeatureFlagManager) loadFromFile() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read feature flags file: %w", err)
	}

	flags := DefaultFeatureFlags()
	if err := json.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("failed to parse feature flags: %w", err)
	}

	m.flags = flags
	return nil
}

// saveToFile saves feature flags to a file
func (m *FeatureFlagManager) saveToFile() error {
	data, err := json.MarshalIndent(m.flags, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal feature flags: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create feature flags directory: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write feature flags file: %w", err)
	}

	return nil
}
