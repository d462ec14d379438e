// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Versioned snapshot of the effective relay configuration.

package control

import "sync"

// ConfigStore keeps the last published configuration. Every publish bumps
// the version so diagnostics can tell snapshots apart.
type ConfigStore struct {
	mu      sync.RWMutex
	config  map[string]any
	version uint64
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{config: make(map[string]any)}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// SetConfig merges values into the snapshot and returns the new version.
func (cs *ConfigStore) SetConfig(values map[string]any) uint64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, v := range values {
		cs.config[k] = v
	}
	cs.version++
	return cs.version
}

// Version reports how many times the config was published.
func (cs *ConfigStore) Version() uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.version
}
