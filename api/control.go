// File: api/control.go
// Package api defines Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control exposes the effective config and runtime metrics.
type Control interface {
	GetConfig() map[string]any
	SetConfig(cfg map[string]any) error
	Stats() map[string]any
	// Add increments a counter metric by delta.
	Add(key string, delta int64)
	RegisterDebugProbe(name string, fn func() any)
}
