// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-camrelay/api"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the root logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLogLevel exposes level on /debug/loglevel.
func WithLogLevel(level zap.AtomicLevel) ServerOption {
	return func(s *Server) {
		s.level = level
		s.hasLevel = true
	}
}

// WithControl replaces the default metrics/debug control.
func WithControl(c api.Control) ServerOption {
	return func(s *Server) {
		if c != nil {
			s.control = c
		}
	}
}

// WithWelcome overrides the greeting sent to new push consumers.
func WithWelcome(text string) ServerOption {
	return func(s *Server) { s.welcome = text }
}
