// File: server/server.go
// Package server wires the relay core into an HTTP process: the push
// websocket endpoint, the pull multipart endpoint and the diagnostics routes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/momentics/hioload-camrelay/adapters"
	"github.com/momentics/hioload-camrelay/api"
	"github.com/momentics/hioload-camrelay/framestore"
	"github.com/momentics/hioload-camrelay/internal/session"
	"github.com/momentics/hioload-camrelay/liveness"
	"github.com/momentics/hioload-camrelay/protocol"
	"github.com/momentics/hioload-camrelay/relay"
	"github.com/momentics/hioload-camrelay/stream"
)

// Server is the relay process facade.
type Server struct {
	cfg      *Config
	log      *zap.Logger
	level    zap.AtomicLevel
	hasLevel bool
	control  api.Control
	welcome  string

	store    *framestore.Store
	registry *session.Registry
	relay    *relay.Relay
	inbound  api.Handler
	monitor  *liveness.Monitor
	streamer *stream.Streamer
	upgrader *websocket.Upgrader
	connCfg  protocol.Config
	router   *mux.Router

	pushSlots *semaphore.Weighted
	pullSlots *semaphore.Weighted

	// ctx is the serving context; it is cancelled at shutdown and ends
	// every push and pull session.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	httpSrv *http.Server
}

// Compile-time contract check.
var _ api.GracefulShutdown = (*Server)(nil)

// New builds a Server from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		log:     zap.NewNop(),
		control: adapters.NewControlAdapter(),
		welcome: liveness.DefaultWelcome,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.control.SetConfig(cfg.Snapshot()); err != nil {
		return nil, fmt.Errorf("publish config: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.store = framestore.New()
	s.registry = session.NewRegistry(cfg.RegistryShards)
	s.relay = relay.New(s.registry, s.store,
		relay.WithLogger(s.log.Named("relay")),
		relay.WithControl(s.control))
	s.inbound = adapters.NewMiddlewareHandler(s.relay).
		Use(adapters.MetricsMiddleware(s.control)).
		Use(adapters.LoggingMiddleware(s.log.Named("inbound"))).
		Use(adapters.RecoveryMiddleware(s.log.Named("inbound"))).
		Build()
	s.monitor = liveness.New(s.registry,
		liveness.WithInterval(cfg.ProbeInterval),
		liveness.WithWelcome(s.welcome),
		liveness.WithLogger(s.log.Named("liveness")),
		liveness.WithControl(s.control))
	s.streamer = stream.New(s.store,
		stream.WithInterval(cfg.PullInterval),
		stream.WithWriteTimeout(cfg.writeTimeout()),
		stream.WithLogger(s.log.Named("stream")),
		stream.WithControl(s.control))
	s.upgrader = protocol.NewUpgrader()
	s.connCfg = protocol.Config{
		WriteTimeout: cfg.writeTimeout(),
		ControlQueue: cfg.ControlQueue,
		ReadLimit:    cfg.MaxMessageBytes,
		ChatRate:     rate.Limit(cfg.chatRate()),
		ChatBurst:    cfg.ChatBurst,
	}
	if cfg.MaxConsumers > 0 {
		s.pushSlots = semaphore.NewWeighted(cfg.MaxConsumers)
	}
	if cfg.MaxPullSessions > 0 {
		s.pullSlots = semaphore.NewWeighted(cfg.MaxPullSessions)
	}

	s.registerProbes()
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Control returns the control surface used for metrics and probes.
func (s *Server) Control() api.Control {
	return s.control
}

// ConsumerCount returns the number of registered push consumers.
func (s *Server) ConsumerCount() int {
	return s.registry.Size()
}

// PullSessions returns the number of live pull sessions.
func (s *Server) PullSessions() int64 {
	return s.streamer.Active()
}

func (s *Server) registerProbes() {
	s.control.RegisterDebugProbe("consumers", func() any { return s.registry.Size() })
	s.control.RegisterDebugProbe("pull_sessions", func() any { return s.streamer.Active() })
	s.control.RegisterDebugProbe("framestore", func() any { return s.store.Stats() })
}
