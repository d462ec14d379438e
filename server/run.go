// File: server/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Run/Serve lifecycle and graceful shutdown.

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-camrelay/api"
	"github.com/momentics/hioload-camrelay/protocol"
)

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains within
// the configured shutdown timeout. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("relay listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.ctx.Done():
			// Shutdown was called directly.
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown cancels every session, tells push consumers the server is going
// away and waits for the HTTP server and probe loops to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("relay shutting down", zap.Int("consumers", s.registry.Size()))
	s.cancel()

	s.registry.ForEach(func(c api.Consumer) {
		if conn, ok := c.(*protocol.Conn); ok {
			_ = conn.CloseWithCode(websocket.CloseGoingAway, "server shutdown")
		}
	})

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	var err error
	if srv != nil {
		if err = srv.Shutdown(ctx); err != nil {
			err = api.NewError(api.ErrCodeTimeout, "http drain incomplete").Wrap(err)
			_ = srv.Close()
		}
	}

	drained := make(chan struct{})
	go func() {
		s.monitor.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		if err == nil {
			err = api.NewError(api.ErrCodeTimeout, "probe loops still running").Wrap(api.ErrOperationTimeout)
		}
	}
	if err != nil {
		s.log.Warn("shutdown incomplete", zap.Error(err))
		return err
	}
	s.log.Info("relay stopped")
	return nil
}
