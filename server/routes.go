// File: server/routes.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/momentics/hioload-camrelay/api"
	"github.com/momentics/hioload-camrelay/protocol"
)

// clientsReport is the body of GET /clients.
type clientsReport struct {
	ClientCount  int   `json:"clientCount"`
	PullSessions int64 `json:"pullSessions"`
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handlePush).Methods(http.MethodGet)
	r.HandleFunc("/video", s.handlePull).Methods(http.MethodGet)
	r.HandleFunc("/clients", s.handleClients).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)

	dbg := r.PathPrefix("/debug").Subrouter()
	dbg.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	dbg.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	if s.hasLevel {
		dbg.Handle("/loglevel", s.level).Methods(http.MethodGet, http.MethodPut)
	}
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if protocol.IsUpgrade(r) {
		s.handlePush(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingPage.Execute(w, landingData{Welcome: s.welcome}); err != nil {
		s.log.Debug("landing page write failed", zap.Error(err))
	}
}

// handlePush runs one push session from upgrade to disconnect.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if s.pushSlots != nil {
		if !s.pushSlots.TryAcquire(1) {
			s.reject(w, "push", s.cfg.MaxConsumers)
			return
		}
		defer s.pushSlots.Release(1)
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.log.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn := protocol.NewConn(ws, s.connCfg, s.log.Named("conn"))
	log := s.log.With(zap.String("consumer", conn.ID()), zap.String("remote", r.RemoteAddr))

	handle := s.registry.Register(conn)
	stopProbe := s.monitor.Watch(s.ctx, conn)
	log.Info("consumer connected")
	s.control.Add("push.sessions", 1)

	go func() {
		select {
		case <-s.ctx.Done():
			_ = conn.CloseWithCode(websocket.CloseGoingAway, "server shutdown")
		case <-conn.Done():
		}
	}()

	defer func() {
		stopProbe()
		handle.Unregister()
		_ = conn.Close()
		s.monitor.Announce(api.PresenceEvent{ConsumerID: conn.ID(), Joined: false})
		st := conn.Stats()
		log.Info("consumer disconnected",
			zap.Uint64("frames_sent", st.FramesSent),
			zap.Uint64("frames_dropped", st.FramesDropped),
			zap.Uint64("chat_throttled", st.ChatThrottled))
	}()

	if err := s.monitor.Welcome(conn); err != nil {
		log.Warn("welcome not delivered", zap.Error(err))
	}
	s.monitor.Announce(api.PresenceEvent{ConsumerID: conn.ID(), Joined: true})

	if err := conn.ReadLoop(s.inbound); err != nil {
		log.Debug("read loop ended", zap.Error(err))
	}
}

// handlePull serves GET /video. The request context is tied to the serving
// context so shutdown ends the stream even without http.Server.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	if s.pullSlots != nil {
		if !s.pullSlots.TryAcquire(1) {
			s.reject(w, "pull", s.cfg.MaxPullSessions)
			return
		}
		defer s.pullSlots.Release(1)
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	s.streamer.ServeHTTP(w, r.WithContext(ctx))
}

func (s *Server) reject(w http.ResponseWriter, channel string, limit int64) {
	err := api.NewError(api.ErrCodeResourceExhausted, "session limit reached").
		WithContext("channel", channel).
		WithContext("limit", limit).
		Wrap(api.ErrCapacityReached)
	s.log.Warn("session rejected", zap.Error(err))
	s.control.Add("admission.rejected."+channel, 1)
	http.Error(w, err.Error(), http.StatusServiceUnavailable)
}

func (s *Server) handleClients(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, clientsReport{
		ClientCount:  s.registry.Size(),
		PullSessions: s.streamer.Active(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.control.Stats())
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.control.GetConfig())
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("json response failed", zap.Error(err))
	}
}
