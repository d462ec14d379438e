// File: adapters/handler_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// HandlerFunc glue and extensible middleware for inbound push-channel messages.

package adapters

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-camrelay/api"
)

// HandlerFunc converts a function into an api.Handler.
type HandlerFunc func(in api.Inbound) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(in api.Inbound) error {
	return f(in)
}

// Middleware decorates an api.Handler.
type Middleware func(api.Handler) api.Handler

// MiddlewareHandler wraps a base Handler and applies middleware in chain.
// The composed chain is built once and reused until Use changes it.
type MiddlewareHandler struct {
	handler    api.Handler
	middleware []Middleware

	mu    sync.Mutex
	built api.Handler
}

// NewMiddlewareHandler creates a new MiddlewareHandler for the given base handler.
func NewMiddlewareHandler(handler api.Handler) *MiddlewareHandler {
	return &MiddlewareHandler{
		handler:    handler,
		middleware: make([]Middleware, 0),
	}
}

// Use appends a middleware to the chain. The first middleware added is the
// outermost one.
func (m *MiddlewareHandler) Use(mw Middleware) *MiddlewareHandler {
	m.mu.Lock()
	m.middleware = append(m.middleware, mw)
	m.built = nil
	m.mu.Unlock()
	return m
}

// Build returns the composed chain. The result is safe for concurrent use
// as long as the base handler and every middleware are.
func (m *MiddlewareHandler) Build() api.Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.built == nil {
		h := m.handler
		for i := len(m.middleware) - 1; i >= 0; i-- {
			h = m.middleware[i](h)
		}
		m.built = h
	}
	return m.built
}

// Handle runs in through the composed chain.
func (m *MiddlewareHandler) Handle(in api.Inbound) error {
	return m.Build().Handle(in)
}

// LoggingMiddleware logs handler errors with the sender and message kind.
// Errors are reported to the caller unchanged.
func LoggingMiddleware(log *zap.Logger) Middleware {
	return func(next api.Handler) api.Handler {
		return HandlerFunc(func(in api.Inbound) error {
			err := next.Handle(in)
			if err != nil {
				log.Warn("inbound message dropped",
					zap.String("sender", in.Sender),
					zap.Stringer("kind", in.Kind),
					zap.Int("bytes", len(in.Payload)),
					zap.Error(err))
			} else if ce := log.Check(zap.DebugLevel, "inbound message handled"); ce != nil {
				ce.Write(zap.String("sender", in.Sender), zap.Stringer("kind", in.Kind), zap.Int("bytes", len(in.Payload)))
			}
			return err
		})
	}
}

// RecoveryMiddleware turns a panic in the handler into an error so that one
// bad message never takes the connection or the process down.
func RecoveryMiddleware(log *zap.Logger) Middleware {
	return func(next api.Handler) api.Handler {
		return HandlerFunc(func(in api.Inbound) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in inbound handler",
						zap.String("sender", in.Sender),
						zap.Any("panic", r),
						zap.Stack("stack"))
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next.Handle(in)
		})
	}
}

// MetricsMiddleware counts handled messages and failures per kind.
func MetricsMiddleware(control api.Control) Middleware {
	return func(next api.Handler) api.Handler {
		return HandlerFunc(func(in api.Inbound) error {
			control.Add("inbound."+in.Kind.String(), 1)
			err := next.Handle(in)
			if err != nil {
				control.Add("inbound.errors", 1)
			}
			return err
		})
	}
}
