package adapters_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/momentics/hioload-camrelay/adapters"
	"github.com/momentics/hioload-camrelay/api"
)

func TestMiddlewareOrder(t *testing.T) {
	var trace []string
	tag := func(name string) adapters.Middleware {
		return func(next api.Handler) api.Handler {
			return adapters.HandlerFunc(func(in api.Inbound) error {
				trace = append(trace, name)
				return next.Handle(in)
			})
		}
	}
	base := adapters.HandlerFunc(func(api.Inbound) error {
		trace = append(trace, "base")
		return nil
	})

	h := adapters.NewMiddlewareHandler(base).Use(tag("outer")).Use(tag("inner"))
	require.NoError(t, h.Handle(api.Inbound{Kind: api.TextMessage}))
	assert.Equal(t, []string{"outer", "inner", "base"}, trace)
}

func TestMiddlewareChainBuiltOnce(t *testing.T) {
	wraps := 0
	counting := func(next api.Handler) api.Handler {
		wraps++
		return next
	}
	base := adapters.HandlerFunc(func(api.Inbound) error { return nil })

	h := adapters.NewMiddlewareHandler(base).Use(counting)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Handle(api.Inbound{Kind: api.BinaryMessage}))
	}
	assert.Equal(t, 1, wraps)
	assert.NotNil(t, h.Build())
	assert.Equal(t, 1, wraps)

	h.Use(counting)
	require.NoError(t, h.Handle(api.Inbound{Kind: api.BinaryMessage}))
	assert.Equal(t, 3, wraps, "Use rebuilds the chain")
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := adapters.RecoveryMiddleware(zap.New(core))(adapters.HandlerFunc(func(api.Inbound) error {
		panic("boom")
	}))

	err := h.Handle(api.Inbound{Sender: "s", Kind: api.BinaryMessage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered in inbound handler").Len())
}

func TestLoggingAndMetricsMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctrl := adapters.NewControlAdapter()
	failing := adapters.HandlerFunc(func(api.Inbound) error { return api.ErrMalformedMessage })

	h := adapters.NewMiddlewareHandler(failing).
		Use(adapters.MetricsMiddleware(ctrl)).
		Use(adapters.LoggingMiddleware(zap.New(core)))

	err := h.Handle(api.Inbound{Sender: "s", Kind: api.TextMessage, Payload: []byte("nope")})
	assert.True(t, errors.Is(err, api.ErrMalformedMessage))
	assert.Equal(t, 1, logs.FilterMessage("inbound message dropped").Len())
	assert.Equal(t, int64(1), ctrl.Counter("inbound.text"))
	assert.Equal(t, int64(1), ctrl.Counter("inbound.errors"))
}
