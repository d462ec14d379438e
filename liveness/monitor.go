// File: liveness/monitor.go
// Package liveness probes push consumers and announces presence changes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every watched consumer gets its own ticker goroutine. A tick that finds the
// previous probe still unanswered closes the consumer; the connection's own
// close path then removes it from the registry.

package liveness

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-camrelay/api"
)

// DefaultInterval is the reference probe cadence.
const DefaultInterval = 30 * time.Second

// DefaultWelcome is the greeting sent to every new consumer.
const DefaultWelcome = "Connected to camera relay"

// Consumers is the part of the registry the monitor needs.
type Consumers interface {
	ForEach(fn func(api.Consumer))
	Size() int
}

// Monitor owns the probe loops of all push consumers.
type Monitor struct {
	consumers Consumers
	interval  time.Duration
	welcome   string
	log       *zap.Logger
	control   api.Control
	wg        sync.WaitGroup
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe cadence. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithWelcome overrides the greeting text.
func WithWelcome(text string) Option {
	return func(m *Monitor) { m.welcome = text }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithControl enables counters on c.
func WithControl(c api.Control) Option {
	return func(m *Monitor) { m.control = c }
}

// New builds a Monitor over consumers.
func New(consumers Consumers, opts ...Option) *Monitor {
	m := &Monitor{
		consumers: consumers,
		interval:  DefaultInterval,
		welcome:   DefaultWelcome,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Watch starts the probe loop of c. The loop ends when ctx is done, when c
// closes, when a probe goes unanswered for a whole interval, or when the
// returned stop func is called. stop is idempotent and waits for the loop.
func (m *Monitor) Watch(ctx context.Context, c api.LiveConsumer) (stop func()) {
	quit := make(chan struct{})
	exited := make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(exited)
		m.probeLoop(ctx, c, quit)
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(quit) })
		<-exited
	}
}

func (m *Monitor) probeLoop(ctx context.Context, c api.LiveConsumer, quit <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	log := m.log.With(zap.String("consumer", c.ID()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-c.Done():
			return
		case <-ticker.C:
		}

		if !c.Open() {
			return
		}
		if c.State() == api.StateProbePending {
			log.Info("closing consumer", zap.Error(api.ErrProbeUnanswered))
			m.count("liveness.pruned", 1)
			c.Close()
			return
		}
		if err := c.Ping(); err != nil {
			log.Debug("liveness probe failed", zap.Error(err))
			if !c.Open() {
				return
			}
			continue
		}
		m.count("liveness.probes", 1)
	}
}

// Wait blocks until every probe loop has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Welcome sends the one-shot greeting to c.
func (m *Monitor) Welcome(c api.Consumer) error {
	msg, err := api.TextMessageOf(api.WelcomeEnvelope{
		Type:        api.WelcomeType,
		Message:     m.welcome,
		ClientCount: m.consumers.Size(),
	})
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Announce broadcasts the current consumer count to every registered
// consumer. Failures are logged and skipped. It returns the number of
// consumers the count was delivered to.
func (m *Monitor) Announce(ev api.PresenceEvent) int {
	count := m.consumers.Size()
	msg, err := api.TextMessageOf(api.PresenceEnvelope{ClientCount: count})
	if err != nil {
		m.log.Error("encode presence", zap.Error(err))
		return 0
	}
	m.log.Info("consumer presence changed",
		zap.String("consumer", ev.ConsumerID),
		zap.Bool("joined", ev.Joined),
		zap.Int("clients", count))

	delivered := 0
	m.consumers.ForEach(func(c api.Consumer) {
		if !c.Open() {
			return
		}
		if err := safeSend(c, msg); err != nil {
			m.log.Debug("presence not delivered", zap.String("consumer", c.ID()), zap.Error(err))
			m.count("send.failed", 1)
			return
		}
		delivered++
	})
	return delivered
}

func safeSend(c api.Consumer, msg api.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = api.NewError(api.ErrCodeInternal, "send panic").WithContext("panic", p)
		}
	}()
	return c.Send(msg)
}

func (m *Monitor) count(key string, delta int64) {
	if m.control != nil {
		m.control.Add(key, delta)
	}
}
