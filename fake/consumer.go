// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the consumer contracts.

package fake

import (
	"encoding/json"
	"sync"

	"github.com/momentics/hioload-camrelay/api"
)

// Consumer is a fake api.LiveConsumer that records everything sent to it.
type Consumer struct {
	id string

	mu       sync.Mutex
	sent     []api.Message
	attempts int
	sendErr  error
	panicOn  bool
	state    api.ConsumerState
	pings    int
	autoPong bool
	onSend   func(api.Message)

	done      chan struct{}
	closeOnce sync.Once
}

// Compile-time contract check.
var _ api.LiveConsumer = (*Consumer)(nil)

// NewConsumer creates an open, active fake consumer.
func NewConsumer(id string) *Consumer {
	return &Consumer{
		id:    id,
		state: api.StateActive,
		done:  make(chan struct{}),
	}
}

// ID implements api.Consumer.
func (c *Consumer) ID() string { return c.id }

// Open implements api.Consumer.
func (c *Consumer) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != api.StateClosed
}

// Send implements api.Consumer. Every call counts as an attempt, even when
// the configured error makes it fail.
func (c *Consumer) Send(msg api.Message) error {
	c.mu.Lock()
	c.attempts++
	if c.panicOn {
		c.mu.Unlock()
		panic("fake consumer: send panic")
	}
	if c.state == api.StateClosed {
		c.mu.Unlock()
		return api.ErrConsumerClosed
	}
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, msg)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return nil
}

// Ping implements api.LiveConsumer.
func (c *Consumer) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == api.StateClosed {
		return api.ErrConsumerClosed
	}
	c.pings++
	if c.autoPong {
		c.state = api.StateActive
	} else {
		c.state = api.StateProbePending
	}
	return nil
}

// State implements api.LiveConsumer.
func (c *Consumer) State() api.ConsumerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done implements api.LiveConsumer.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// Close implements api.LiveConsumer.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = api.StateClosed
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// Pong simulates the peer answering the last probe.
func (c *Consumer) Pong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == api.StateProbePending {
		c.state = api.StateActive
	}
}

// SetAutoPong makes every probe answered immediately.
func (c *Consumer) SetAutoPong(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoPong = v
}

// SetSendError configures Send to fail with err.
func (c *Consumer) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// SetSendPanic configures Send to panic.
func (c *Consumer) SetSendPanic(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicOn = v
}

// OnSend installs a hook run after every successful Send.
func (c *Consumer) OnSend(fn func(api.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = fn
}

// Attempts returns how many times Send was called.
func (c *Consumer) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Pings returns how many probes were issued.
func (c *Consumer) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// Sent returns a copy of every successfully sent message.
func (c *Consumer) Sent() []api.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentOfKind filters Sent by kind.
func (c *Consumer) SentOfKind(kind api.MessageKind) []api.Message {
	var out []api.Message
	for _, m := range c.Sent() {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// DecodeText unmarshals every text message sent so far into generic maps.
func (c *Consumer) DecodeText() ([]map[string]any, error) {
	var out []map[string]any
	for _, m := range c.SentOfKind(api.TextMessage) {
		var v map[string]any
		if err := json.Unmarshal(m.Payload, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Reset forgets recorded messages.
func (c *Consumer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
	c.attempts = 0
}
