// File: protocol/wsconn.go
// Package protocol adapts websocket connections to the relay's consumer contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Each Conn owns one writer goroutine. Send never writes to the socket; it
// parks the message in a mailbox and wakes the writer. The mailbox holds at
// most one pending frame (a newer frame replaces an unsent one) and a bounded
// FIFO of text messages, which are written first.

package protocol

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/momentics/hioload-camrelay/api"
)

// Config holds per-connection limits.
type Config struct {
	WriteTimeout time.Duration // deadline for every write, 0 = none
	ControlQueue int           // max pending text messages
	ReadLimit    int64         // max inbound message size, 0 = unlimited
	ChatRate     rate.Limit    // inbound text messages per second, 0 = unlimited
	ChatBurst    int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		ControlQueue: 64,
		ReadLimit:    4 << 20,
		ChatRate:     20,
		ChatBurst:    40,
	}
}

// Stats counts mailbox outcomes of one connection.
type Stats struct {
	FramesSent    uint64
	FramesDropped uint64
	TextSent      uint64
	ChatThrottled uint64
}

// Conn is a push-channel peer backed by a websocket.
type Conn struct {
	id  string
	ws  *websocket.Conn
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	frame []byte
	text  *queue.Queue

	state      atomic.Int32
	framesSent atomic.Uint64
	dropped    atomic.Uint64
	textSent   atomic.Uint64
	throttled  atomic.Uint64

	limiter    *rate.Limiter
	wake       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	writerDone chan struct{}
}

// Compile-time contract check.
var _ api.LiveConsumer = (*Conn)(nil)

// NewConn wraps ws, assigns it a fresh identity and starts its writer.
func NewConn(ws *websocket.Conn, cfg Config, log *zap.Logger) *Conn {
	c := newConn(ws, cfg, log)
	if cfg.ReadLimit > 0 {
		ws.SetReadLimit(cfg.ReadLimit)
	}
	ws.SetPongHandler(func(string) error {
		c.state.CompareAndSwap(int32(api.StateProbePending), int32(api.StateActive))
		return nil
	})
	go c.writeLoop()
	c.state.CompareAndSwap(int32(api.StateConnecting), int32(api.StateActive))
	return c
}

func newConn(ws *websocket.Conn, cfg Config, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ControlQueue <= 0 {
		cfg.ControlQueue = DefaultConfig().ControlQueue
	}
	id := uuid.NewString()
	c := &Conn{
		id:         id,
		ws:         ws,
		cfg:        cfg,
		log:        log.With(zap.String("consumer", id)),
		text:       queue.New(),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	if cfg.ChatRate > 0 {
		burst := cfg.ChatBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.ChatRate, burst)
	}
	c.state.Store(int32(api.StateConnecting))
	return c
}

// ID implements api.Consumer.
func (c *Conn) ID() string { return c.id }

// Open implements api.Consumer.
func (c *Conn) Open() bool {
	return c.State() != api.StateClosed
}

// State implements api.LiveConsumer.
func (c *Conn) State() api.ConsumerState {
	return api.ConsumerState(c.state.Load())
}

// Done implements api.LiveConsumer.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Stats returns mailbox counters.
func (c *Conn) Stats() Stats {
	return Stats{
		FramesSent:    c.framesSent.Load(),
		FramesDropped: c.dropped.Load(),
		TextSent:      c.textSent.Load(),
		ChatThrottled: c.throttled.Load(),
	}
}

// Send implements api.Consumer. It never blocks on the network.
func (c *Conn) Send(msg api.Message) error {
	if !c.Open() {
		return api.ErrConsumerClosed
	}
	c.mu.Lock()
	switch msg.Kind {
	case api.BinaryMessage:
		if c.frame != nil {
			c.dropped.Add(1)
		}
		c.frame = msg.Payload
	case api.TextMessage:
		if c.text.Length() >= c.cfg.ControlQueue {
			c.mu.Unlock()
			return api.ErrSendQueueFull
		}
		c.text.Add(msg.Payload)
	default:
		c.mu.Unlock()
		return fmt.Errorf("protocol: %w: %d", api.ErrUnsupportedKind, msg.Kind)
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Ping implements api.LiveConsumer. The pong is observed by the read loop.
func (c *Conn) Ping() error {
	if !c.Open() {
		return api.ErrConsumerClosed
	}
	c.state.CompareAndSwap(int32(api.StateActive), int32(api.StateProbePending))
	return c.ws.WriteControl(websocket.PingMessage, nil, c.deadline())
}

// Close implements api.LiveConsumer with a normal closure.
func (c *Conn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode sends a close frame with code and reason, then closes the
// socket. Only the first call has any effect.
func (c *Conn) CloseWithCode(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(api.StateClosed))
		close(c.done)
		if c.ws == nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, reason)
		if werr := c.ws.WriteControl(websocket.CloseMessage, msg, c.deadline()); werr != nil &&
			!errors.Is(werr, websocket.ErrCloseSent) {
			c.log.Debug("close frame not sent", zap.Error(werr))
		}
		err = c.ws.Close()
	})
	return err
}

// ReadLoop reads messages until the peer goes away and hands each one to h.
// Handler errors are the handler's business; they never end the loop.
// The returned error is nil for a normal closure.
func (c *Conn) ReadLoop(h api.Handler) error {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
				!c.Open() {
				return nil
			}
			return err
		}
		var kind api.MessageKind
		switch mt {
		case websocket.BinaryMessage:
			kind = api.BinaryMessage
		case websocket.TextMessage:
			kind = api.TextMessage
			if !utf8.Valid(data) {
				c.log.Debug("text message is not valid utf-8, closing peer")
				_ = c.CloseWithCode(websocket.CloseInvalidFramePayloadData, "invalid utf-8")
				return nil
			}
			if c.limiter != nil && !c.limiter.Allow() {
				c.throttled.Add(1)
				c.log.Debug("text message throttled")
				continue
			}
		default:
			continue
		}
		_ = h.Handle(api.Inbound{Sender: c.id, Kind: kind, Payload: data})
	}
}

// writeLoop drains the mailbox until the connection closes.
func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			kind, payload, ok := c.next()
			if !ok {
				break
			}
			if err := c.write(kind, payload); err != nil {
				if c.Open() {
					c.log.Debug("write failed, closing consumer", zap.Error(err))
				}
				_ = c.CloseWithCode(websocket.CloseInternalServerErr, "write failed")
				return
			}
		}
	}
}

// next pops the next message to write: queued text first, then the frame.
func (c *Conn) next() (api.MessageKind, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.text.Length() > 0 {
		return api.TextMessage, c.text.Remove().([]byte), true
	}
	if c.frame != nil {
		f := c.frame
		c.frame = nil
		return api.BinaryMessage, f, true
	}
	return 0, nil, false
}

func (c *Conn) write(kind api.MessageKind, payload []byte) error {
	if c.cfg.WriteTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	mt := websocket.BinaryMessage
	if kind == api.TextMessage {
		mt = websocket.TextMessage
	}
	if err := c.ws.WriteMessage(mt, payload); err != nil {
		return err
	}
	if kind == api.TextMessage {
		c.textSent.Add(1)
	} else {
		c.framesSent.Add(1)
	}
	return nil
}

func (c *Conn) deadline() time.Time {
	if c.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.cfg.WriteTimeout)
}
