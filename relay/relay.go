// File: relay/relay.go
// Package relay fans inbound push-channel messages out to registered consumers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Binary messages are camera frames: they replace the stored frame and are
// forwarded verbatim to everybody but the producer. Text messages must be JSON;
// they are wrapped in a chat envelope and sent to everybody, sender included.
// Delivery is best-effort throughout and never reports failures to the sender.

package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/momentics/hioload-camrelay/api"
)

// Consumers is the part of the consumer registry the relay iterates.
type Consumers interface {
	ForEachExcept(excluded string, fn func(api.Consumer))
}

// FrameSink receives every inbound frame before it is fanned out.
type FrameSink interface {
	Replace(f *api.Frame)
}

// Result summarises one broadcast.
type Result struct {
	Attempted int // Send calls made
	Delivered int // Send calls that succeeded
	Skipped   int // consumers not open, no Send made
	Failed    int // Send calls that returned an error or panicked
}

// Relay implements api.Handler for the push channel.
type Relay struct {
	consumers Consumers
	frames    FrameSink
	log       *zap.Logger
	control   api.Control
	now       func() time.Time
}

// Option customizes a Relay.
type Option func(*Relay)

// WithLogger sets the logger used for per-consumer send failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

// WithControl enables counters on c.
func WithControl(c api.Control) Option {
	return func(r *Relay) { r.control = c }
}

// WithClock overrides the timestamp source of chat envelopes.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// New builds a Relay. frames may be nil when only fan-out is wanted.
func New(consumers Consumers, frames FrameSink, opts ...Option) *Relay {
	r := &Relay{
		consumers: consumers,
		frames:    frames,
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time contract check.
var _ api.Handler = (*Relay)(nil)

// Handle classifies in by kind and relays it.
func (r *Relay) Handle(in api.Inbound) error {
	switch in.Kind {
	case api.BinaryMessage:
		r.HandleFrame(in.Sender, in.Payload)
		return nil
	case api.TextMessage:
		_, err := r.HandleText(in.Sender, in.Payload)
		return err
	default:
		return fmt.Errorf("relay: %w: %d", api.ErrUnsupportedKind, in.Kind)
	}
}

// HandleFrame stores data as the current frame and sends it to every
// consumer except producer.
func (r *Relay) HandleFrame(producer string, data []byte) Result {
	f := api.NewFrame(data)
	if r.frames != nil {
		r.frames.Replace(f)
	}
	r.count("frames.in", 1)
	return r.Fanout(producer, f)
}

// Fanout sends f to every registered consumer except excluded.
func (r *Relay) Fanout(excluded string, f *api.Frame) Result {
	res := r.Broadcast(excluded, api.Message{Kind: api.BinaryMessage, Payload: f.Data})
	r.count("frames.fanout", int64(res.Delivered))
	return res
}

// HandleText validates payload as UTF-8 JSON and broadcasts it, wrapped in a
// chat envelope, to all consumers including sender. Invalid payloads are not
// broadcast and yield an error wrapping api.ErrMalformedMessage.
func (r *Relay) HandleText(sender string, payload []byte) (Result, error) {
	// json.Valid accepts invalid UTF-8 inside strings; browsers drop the
	// connection on such a text frame.
	if !utf8.Valid(payload) || !json.Valid(payload) {
		r.count("chat.malformed", 1)
		return Result{}, fmt.Errorf("relay: text from %s: %w", sender, api.ErrMalformedMessage)
	}
	r.count("chat.in", 1)
	msg, err := api.TextMessageOf(api.NewChatEnvelope(json.RawMessage(payload), r.now()))
	if err != nil {
		return Result{}, fmt.Errorf("relay: encode chat envelope: %w", err)
	}
	return r.Broadcast("", msg), nil
}

// Broadcast sends msg to every registered consumer except excluded.
// A consumer that is not open is skipped; a failing consumer is logged and
// never prevents delivery to the rest.
func (r *Relay) Broadcast(excluded string, msg api.Message) Result {
	var res Result
	r.consumers.ForEachExcept(excluded, func(c api.Consumer) {
		if !c.Open() {
			res.Skipped++
			return
		}
		res.Attempted++
		if err := r.send(c, msg); err != nil {
			res.Failed++
			r.logSendFailure(c, msg, err)
			return
		}
		res.Delivered++
	})
	if res.Failed > 0 {
		r.count("send.failed", int64(res.Failed))
	}
	if res.Skipped > 0 {
		r.count("send.skipped", int64(res.Skipped))
	}
	return res
}

func (r *Relay) send(c api.Consumer, msg api.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("send panic: %v", p)
		}
	}()
	return c.Send(msg)
}

func (r *Relay) logSendFailure(c api.Consumer, msg api.Message, err error) {
	level := zap.WarnLevel
	if errors.Is(err, api.ErrConsumerClosed) {
		// closed between Open and Send; its own close path cleans up
		level = zap.DebugLevel
	}
	if ce := r.log.Check(level, "send to consumer failed"); ce != nil {
		ce.Write(
			zap.String("consumer", c.ID()),
			zap.Stringer("kind", msg.Kind),
			zap.Int("bytes", len(msg.Payload)),
			zap.Error(err))
	}
}

func (r *Relay) count(key string, delta int64) {
	if r.control != nil {
		r.control.Add(key, delta)
	}
}
