// File: stream/streamer.go
// Package stream serves the latest frame as an endless multipart/x-mixed-replace body.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every pull request gets its own ticker. On each tick the current frame, if
// any, is written as one part; ticks without a frame emit nothing. The loop
// and its ticker end with the request.

package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-camrelay/api"
)

// Boundary separates parts of the stream.
const Boundary = "frame"

// ContentType is the response media type of the stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// DefaultInterval is the reference tick cadence.
const DefaultInterval = 200 * time.Millisecond

var (
	partHeader  = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	partTrailer = []byte("\r\n")
)

// FrameSource is read on every tick.
type FrameSource interface {
	Current() (*api.Frame, bool)
}

// Streamer is the pull-side http.Handler.
type Streamer struct {
	source       FrameSource
	interval     time.Duration
	writeTimeout time.Duration
	log          *zap.Logger
	control      api.Control
	active       atomic.Int64
}

// Option customizes a Streamer.
type Option func(*Streamer)

// WithInterval sets the tick cadence. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Streamer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWriteTimeout bounds every part write; zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Streamer) { s.writeTimeout = d }
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Streamer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithControl enables counters on c.
func WithControl(c api.Control) Option {
	return func(s *Streamer) { s.control = c }
}

// New builds a Streamer reading from source.
func New(source FrameSource, opts ...Option) *Streamer {
	s := &Streamer{
		source:   source,
		interval: DefaultInterval,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Active returns the number of pull sessions currently streaming.
func (s *Streamer) Active() int64 {
	return s.active.Load()
}

// ServeHTTP streams until the client goes away or the server shuts down.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "close")
	h.Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return
	}

	log := s.log.With(zap.String("remote", r.RemoteAddr))
	log.Debug("pull session started")
	err := s.Stream(r.Context(), &deadlineWriter{w: w, rc: rc, timeout: s.writeTimeout})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("pull session ended", zap.Error(err))
		return
	}
	log.Debug("pull session ended")
}

// Stream runs the tick loop, writing parts to w, until ctx is done or a
// write fails. If w implements Flush() error it is flushed after each part.
func (s *Streamer) Stream(ctx context.Context, w io.Writer) error {
	s.active.Add(1)
	s.count("pull.sessions", 1)
	defer s.active.Add(-1)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		// the request may have ended while we waited
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f, ok := s.source.Current()
		if !ok {
			continue
		}
		if err := WritePart(w, f.Data); err != nil {
			return err
		}
		if fl, ok := w.(interface{ Flush() error }); ok {
			if err := fl.Flush(); err != nil {
				return err
			}
		}
		s.count("pull.parts", 1)
	}
}

// WritePart writes one multipart part carrying data.
func WritePart(w io.Writer, data []byte) error {
	if _, err := w.Write(partHeader); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write(partTrailer)
	return err
}

func (s *Streamer) count(key string, delta int64) {
	if s.control != nil {
		s.control.Add(key, delta)
	}
}

// deadlineWriter arms a write deadline before each part and flushes after it.
type deadlineWriter struct {
	w       io.Writer
	rc      *http.ResponseController
	timeout time.Duration
	armed   bool
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if d.timeout > 0 && !d.armed {
		d.armed = true
		err := d.rc.SetWriteDeadline(time.Now().Add(d.timeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return 0, err
		}
	}
	return d.w.Write(p)
}

func (d *deadlineWriter) Flush() error {
	d.armed = false
	err := d.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
