// File: framestore/store.go
// Package framestore holds the most recently received camera frame.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Store is a single-slot, last-write-wins holder. Writers swap a pointer,
// readers load it; a reader therefore sees either no frame or one complete
// frame, never a mix of two.

package framestore

import (
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-camrelay/api"
)

// Store keeps the latest frame. The zero value is ready to use.
type Store struct {
	cur      atomic.Pointer[api.Frame]
	replaced atomic.Uint64
}

// Stats is a diagnostic snapshot of the store.
type Stats struct {
	Replaced uint64
	HasFrame bool
	LastSize int
	LastAt   time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Replace atomically installs f, discarding the previous frame.
// It does not notify anybody. A nil frame is ignored.
func (s *Store) Replace(f *api.Frame) {
	if f == nil {
		return
	}
	s.cur.Store(f)
	s.replaced.Add(1)
}

// Current returns the latest frame, or false if none was stored yet.
func (s *Store) Current() (*api.Frame, bool) {
	f := s.cur.Load()
	return f, f != nil
}

// Stats reports how many frames were stored and what the latest one looks like.
func (s *Store) Stats() Stats {
	st := Stats{Replaced: s.replaced.Load()}
	if f := s.cur.Load(); f != nil {
		st.HasFrame = true
		st.LastSize = len(f.Data)
		st.LastAt = f.ReceivedAt
	}
	return st
}
