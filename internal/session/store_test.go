// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// store_test.go: unit and concurrency tests for Registry.
package session_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-camrelay/api"
	"github.com/momentics/hioload-camrelay/fake"
	"github.com/momentics/hioload-camrelay/internal/session"
)

func ids(r *session.Registry, excluded string) []string {
	var out []string
	r.ForEachExcept(excluded, func(c api.Consumer) { out = append(out, c.ID()) })
	return out
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := session.NewRegistry(8)
	a := r.Register(fake.NewConsumer("a"))
	r.Register(fake.NewConsumer("b"))
	require.Equal(t, 2, r.Size())

	a.Unregister()
	a.Unregister()
	assert.Equal(t, 1, r.Size())
	_, ok := r.Get("a")
	assert.False(t, ok)

	assert.True(t, r.Unregister("b"))
	assert.False(t, r.Unregister("b"))
	assert.Equal(t, 0, r.Size())
}

func TestRegistry_StaleHandleKeepsNewerRegistration(t *testing.T) {
	r := session.NewRegistry(4)
	old := r.Register(fake.NewConsumer("same"))
	newer := fake.NewConsumer("same")
	r.Register(newer)
	require.Equal(t, 1, r.Size())

	old.Unregister()
	got, ok := r.Get("same")
	require.True(t, ok)
	assert.Same(t, newer, got)
	assert.Equal(t, 1, r.Size())
}

func TestRegistry_ForEachExcept(t *testing.T) {
	r := session.NewRegistry(0)
	for _, id := range []string{"p", "a", "b"} {
		r.Register(fake.NewConsumer(id))
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids(r, "p"))
	assert.ElementsMatch(t, []string{"p", "a", "b"}, ids(r, ""))
	assert.ElementsMatch(t, []string{"p", "a", "b"}, ids(r, "absent"))
}

// Callbacks may mutate the registry without deadlocking.
func TestRegistry_MutateDuringIteration(t *testing.T) {
	r := session.NewRegistry(2)
	for i := 0; i < 10; i++ {
		r.Register(fake.NewConsumer(fmt.Sprintf("c-%d", i)))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ForEach(func(c api.Consumer) {
			r.Unregister(c.ID())
			r.Register(fake.NewConsumer("late-" + c.ID()))
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("iteration deadlocked")
	}
	assert.Equal(t, 10, r.Size())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := session.NewRegistry(32)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h := r.Register(fake.NewConsumer(fmt.Sprintf("sess-%d", i)))
			if i%2 == 0 {
				h.Unregister()
			}
		}(i)
		go func() {
			defer wg.Done()
			r.ForEach(func(api.Consumer) {})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Size())
	assert.Len(t, r.Snapshot(), 50)
}
