// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe consumer registry for high concurrency.

package session

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-camrelay/api"
)

const defaultShards = 16

// Registry tracks the current set of push consumers.
type Registry struct {
	shards []*registryShard
	mask   uint32
	size   atomic.Int64
}

type registryShard struct {
	mu        sync.RWMutex
	consumers map[string]api.Consumer
}

// Handle is returned by Register and removes exactly that registration.
type Handle struct {
	r    *Registry
	c    api.Consumer
	once sync.Once
}

// NewRegistry constructs a sharded registry with shardCount shards,
// rounded up to a power of two.
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = defaultShards
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*registryShard, m)
	for i := range shards {
		shards[i] = &registryShard{consumers: make(map[string]api.Consumer)}
	}
	return &Registry{shards: shards, mask: m - 1}
}

// shard picks the correct shard for a given id.
func (r *Registry) shard(id string) *registryShard {
	return r.shards[fnv32(id)&r.mask]
}

// Register adds c. Registering a second consumer under an existing ID
// replaces the first one.
func (r *Registry) Register(c api.Consumer) *Handle {
	sh := r.shard(c.ID())
	sh.mu.Lock()
	if _, exists := sh.consumers[c.ID()]; !exists {
		r.size.Add(1)
	}
	sh.consumers[c.ID()] = c
	sh.mu.Unlock()
	return &Handle{r: r, c: c}
}

// Unregister removes the registration. Safe to call more than once.
func (h *Handle) Unregister() {
	h.once.Do(func() {
		h.r.remove(h.c.ID(), h.c)
	})
}

// Unregister removes the consumer with the given id, if any.
// It reports whether something was removed.
func (r *Registry) Unregister(id string) bool {
	return r.remove(id, nil)
}

// remove deletes id; when want is non-nil only that exact consumer is removed,
// so a stale handle cannot evict a newer registration under the same ID.
func (r *Registry) remove(id string, want api.Consumer) bool {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.consumers[id]
	if !ok || (want != nil && c != want) {
		return false
	}
	delete(sh.consumers, id)
	r.size.Add(-1)
	return true
}

// Get fetches a consumer if present.
func (r *Registry) Get(id string) (api.Consumer, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.consumers[id]
	return c, ok
}

// ForEachExcept calls fn once for every consumer registered when the call
// started, skipping the one whose ID equals excluded. An empty excluded
// skips nobody. fn runs without any registry lock held.
func (r *Registry) ForEachExcept(excluded string, fn func(api.Consumer)) {
	for _, c := range r.Snapshot() {
		if excluded != "" && c.ID() == excluded {
			continue
		}
		fn(c)
	}
}

// ForEach calls fn for every registered consumer.
func (r *Registry) ForEach(fn func(api.Consumer)) {
	r.ForEachExcept("", fn)
}

// Snapshot returns the registered consumers at the time of the call.
func (r *Registry) Snapshot() []api.Consumer {
	out := make([]api.Consumer, 0, r.Size())
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, c := range sh.consumers {
			out = append(out, c)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Size returns the number of registered consumers.
func (r *Registry) Size() int {
	return int(r.size.Load())
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
