package inflight

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Registry holds broker message handles that must be settled through the
// object they were received as. Handles are keyed by a generated ack id.
type Registry[T any] struct {
	prefix string
	seq    atomic.Uint64

	m  map[string]T
	mu sync.Mutex
}

func New[T any](prefix string) *Registry[T] {
	return &Registry[T]{
		prefix: prefix,
		m:      make(map[string]T),
	}
}

func (r *Registry[T]) Put(v T) string {
	id := r.prefix + strconv.FormatUint(r.seq.Add(1), 10)

	r.mu.Lock()
	r.m[id] = v
	r.mu.Unlock()

	return id
}

func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.m[id]
	return v, ok
}

// Take removes and returns the handle for id.
func (r *Registry[T]) Take(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.m[id]
	if ok {
		delete(r.m, id)
	}
	return v, ok
}

// Restore puts a handle back after a failed settlement so that it can be
// retried.
func (r *Registry[T]) Restore(id string, v T) {
	r.mu.Lock()
	r.m[id] = v
	r.mu.Unlock()
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.m)
}

// Clear drops every handle, for example when the connection that owns them
// is gone.
func (r *Registry[T]) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.m)
	clear(r.m)
	return n
}
