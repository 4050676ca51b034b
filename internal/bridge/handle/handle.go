// Package handle issues opaque integer handles for Go values so that state
// can cross a boundary as a plain number and be resolved on the other side.
package handle

import (
	"sync"
	"sync/atomic"
)

// Handle identifies a value held by a Registry. The zero Handle is never issued.
type Handle uint64

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool {
	return h == 0
}

// Registry maps handles to values of type T. It is safe for concurrent use.
type Registry[T any] struct {
	mu     sync.RWMutex
	values map[Handle]T
	next   atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{values: make(map[Handle]T)}
}

// New stores v and returns a fresh handle for it.
func (r *Registry[T]) New(v T) Handle {
	h := Handle(r.next.Add(1))

	r.mu.Lock()
	r.values[h] = v
	r.mu.Unlock()

	return h
}

// Value resolves a handle. The boolean is false for the zero handle and for
// handles that were never issued or have been deleted.
func (r *Registry[T]) Value(h Handle) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[h]
	return v, ok
}

// Delete releases a handle. Deleting an unknown handle is a no-op.
func (r *Registry[T]) Delete(h Handle) {
	r.mu.Lock()
	delete(r.values, h)
	r.mu.Unlock()
}

// Len returns the number of live handles.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.values)
}
