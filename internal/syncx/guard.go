// Package syncx provides extended synchronization primitives
package syncx

import "sync"

// Guard holds a value behind an RWMutex. Readers always receive a copy, so T
// should be a value type whose fields are not shared slices or maps.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Get returns a copy of the value.
func (g *Guard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set atomically replaces the value.
func (g *Guard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Update computes the next value from the current one under the write lock.
// fn receives a copy; its return value replaces the guarded value wholesale.
func (g *Guard[T]) Update(fn func(T) T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = fn(g.value)
	return g.value
}
