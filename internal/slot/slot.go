// Package slot provides a mutex-guarded single-value mailbox shared between
// one writer and any number of readers.
package slot

import "sync"

// Slot holds the latest published value of T.
// Readers get a clone and never hold the lock while working with it.
type Slot[T any] struct {
	mu    sync.RWMutex
	value T
	seq   uint64
	clone func(T) T
}

// New creates a slot. clone may be nil for plain value types.
func New[T any](clone func(T) T) *Slot[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Slot[T]{clone: clone}
}

// Publish replaces the held value.
func (s *Slot[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = s.clone(v)
	s.seq++
}

// Snapshot returns a clone of the held value.
func (s *Slot[T]) Snapshot() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clone(s.value)
}

// Seq returns the number of values published so far.
func (s *Slot[T]) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}
