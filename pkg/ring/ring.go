// Package ring provides a fixed-capacity circular buffer of the most
// recently added items.
//
// The buffer is safe for concurrent use. Once full, adding a new item
// evicts the oldest. Capacity is fixed at construction and must be positive.
package ring

import (
	"fmt"
	"sync"
)

// CircularBuffer is a fixed-capacity ring of the most recently added items.
//
// Thread-safe for concurrent Add and GetRecentItems calls.
type CircularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	head     int // index of the next write slot
	size     int // number of items currently stored
}

// New creates a CircularBuffer with the given capacity.
//
// Returns an error if capacity is not positive; that is caller misuse, not
// an input-validation outcome.
func New[T any](capacity int) (*CircularBuffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring: capacity must be positive, got %d", capacity)
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}, nil
}

// Capacity returns the fixed capacity set at construction.
func (b *CircularBuffer[T]) Capacity() int {
	return b.capacity
}

// Len returns the number of items currently stored (at most Capacity).
func (b *CircularBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Add inserts an item. When the buffer is full the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// GetRecentItems returns up to n of the most recently added items in
// insertion order, newest last. The result never exceeds
// min(n, Capacity, Len). A non-positive n yields an empty slice.
func (b *CircularBuffer[T]) GetRecentItems(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || b.size == 0 {
		return []T{}
	}
	if n > b.size {
		n = b.size
	}

	out := make([]T, 0, n)
	// Oldest requested item sits n slots behind the head.
	start := (b.head - n + b.capacity*2) % b.capacity
	for i := 0; i < n; i++ {
		out = append(out, b.items[(start+i)%b.capacity])
	}
	return out
}
