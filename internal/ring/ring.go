// ABOUTME: Fixed-capacity FIFO buffer that evicts the oldest element on overflow.
// ABOUTME: Backs agent log lines and command history.

package ring

// Buffer holds at most Cap elements, dropping the oldest when full.
// It is not safe for concurrent use; callers provide their own locking.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// New creates a buffer with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element if the buffer is full.
// Returns true if an element was evicted.
func (b *Buffer[T]) Push(v T) bool {
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = v
		b.size++
		return false
	}

	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
	return true
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Last returns up to n of the most recent elements, oldest first.
// A non-positive n returns nil.
func (b *Buffer[T]) Last(n int) []T {
	if n <= 0 || b.size == 0 {
		return nil
	}
	if n > b.size {
		n = b.size
	}

	out := make([]T, n)
	start := b.head + b.size - n
	for i := range n {
		out[i] = b.items[(start+i)%len(b.items)]
	}
	return out
}

// All returns every stored element, oldest first.
func (b *Buffer[T]) All() []T {
	return b.Last(b.size)
}
