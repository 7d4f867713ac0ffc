// Package ringbuf provides a fixed-capacity circular buffer with explicit
// head/tail cursors.
//
// The buffer never grows and never overwrites: a Put on a full ring is
// rejected. Storage is allocated once in New and reused for the lifetime of
// the ring, so the append path is allocation-free.
//
// A Ring is not safe for concurrent use. The owner serializes access.
package ringbuf

// Ring is a fixed-capacity FIFO addressed by wrapping head/tail cursors.
//
// Layout:
//   - storage: N slots, owned by the ring
//   - head:    next write slot (0..N-1)
//   - tail:    oldest unread slot (0..N-1)
//   - count:   number of live elements (0..N)
//
// Full and empty both have head == tail; count tells them apart.
type Ring[T any] struct {
	storage []T
	head    int
	tail    int
	count   int
}

// New allocates a ring holding exactly n elements. Panics if n <= 0.
func New[T any](n int) *Ring[T] {
	if n <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Ring[T]{storage: make([]T, n)}
}

// Put stores item at head and advances head.
// Returns false without touching any state when the ring is full.
//
// Complexity: O(1) time, O(1) space
func (r *Ring[T]) Put(item T) bool {
	if r.count == len(r.storage) {
		return false
	}
	r.storage[r.head] = item
	r.head = r.advance(r.head)
	r.count++
	return true
}

// Get removes and returns the element at tail.
// On an empty ring it returns the zero value and false.
//
// Complexity: O(1) time, O(1) space
func (r *Ring[T]) Get() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	item := r.storage[r.tail]
	r.tail = r.advance(r.tail)
	r.count--
	return item, true
}

// Reset logically empties the ring. Storage is not scrubbed; stale slots are
// never read before being overwritten by Put.
func (r *Ring[T]) Reset() {
	r.head = 0
	r.tail = 0
	r.count = 0
}

// Size returns the number of live elements.
func (r *Ring[T]) Size() int { return r.count }

// Cap returns the fixed capacity N.
func (r *Ring[T]) Cap() int { return len(r.storage) }

// Free returns how many more elements Put will accept.
func (r *Ring[T]) Free() int { return len(r.storage) - r.count }

// Empty reports whether the ring holds no elements.
func (r *Ring[T]) Empty() bool { return r.count == 0 }

// Full reports whether the ring holds N elements.
func (r *Ring[T]) Full() bool { return r.count == len(r.storage) }

// Head returns the index of the next write slot.
func (r *Ring[T]) Head() int { return r.head }

// Tail returns the index of the oldest unread element.
func (r *Ring[T]) Tail() int { return r.tail }

// Storage exposes the backing slice so callers can compute linear spans
// without consuming elements. Callers must not modify it.
func (r *Ring[T]) Storage() []T { return r.storage }

func (r *Ring[T]) advance(i int) int {
	i++
	if i == len(r.storage) {
		return 0
	}
	return i
}
