// Package ringbuf provides a fixed-capacity FIFO ring that silently evicts its
// oldest element when a push would exceed capacity. It backs the rolling
// lookback windows and is not safe for concurrent use.
package ringbuf

// Ring is a bounded FIFO. Len never exceeds Cap.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int

	evicted uint64
}

// New creates a ring holding at most capacity elements. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest element is dropped and
// returned with ok=true.
func (r *Ring[T]) Push(v T) (dropped T, ok bool) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return dropped, false
	}

	dropped = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	r.evicted++
	return dropped, true
}

// At returns the i-th element, 0 being the oldest. It panics when i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Oldest returns the first element in insertion order.
func (r *Ring[T]) Oldest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.buf[r.head], true
}

// Newest returns the most recently pushed element.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.At(r.count - 1), true
}

// Slice copies the contents oldest-first into a new slice.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.count)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Do calls fn for each element oldest-first.
func (r *Ring[T]) Do(fn func(T)) {
	for i := 0; i < r.count; i++ {
		fn(r.buf[(r.head+i)%len(r.buf)])
	}
}

// Len returns the current number of elements.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Full reports whether Len equals Cap.
func (r *Ring[T]) Full() bool {
	return r.count == len(r.buf)
}

// Evicted returns the total number of elements dropped by Push.
func (r *Ring[T]) Evicted() uint64 {
	return r.evicted
}
