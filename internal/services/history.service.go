package services

// HistoryBuffer is a fixed-capacity ring holding the most recent values in
// insertion order. Once full, every Append evicts the oldest value.
//
// A HistoryBuffer is not safe for concurrent use; the sampler goroutine owns
// it and hands readers copies via Snapshot.
type HistoryBuffer[T any] struct {
	items []T
	start int
	size  int
}

// NewHistoryBuffer creates a buffer holding at most capacity values.
// A capacity below 1 is raised to 1.
func NewHistoryBuffer[T any](capacity int) *HistoryBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &HistoryBuffer[T]{items: make([]T, capacity)}
}

// Append adds v, evicting the oldest value if the buffer is full
func (b *HistoryBuffer[T]) Append(v T) {
	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.start+b.size)%capacity] = v
		b.size++
		return
	}
	b.items[b.start] = v
	b.start = (b.start + 1) % capacity
}

// Snapshot returns a copy of the contents, oldest first
func (b *HistoryBuffer[T]) Snapshot() []T {
	out := make([]T, b.size)
	n := copy(out, b.items[b.start:min(b.start+b.size, len(b.items))])
	copy(out[n:], b.items[:b.size-n])
	return out
}

// Latest returns the most recently appended value
func (b *HistoryBuffer[T]) Latest() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.start+b.size-1)%len(b.items)], true
}

func (b *HistoryBuffer[T]) Len() int { return b.size }

func (b *HistoryBuffer[T]) Cap() int { return len(b.items) }

// Reset drops every value, keeping the capacity
func (b *HistoryBuffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.start = 0
	b.size = 0
}
