package memory

import (
	"sync"
)

// DefaultShortTermSize is the default number of entries kept per user.
const DefaultShortTermSize = 6

// ShortTermMemory keeps the last N entries per user in commit order.
// Appending to a full buffer evicts the oldest entry. It is safe for
// concurrent use; unknown users read as an empty buffer.
//
// The engine buffers core.Exchange values (one user message and its reply),
// so N counts conversational turns rather than individual messages.
type ShortTermMemory[T any] struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[string]*ring[T]
}

// NewShortTermMemory creates a buffer holding capacity entries per user.
// A non-positive capacity selects DefaultShortTermSize.
func NewShortTermMemory[T any](capacity int) *ShortTermMemory[T] {
	if capacity <= 0 {
		capacity = DefaultShortTermSize
	}
	return &ShortTermMemory[T]{
		capacity: capacity,
		buffers:  make(map[string]*ring[T]),
	}
}

// Capacity returns N, the maximum number of entries kept per user.
func (m *ShortTermMemory[T]) Capacity() int {
	return m.capacity
}

// Append adds v to userID's buffer, evicting the oldest entry when full.
func (m *ShortTermMemory[T]) Append(userID string, v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.buffers[userID]
	if !ok {
		buf = newRing[T](m.capacity)
		m.buffers[userID] = buf
	}
	buf.push(v)
}

// Recent returns userID's buffered entries, oldest first. The slice is a
// copy.
func (m *ShortTermMemory[T]) Recent(userID string) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf, ok := m.buffers[userID]
	if !ok {
		return nil
	}
	return buf.snapshot()
}

// Len returns the number of entries buffered for userID.
func (m *ShortTermMemory[T]) Len(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if buf, ok := m.buffers[userID]; ok {
		return buf.size
	}
	return 0
}

// Clear empties userID's buffer.
func (m *ShortTermMemory[T]) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buffers, userID)
}

// ring is a fixed-capacity circular buffer.
type ring[T any] struct {
	items []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.start+r.size)%capacity] = v
		r.size++
		return
	}
	// Full: overwrite the oldest slot and advance the start.
	r.items[r.start] = v
	r.start = (r.start + 1) % capacity
}

func (r *ring[T]) snapshot() []T {
	out := make([]T, r.size)
	for i := range r.size {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}
