package effectchain

import "sync"

// Signal delivers values to connected observers. The zero value is ready to
// use.
type Signal[T any] struct {
	mu    sync.Mutex
	next  uint64
	slots []slot[T]
}

type slot[T any] struct {
	id uint64
	fn func(T)
}

// Connect adds an observer and returns its id.
func (s *Signal[T]) Connect(fn func(T)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	s.slots = append(s.slots, slot[T]{id: s.next, fn: fn})

	return s.next
}

// Disconnect removes an observer.
func (s *Signal[T]) Disconnect(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sl := range s.slots {
		if sl.id == id {
			s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
			return
		}
	}
}

// Emit calls every observer in connection order.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	slots := s.slots
	s.mu.Unlock()

	for _, sl := range slots {
		sl.fn(v)
	}
}
