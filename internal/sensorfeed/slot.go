// Package sensorfeed carries detection batches from a sensor to the agent.
// A serial-attached sensor writes newline-delimited JSON frames; the Feed
// parses them and publishes each batch into a single-slot buffer that the
// agent polls once per tick.
package sensorfeed

import "sync"

// Slot is a single-value, latest-wins mailbox. Put never blocks and
// replaces any value not yet taken; Latest takes the value if a new one
// has arrived since the previous call.
type Slot[T any] struct {
	mu      sync.Mutex
	val     T
	fresh   bool
	puts    uint64
	dropped uint64
}

// NewSlot returns an empty slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Put stores v and reports whether an untaken value was overwritten.
func (s *Slot[T]) Put(v T) (overwrote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	overwrote = s.fresh
	if overwrote {
		s.dropped++
	}
	s.val = v
	s.fresh = true
	s.puts++
	return overwrote
}

// Latest returns the most recent value and true if it has not been taken
// yet. Otherwise it returns the zero value and false.
func (s *Slot[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		var zero T
		return zero, false
	}
	s.fresh = false
	return s.val, true
}

// Peek returns the most recent value without taking it.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.puts > 0
}

// Counts returns the number of values put and the number overwritten
// before they were taken.
func (s *Slot[T]) Counts() (puts, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts, s.dropped
}
