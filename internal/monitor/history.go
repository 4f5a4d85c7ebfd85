package monitor

import (
	"sync"

	"github.com/banshee-data/lanepilot/internal/agent"
)

// History keeps the most recent ticks in a fixed-size ring. It is an
// agent.Observer.
type History struct {
	mu   sync.RWMutex
	buf  []agent.TickRecord
	next int
	full bool
}

// NewHistory returns a ring holding up to capacity ticks.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{buf: make([]agent.TickRecord, capacity)}
}

// OnTick appends r, evicting the oldest tick when full.
func (h *History) OnTick(r agent.TickRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = r
	h.next++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
}

// Len is the number of ticks held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Recent returns up to n ticks, oldest first. n <= 0 returns everything.
func (h *History) Recent(n int) []agent.TickRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	start := 0
	if h.full {
		size = len(h.buf)
		start = h.next
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]agent.TickRecord, n)
	first := start + size - n
	for i := range n {
		out[i] = h.buf[(first+i)%len(h.buf)]
	}
	return out
}
