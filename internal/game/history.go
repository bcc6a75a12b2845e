package game

import "sync"

// History keeps the most recent round results in memory.
type History struct {
	mu      sync.RWMutex
	entries []Event
	maxSize int
}

// NewHistory creates a history holding at most maxEntries results.
func NewHistory(maxEntries int) *History {
	return &History{entries: make([]Event, 0, maxEntries), maxSize: maxEntries}
}

// Add records a result event.
func (h *History) Add(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
}

// Recent returns up to n newest entries, oldest first.
func (h *History) Recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Event, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Reset clears the history.
func (h *History) Reset() {
	h.mu.Lock()
	h.entries = h.entries[:0]
	h.mu.Unlock()
}
