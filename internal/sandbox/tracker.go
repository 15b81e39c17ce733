package sandbox

import (
	"slices"
	"sync"
)

// Tracker holds the handles of outstanding asynchronous work registered by a
// script. An empty tracker means no known timer, interval or fetch is still
// pending; it does not prove the script is finished.
type Tracker struct {
	pending map[int64]struct{}
	mu      sync.Mutex
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[int64]struct{})}
}

// Add registers a pending handle
func (t *Tracker) Add(handle int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[handle] = struct{}{}
}

// Remove drops a handle. Unknown handles are ignored; returns whether the
// handle was present.
func (t *Tracker) Remove(handle int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[handle]; !ok {
		return false
	}
	delete(t.pending, handle)
	return true
}

// Len returns the number of pending handles
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Handles returns the pending handles in ascending order
func (t *Tracker) Handles() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int64, 0, len(t.pending))
	for h := range t.pending {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Reset forgets every handle
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.pending)
}
