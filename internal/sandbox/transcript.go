package sandbox

import (
	"fmt"
	"sync"
)

const limitMessage = "Log limit reached (%d entries). Further output suppressed."

// Transcript is the bounded, append-only output log of one run
type Transcript struct {
	records  []OutputRecord
	capacity int
	count    int // ordinary records accepted
	limited  bool
	sealed   bool // ordinary output is dropped, diagnostics still land
	mu       sync.Mutex
}

// NewTranscript creates a transcript holding at most capacity ordinary records
func NewTranscript(capacity int) *Transcript {
	if capacity <= 0 {
		capacity = DefaultConfig().LogCapacity
	}
	return &Transcript{
		records:  make([]OutputRecord, 0, min(capacity, 64)),
		capacity: capacity,
	}
}

// Append adds a record produced by script output. Returns false once the
// limit has been reached; the first rejected record is replaced by a single
// warning sentinel.
func (t *Transcript) Append(kind Kind, content string, line int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limited || t.sealed {
		return false
	}
	if t.count >= t.capacity {
		t.limited = true
		t.records = append(t.records, OutputRecord{
			Kind:    KindWarn,
			Content: fmt.Sprintf(limitMessage, t.capacity),
		})
		return false
	}

	t.count++
	t.records = append(t.records, OutputRecord{Kind: kind, Content: content, Line: line})
	return true
}

// appendDiagnostic records a session-level outcome. Not subject to the limit.
func (t *Transcript) appendDiagnostic(rec OutputRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
}

// seal stops accepting script output without adding a sentinel
func (t *Transcript) seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Len returns the number of stored records, sentinel and diagnostics included
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Limited reports whether output has been truncated
func (t *Transcript) Limited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limited
}

// Snapshot returns a copy of the records in append order
func (t *Transcript) Snapshot() []OutputRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]OutputRecord{}, t.records...)
}
