package host

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/scratchpad/internal/sandbox"
)

// Future is the pending result of one run. It is resolved exactly once,
// with a result or with ErrAbandoned.
type Future struct {
	ID string

	done   chan struct{}
	once   sync.Once
	result sandbox.RunResult
	err    error
}

func newFuture(runID string) *Future {
	return &Future{ID: runID, done: make(chan struct{})}
}

// Done is closed once the future resolves
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends
func (f *Future) Wait(ctx context.Context) (sandbox.RunResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return sandbox.RunResult{}, ctx.Err()
	}
}

// resolve reports whether this call settled the future
func (f *Future) resolve(result sandbox.RunResult, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result, f.err = result, err
		close(f.done)
		settled = true
	})
	return settled
}
