// Package host bridges callers and sandbox sessions.
//
// A Channel owns at most one live session. Execute retires whatever is
// running and starts a fresh session on its own goroutine; the returned
// Future resolves exactly once, either with the run's result or with
// ErrAbandoned when the run is terminated or superseded. Schedule adds a
// debounce in front of Execute for auto-run on edit.
//
// Example Usage:
//
//	ch := host.NewChannel(host.Options{Config: sandbox.DefaultConfig(), Logger: logger})
//	defer ch.Close()
//
//	f, err := ch.Execute(sandbox.RunRequest{Source: src, Timeout: 3 * time.Second})
//	if err != nil {
//	    return err // ErrInvalidRequest or ErrClosed
//	}
//	result, err := f.Wait(ctx)
package host
