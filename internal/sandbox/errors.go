package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure classification.
var (
	// ErrSyntax indicates the source could not be parsed or compiled.
	ErrSyntax = errors.New("syntax error")

	// ErrRuntime indicates a synchronous exception escaped the script body
	// or a timer callback.
	ErrRuntime = errors.New("runtime exception")

	// ErrRejected indicates the top-level async invocation rejected.
	ErrRejected = errors.New("async rejection")

	// ErrTimeout indicates the safety timer fired before the run settled.
	ErrTimeout = errors.New("execution timeout")

	// ErrTerminated indicates the run was abandoned by its host.
	ErrTerminated = errors.New("session terminated")

	// ErrSessionUsed is returned when Run is called twice on one Session.
	ErrSessionUsed = errors.New("session already ran")
)

// ScriptError describes a failure raised by user code.
type ScriptError struct {
	// Kind is one of ErrSyntax, ErrRuntime or ErrRejected.
	Kind error

	// Message is the rendered error, e.g. "TypeError: x is not a function".
	Message string

	// Line is the 1-based source line, zero when unknown.
	Line int
}

// Error returns the message, including the line when known.
func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
	}
	return e.Message
}

// Unwrap exposes the classification sentinel to errors.Is.
func (e *ScriptError) Unwrap() error {
	return e.Kind
}

// record converts the error into a transcript entry.
func (e *ScriptError) record() OutputRecord {
	return OutputRecord{Kind: KindError, Content: e.Message, Line: e.Line}
}
