/*
Package sandbox runs user JavaScript in isolated goja runtimes and captures
everything it prints.

# Overview

Each run gets a fresh goja.Runtime driven by a single goroutine. The source
is wrapped as the body of an async function whose parameters shadow the
console, timer, dialog and module globals, so nothing the script touches
leaks between runs.

A run is owned by a Session:

  - Transcript: bounded, append-only output log with a one-time limit warning
  - Tracker: handles of timers, intervals and fetches still outstanding
  - loop: timer heap plus a channel for work finishing on other goroutines
  - surface: console and dialog replacements that write to the transcript

# Lifecycle

	Idle → Running → Settling → Completed

Running ends when the top-level async invocation settles. Settling waits a
short grace period, then polls the tracker until it is empty. The safety
timer can cut either phase short; it interrupts the VM and records

	Execution timed out after <N>ms

# Usage

	sess := sandbox.NewSession(runID, sandbox.RunRequest{
		Source:  `console.log("hi")`,
		Timeout: 5 * time.Second,
	}, sandbox.DefaultConfig(), sandbox.WithLogger(logger))

	result, err := sess.Run(ctx)
	if errors.Is(err, sandbox.ErrTerminated) {
		// host abandoned the run, no result
	}

# Output Rendering

Arguments are rendered in a fixed order: primitives, promises and other
thenables, Error objects, JSON-serializable values, then plain string
conversion. Rendering never throws into the script.
*/
package sandbox
