/*
Package tracing provides lightweight request and run tracing.

# Overview

Spans carry a trace ID, a span ID and an optional parent, and are written
to the structured log when they finish. Trace context travels in the
X-Trace-ID and X-Span-ID headers and in context.Context.

# Usage

	tracer := tracing.New("scratchpad", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "sandbox.run")
	span.SetTag("run_id", runID)
	defer span.Finish()
*/
package tracing
