/*
Package monitoring provides Prometheus metrics for the server.

# Overview

Metrics are registered on a private registry rather than the global one,
so tests and embedded hosts can create as many collectors as they like.

# Features

- HTTP request metrics (latency, throughput, size) labelled by route
- Run metrics (outcome, duration, transcript size, truncation)
- Debounce and abandonment counters for host channels
- WebSocket connection metrics
- Go runtime, process and uptime metrics

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.StartRun(metrics)
	// ... run ...
	timer.Finish("completed", len(records), false)
*/
package monitoring
