// Package http provides the REST surface of the scratchpad server.
//
// Endpoints:
//   - GET  /         service banner
//   - GET  /health   liveness plus a metrics snapshot
//   - POST /run      run one script and return its transcript
//   - GET  /metrics  Prometheus exposition
//
// POST /run builds a fresh host channel per request, so concurrent requests
// never supersede each other. A request that disconnects before its run
// finishes terminates the run and is answered with 499.
//
// Example Usage:
//
//	handlers := http.NewHandlers(host.Options{Config: cfg, Metrics: metrics})
//	router.POST("/run", handlers.Run)
package http
