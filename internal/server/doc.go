// Package server assembles the scratchpad HTTP server.
//
// It wires configuration into the sandbox and host layers, builds the gin
// router with its middleware stack (recovery, tracing, metrics, CORS, rate
// limiting) and registers the REST and websocket endpoints.
//
// Server Lifecycle:
//  1. Load configuration (defaults, file, environment, flags)
//  2. Initialize logger, metrics and tracer
//  3. Setup HTTP routes and middleware
//  4. Serve until a signal arrives
//  5. Graceful shutdown bounded by SHUTDOWN_TIMEOUT_MS
//
// Example Usage:
//
//	cfg, err := config.Load("")
//	srv, err := server.NewServer(cfg)
//	go srv.Run()
//	defer srv.Close()
package server
