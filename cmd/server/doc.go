// Package main is the entry point for the scratchpad server.
//
// The server runs untrusted JavaScript snippets in isolated sessions and
// returns their console transcripts over REST and websocket.
//
// Configuration:
//   - Defaults for development
//   - Optional YAML or TOML file (-config or CONFIG_FILE)
//   - Environment variables (12-factor)
//   - CLI flags (override everything else)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -config scratchpad.yaml
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
