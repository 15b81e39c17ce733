// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Logs go to stderr by default so CLI tools can keep stdout for results.
// Run-scoped loggers carry run_id and a short source digest, never the
// script itself.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	runLog := logger.ForRun(runID.String(), utils.ShortHash(utils.SourceHash(src)))
package logging
