// Package logging provides a minimal logging interface and adapters for agentrouter.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that sessions, agents and tools use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - RouterLogger, a slog based logger with session and component scoping
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	router, err := agentrouter.New(cfg, agentrouter.WithLogger(logger))
package logging
