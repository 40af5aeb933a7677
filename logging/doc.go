// Package logging provides a minimal logging interface and adapters for codeteam.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, workers and boundaries use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - RunLogger with run/component context, stage timers and optional file rotation
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", File: "codeteam.log"})
//	eng := engine.New(func(o *engine.Options) {
//	    o.Logger = logger.WithComponent("engine")
//	})
//
// The interface is kept minimal to avoid vendor lock-in while supporting
// structured logging where available.
package logging
